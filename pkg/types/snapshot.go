package types

import (
	"errors"
	"fmt"
)

// ErrShape reports a decoded metrics document that is missing a required group.
var ErrShape = errors.New("metrics snapshot: shape mismatch")

// Origin records where a snapshot came from.
type Origin string

const (
	OriginRemote Origin = "remote"
	OriginSample Origin = "sample"
)

// MetricsSnapshot is one complete set of metrics values for a single refresh
// cycle. Groups are pointers so that a document missing one can be told apart
// from a document whose counters are all zero.
type MetricsSnapshot struct {
	Pipeline    *Pipeline    `json:"pipeline"`
	Security    *Security    `json:"security"`
	Application *Application `json:"application"`
}

// Pipeline holds CI/CD activity. Labels, CI and CD are parallel series; their
// lengths are expected to match but this is not enforced.
type Pipeline struct {
	Labels           []string `json:"labels"`
	CI               []int    `json:"ci"`
	CD               []int    `json:"cd"`
	CISuccessRate    string   `json:"ciSuccessRate"`
	CDSuccessRate    string   `json:"cdSuccessRate"`
	AvgBuildTime     string   `json:"avgBuildTime"`
	TotalDeployments int      `json:"totalDeployments"`
}

// Security holds security scan outcomes, interpreted as parts of a whole.
type Security struct {
	Passed   int `json:"passed"`
	Warnings int `json:"warnings"`
	Failed   int `json:"failed"`
}

// Application holds the monitored application's counters and gauges.
type Application struct {
	TrollsTotal     int `json:"trollsTotal"`
	BastexTotal     int `json:"bastexTotal"`
	EnemiesOnline   int `json:"enemiesOnline"`
	APICalls        int `json:"apiCalls"`
	WorldsMonitored int `json:"worldsMonitored"`
	GuildsMonitored int `json:"guildsMonitored"`
}

// Validate checks that all three groups are present.
func (s *MetricsSnapshot) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: empty document", ErrShape)
	}
	switch {
	case s.Pipeline == nil:
		return fmt.Errorf("%w: missing pipeline", ErrShape)
	case s.Security == nil:
		return fmt.Errorf("%w: missing security", ErrShape)
	case s.Application == nil:
		return fmt.Errorf("%w: missing application", ErrShape)
	}
	return nil
}

// SeriesAligned reports whether labels and both series have the same length.
func (p *Pipeline) SeriesAligned() bool {
	return len(p.Labels) == len(p.CI) && len(p.Labels) == len(p.CD)
}
