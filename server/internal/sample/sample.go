// Package sample synthesizes the placeholder snapshot shown when the real
// metrics document is unavailable.
package sample

import (
	"math/rand/v2"
	"time"

	"github.com/tibiaops/opsdash/pkg/types"
)

// Days is the length of the generated pipeline series.
const Days = 30

// Series bounds, inclusive.
const (
	MinCI = 5
	MaxCI = 14
	MinCD = 1
	MaxCD = 5
)

// LabelLayout formats series dates as short month and day, e.g. "Jan 2".
const LabelLayout = "Jan 2"

// Generate returns a fresh sample snapshot whose pipeline series covers the
// Days days ending on now's date. A nil rng uses the global source.
func Generate(now time.Time, rng *rand.Rand) *types.MetricsSnapshot {
	intn := rand.IntN
	if rng != nil {
		intn = rng.IntN
	}

	labels := make([]string, 0, Days)
	ci := make([]int, 0, Days)
	cd := make([]int, 0, Days)
	for i := Days - 1; i >= 0; i-- {
		labels = append(labels, now.AddDate(0, 0, -i).Format(LabelLayout))
		ci = append(ci, intn(MaxCI-MinCI+1)+MinCI)
		cd = append(cd, intn(MaxCD-MinCD+1)+MinCD)
	}

	return &types.MetricsSnapshot{
		Pipeline: &types.Pipeline{
			Labels:           labels,
			CI:               ci,
			CD:               cd,
			CISuccessRate:    "94%",
			CDSuccessRate:    "98%",
			AvgBuildTime:     "2m 34s",
			TotalDeployments: 127,
		},
		Security: &types.Security{
			Passed:   85,
			Warnings: 12,
			Failed:   3,
		},
		Application: &types.Application{
			TrollsTotal:     342,
			BastexTotal:     156,
			EnemiesOnline:   7,
			APICalls:        15420,
			WorldsMonitored: 14,
			GuildsMonitored: 2,
		},
	}
}
