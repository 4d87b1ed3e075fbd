package dashboard

import (
	"strconv"
	"time"

	"github.com/tibiaops/opsdash/pkg/types"
)

// Element identifiers of the metric cards.
const (
	CardCISuccessRate    = "ci-success-rate"
	CardCDSuccessRate    = "cd-success-rate"
	CardAvgBuildTime     = "avg-build-time"
	CardTotalDeployments = "total-deployments"
)

// Card is one scalar metric card.
type Card struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
}

// Tile is one entry of the application metrics panel.
type Tile struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// View is a point-in-time copy of the dashboard's visual state.
type View struct {
	Cards    []Card `json:"cards"`
	Pipeline *Chart `json:"pipeline_chart"`
	Security *Chart `json:"security_chart"`
	Tiles    []Tile `json:"app_metrics"`

	Origin     types.Origin `json:"origin,omitempty"`
	RenderedAt *time.Time   `json:"rendered_at,omitempty"`
	UpdatedAgo string       `json:"updated_ago,omitempty"`
}

// Card returns the card with the given element id.
func (v View) Card(id string) (Card, bool) {
	for _, c := range v.Cards {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

// Tile returns the tile with the given label.
func (v View) Tile(label string) (Tile, bool) {
	for _, t := range v.Tiles {
		if t.Label == label {
			return t, true
		}
	}
	return Tile{}, false
}

// buildCards maps the pipeline scalars onto the four cards. The rate and
// build time strings arrive pre-formatted and are used verbatim.
func buildCards(p *types.Pipeline) []Card {
	return []Card{
		{ID: CardCISuccessRate, Label: "CI Success Rate", Value: p.CISuccessRate},
		{ID: CardCDSuccessRate, Label: "CD Success Rate", Value: p.CDSuccessRate},
		{ID: CardAvgBuildTime, Label: "Avg Build Time", Value: p.AvgBuildTime},
		{ID: CardTotalDeployments, Label: "Total Deployments", Value: strconv.Itoa(p.TotalDeployments)},
	}
}

// buildTiles maps the application group onto the six tiles, in display order.
func buildTiles(a *types.Application) []Tile {
	return []Tile{
		{Label: "Total Trolls", Value: strconv.Itoa(a.TrollsTotal)},
		{Label: "Bastex Members", Value: strconv.Itoa(a.BastexTotal)},
		{Label: "Enemies Online", Value: strconv.Itoa(a.EnemiesOnline)},
		{Label: "API Calls", Value: FormatNumber(a.APICalls)},
		{Label: "Worlds Monitored", Value: strconv.Itoa(a.WorldsMonitored)},
		{Label: "Guilds Monitored", Value: strconv.Itoa(a.GuildsMonitored)},
	}
}
