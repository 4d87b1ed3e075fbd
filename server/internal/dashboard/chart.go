package dashboard

// Chart colors.
const (
	colorBlue       = "rgba(88, 166, 255, 1)"
	colorGreen      = "rgba(63, 185, 80, 1)"
	colorYellow     = "rgba(210, 153, 34, 1)"
	colorRed        = "rgba(248, 81, 73, 1)"
	colorBlueAlpha  = "rgba(88, 166, 255, 0.2)"
	colorGreenAlpha = "rgba(63, 185, 80, 0.2)"

	colorTitle  = "#c9d1d9"
	colorMuted  = "#8b949e"
	colorGrid   = "#30363d"
	colorBorder = "#21262d"
)

// Chart is a declarative chart widget configuration. The controller creates
// each chart once and replaces its labels and series in place; Update is the
// redraw signal.
type Chart struct {
	Type     string       `json:"type"`
	Labels   []string     `json:"labels"`
	Datasets []Dataset    `json:"datasets"`
	Options  ChartOptions `json:"options"`

	// Revision increases on every Update.
	Revision uint64 `json:"revision"`
}

// Dataset is one series of a chart.
type Dataset struct {
	Label string `json:"label,omitempty"`
	Data  []int  `json:"data"`

	// BorderColor and BackgroundColor are a single color or one per point.
	BorderColor     any  `json:"borderColor,omitempty"`
	BackgroundColor any  `json:"backgroundColor,omitempty"`
	BorderWidth     int  `json:"borderWidth,omitempty"`
	Fill            bool `json:"fill,omitempty"`

	// Tension smooths line segments; zero draws straight lines.
	Tension float64 `json:"tension,omitempty"`
}

// ChartOptions are display options handed to the chart library.
type ChartOptions struct {
	Responsive          bool             `json:"responsive"`
	MaintainAspectRatio bool             `json:"maintainAspectRatio"`
	Plugins             Plugins          `json:"plugins"`
	Scales              map[string]Scale `json:"scales,omitempty"`
}

type Plugins struct {
	Title  Title  `json:"title"`
	Legend Legend `json:"legend"`
}

type Title struct {
	Display bool   `json:"display"`
	Text    string `json:"text"`
	Color   string `json:"color"`
}

type Legend struct {
	Position string `json:"position,omitempty"`
	Labels   Color  `json:"labels"`
}

type Scale struct {
	Ticks Color `json:"ticks"`
	Grid  Color `json:"grid"`
}

type Color struct {
	Color string `json:"color"`
}

// Update marks the chart's data as replaced.
func (c *Chart) Update() {
	c.Revision++
}

// clone returns a deep copy of the chart's data. Options hold no slices
// that are ever mutated, but Scales is copied so callers cannot alias it.
func (c *Chart) clone() *Chart {
	if c == nil {
		return nil
	}
	out := *c
	out.Labels = append([]string(nil), c.Labels...)
	out.Datasets = make([]Dataset, len(c.Datasets))
	for i, ds := range c.Datasets {
		ds.Data = append([]int(nil), ds.Data...)
		out.Datasets[i] = ds
	}
	if c.Options.Scales != nil {
		out.Options.Scales = make(map[string]Scale, len(c.Options.Scales))
		for k, v := range c.Options.Scales {
			out.Options.Scales[k] = v
		}
	}
	return &out
}

// newPipelineChart builds the CI/CD line chart with empty series.
func newPipelineChart() *Chart {
	axis := Scale{Ticks: Color{colorMuted}, Grid: Color{colorGrid}}
	return &Chart{
		Type:   "line",
		Labels: []string{},
		Datasets: []Dataset{
			{
				Label:           "CI Runs",
				Data:            []int{},
				BorderColor:     colorBlue,
				BackgroundColor: colorBlueAlpha,
				Fill:            true,
				Tension:         0.4,
			},
			{
				Label:           "CD Deployments",
				Data:            []int{},
				BorderColor:     colorGreen,
				BackgroundColor: colorGreenAlpha,
				Fill:            true,
				Tension:         0.4,
			},
		},
		Options: ChartOptions{
			Responsive: true,
			Plugins: Plugins{
				Title:  Title{Display: true, Text: "Pipeline Activity (Last 30 Days)", Color: colorTitle},
				Legend: Legend{Labels: Color{colorMuted}},
			},
			Scales: map[string]Scale{"x": axis, "y": axis},
		},
	}
}

// newSecurityChart builds the scan results donut with placeholder values.
func newSecurityChart() *Chart {
	return &Chart{
		Type:   "doughnut",
		Labels: []string{"Passed", "Warnings", "Failed"},
		Datasets: []Dataset{{
			Data:            []int{85, 12, 3},
			BackgroundColor: []string{colorGreen, colorYellow, colorRed},
			BorderColor:     colorBorder,
			BorderWidth:     2,
		}},
		Options: ChartOptions{
			Responsive: true,
			Plugins: Plugins{
				Title:  Title{Display: true, Text: "Security Scan Results", Color: colorTitle},
				Legend: Legend{Position: "bottom", Labels: Color{colorMuted}},
			},
		},
	}
}
