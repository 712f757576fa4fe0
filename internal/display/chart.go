package display

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/MrWong99/pitchtrace/internal/settings"
	"github.com/MrWong99/pitchtrace/internal/tracker"
)

// gap is the ECharts placeholder for a missing value; it breaks the line.
const gap = "-"

// lineData converts points into [elapsed, hz] pairs with NaN as a gap.
func lineData(pts []tracker.Point) []opts.LineData {
	data := make([]opts.LineData, 0, len(pts))
	for _, p := range pts {
		var y any = p.Value
		if !p.Valid() {
			y = gap
		}
		data = append(data, opts.LineData{Value: []any{p.Elapsed, y}})
	}
	return data
}

// NewChart builds the trace chart for the window ending at end: x spans
// [end-ChartSpan, end], y spans the display range, and the target range is
// drawn as a band.
func NewChart(pts []tracker.Point, end float64, s settings.Settings, label string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "pitchtrace", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{
			Title:      label,
			TitleStyle: &opts.TextStyle{Color: s.LabelColor.Hex(), FontSize: 30},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type: "value", Name: "s", Min: end - ChartSpan, Max: end,
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Type: "value", Name: "Hz",
			Min: s.DisplayRange.Lower(), Max: s.DisplayRange.Upper(),
		}),
	)

	target := s.TargetRange
	line.AddSeries("pitch", lineData(pts),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		charts.WithMarkAreaNameCoordItemOpts(opts.MarkAreaNameCoordItem{
			Name:        fmt.Sprintf("target %d-%d Hz", target.Lower(), target.Upper()),
			Coordinate0: []any{end - ChartSpan, target.Lower()},
			Coordinate1: []any{end, target.Upper()},
			ItemStyle:   &opts.ItemStyle{Color: s.TargetColor.CSS()},
		}),
	)
	return line
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	pts, end := s.deps.Source.Window(ChartSpan)
	st := BuildStatus(s.deps.Source)
	chart := NewChart(pts, end, s.deps.Settings.Current(), st.Label)

	var buf bytes.Buffer
	if err := chart.Render(&buf); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("render chart: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
