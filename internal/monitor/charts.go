package monitor

import (
	"bytes"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/obstacle.report/internal/db"
)

// RiskTimelineHTML renders the run's risk-score history as a standalone
// echarts line chart.
func RiskTimelineHTML(samples []db.RiskSample) ([]byte, error) {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Collision risk over time"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "risk score"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	x := make([]string, len(samples))
	y := make([]opts.LineData, len(samples))
	for i, s := range samples {
		x[i] = s.Timestamp.Format("15:04:05.000")
		y[i] = opts.LineData{Value: s.Score}
	}
	line.SetXAxis(x).AddSeries("risk", y,
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
