package api

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/stride/internal/httputil"
)

// distanceChart renders an HTML bar chart of distance per activity. It
// accepts the same order and limit parameters as /api/activities.
func (s *Server) distanceChart(w http.ResponseWriter, r *http.Request) {
	acts, status, err := s.history(r)
	if status == http.StatusBadRequest {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	x := make([]string, 0, len(acts))
	y := make([]opts.BarData, 0, len(acts))
	for _, a := range acts {
		x = append(x, a.StartTime.Local().Format("2006-01-02 15:04"))
		y = append(y, opts.BarData{Name: string(a.Type), Value: a.DistanceKm})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Stride Distance", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Distance per activity", Subtitle: fmt.Sprintf("%d activities", len(acts))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "km"}),
	)
	bar.SetXAxis(x).
		AddSeries("distance", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// paceChart renders a PNG line plot of average pace per activity in
// insertion order.
func (s *Server) paceChart(w http.ResponseWriter, r *http.Request) {
	acts, err := s.store.ListActivities(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	p := plot.New()
	p.Title.Text = "Average pace"
	p.X.Label.Text = "Activity"
	p.Y.Label.Text = "Pace (km/h)"

	if len(acts) > 0 {
		pts := make(plotter.XYs, len(acts))
		for i, a := range acts {
			pts[i] = plotter.XY{X: float64(i + 1), Y: a.AvgPaceKmh}
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			httputil.InternalServerError(w, fmt.Sprintf("failed to build plot: %v", err))
			return
		}
		line.Width = vg.Points(1)
		p.Add(line, points, plotter.NewGrid())
	}

	wt, err := p.WriterTo(10*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(buf.Bytes())
}
