package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"

	"github.com/beamline-data/trainproc/internal/httputil"
	"github.com/beamline-data/trainproc/internal/train/model"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// handleCorrelationChart renders a quick scatter (HTML) of one
// correlation slot using go-echarts. Debugging-only endpoint for
// eyeballing a correlation without the full UI.
// Query params:
//   - idx (optional; default 0) correlation slot
func (s *Server) handleCorrelationChart(w http.ResponseWriter, r *http.Request) {
	idx, err := queryIndex(r, "idx", model.MaxCorrelations)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	snap, ok := s.manager.Correlation(idx)
	if !ok {
		httputil.NotFound(w, "correlation slot not registered")
		return
	}

	data := make([]opts.ScatterData, 0, len(snap.X))
	for i := range snap.X {
		data = append(data, opts.ScatterData{Value: []interface{}{snap.X[i], snap.Y[i]}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Correlation", Theme: "dark", Width: "900px", Height: "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Correlation %d", idx),
			Subtitle: fmt.Sprintf("%s/%s points=%d", snap.Meta.DeviceID, snap.Meta.Property, len(data)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: snap.Meta.Property, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "FOM", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("fom", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleAzimuthalPNG plots the latest train's scattering curve as a PNG.
func (s *Server) handleAzimuthalPNG(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	pt := s.latest
	s.mu.Unlock()
	if pt == nil || pt.AI.Momentum == nil {
		httputil.NotFound(w, "no azimuthal result available")
		return
	}

	pts := make(plotter.XYs, 0, len(pt.AI.Momentum))
	for i := range pt.AI.Momentum {
		y := pt.AI.IntensityMean[i]
		if math.IsNaN(y) {
			continue
		}
		pts = append(pts, plotter.XY{X: pt.AI.Momentum[i], Y: y})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Azimuthal integration, train %d", pt.TrainID)
	p.X.Label.Text = "q (pixel)"
	p.Y.Label.Text = "I (a.u.)"

	line, err := plotter.NewLine(pts)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to build plot: %v", err))
		return
	}
	p.Add(line)
	p.Add(plotter.NewGrid())

	wt, err := p.WriterTo(8*vg.Inch, 5*vg.Inch, "png")
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render plot: %v", err))
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = wt.WriteTo(w)
}
