// Package monitor exposes the live state of the processing service over
// HTTP: JSON history snapshots, runtime parameter updates, debug charts
// and a websocket feed of per-train summaries.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/beamline-data/trainproc/internal/httputil"
	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
	"github.com/beamline-data/trainproc/internal/version"
)

var (
	errBadWindow           = errors.New("moving_avg_window must be >= 1")
	errBadIndex            = errors.New("index out of range")
	errTooManyROIs         = errors.New("too many ROIs")
	errTooManyCorrelations = errors.New("too many correlations")
)

// Stats is the slice of the scheduler the monitor reports on.
type Stats interface {
	Processed() uint64
	Skipped() uint64
}

// Server is the monitoring HTTP server.
type Server struct {
	addr     string
	manager  *model.Manager
	cfgStore *pipeline.Store
	stats    Stats
	hub      *Hub

	mu     sync.Mutex
	latest *model.ProcessedTrain
}

// NewServer creates a monitor server over the shared pipeline state.
func NewServer(addr string, manager *model.Manager, cfgStore *pipeline.Store, stats Stats) *Server {
	s := &Server{
		addr:     addr,
		manager:  manager,
		cfgStore: cfgStore,
		stats:    stats,
	}
	s.hub = NewHub(s.snapshot)
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/params", s.handleParams)
	mux.HandleFunc("/api/train", s.handleLatestTrain)
	mux.HandleFunc("/api/correlation", s.handleCorrelation)
	mux.HandleFunc("/api/correlations", s.handleCorrelations)
	mux.HandleFunc("/api/reference", s.handleReference)
	mux.HandleFunc("/api/history/pumpprobe", s.handlePumpProbeHistory)
	mux.HandleFunc("/api/history/roi", s.handleROIHistory)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/debug/correlation-chart", s.handleCorrelationChart)
	mux.HandleFunc("/debug/azimuthal.png", s.handleAzimuthalPNG)
	mux.HandleFunc("/ws", s.hub.HandleWS)
	return mux
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()
	opsf("monitor listening on %s", s.addr)
	err := httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Publish records the latest processed train and broadcasts its summary
// to websocket clients.
func (s *Server) Publish(pt *model.ProcessedTrain) {
	s.mu.Lock()
	s.latest = pt
	s.mu.Unlock()
	s.hub.Broadcast(trainSummary(pt))
}

func trainSummary(pt *model.ProcessedTrain) map[string]any {
	summary := map[string]any{
		"type":    "train",
		"trainId": pt.TrainID,
	}
	if pt.Beam.Valid {
		summary["beamIntensity"] = pt.Beam.Intensity
	}
	if pt.PumpProbe.FOMValid {
		summary["pumpProbeFom"] = pt.PumpProbe.FOM
	}
	if pt.AI.FOMValid {
		summary["azimuthalFom"] = pt.AI.FOM
	}
	rois := map[string]float64{}
	for i := 0; i < model.MaxROIs; i++ {
		if pt.ROI.Valid[i] {
			rois["roi"+strconv.Itoa(i+1)] = pt.ROI.Sum[i]
		}
	}
	if len(rois) > 0 {
		summary["roiSums"] = rois
	}
	return summary
}

func (s *Server) snapshot() any {
	s.mu.Lock()
	pt := s.latest
	s.mu.Unlock()
	if pt == nil {
		return nil
	}
	return trainSummary(pt)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"version":   version.Version,
		"gitSha":    version.GitSHA,
		"wsClients": s.hub.ClientCount(),
	}
	if s.stats != nil {
		payload["processed"] = s.stats.Processed()
		payload["skipped"] = s.stats.Skipped()
	}
	httputil.OK(w, payload)
}

// paramsUpdate is the runtime-updatable subset of the configuration.
// Pointer fields distinguish "leave alone" from "set to zero".
type paramsUpdate struct {
	MovingAvgWindow *int                         `json:"moving_avg_window,omitempty"`
	ThresholdLo     *float64                     `json:"threshold_lo,omitempty"`
	ThresholdHi     *float64                     `json:"threshold_hi,omitempty"`
	Background      *float64                     `json:"background,omitempty"`
	PumpProbeMode   *string                      `json:"pump_probe_mode,omitempty"`
	AbsDifference   *bool                        `json:"abs_difference,omitempty"`
	OnPulses        []int                        `json:"on_pulses,omitempty"`
	OffPulses       []int                        `json:"off_pulses,omitempty"`
	FOMSource       *string                      `json:"fom_source,omitempty"`
	ROIs            []*model.Rect                `json:"rois,omitempty"`
	Correlations    []*pipeline.CorrelationParam `json:"correlations,omitempty"`
}

// paramsView renders a Shared snapshot as JSON-safe values. The wide-open
// thresholds are ±Inf internally, which encoding/json rejects, so they
// come out as null.
func paramsView(cfg pipeline.Shared) map[string]any {
	finite := func(v float64) any {
		if math.IsInf(v, 0) {
			return nil
		}
		return v
	}
	return map[string]any{
		"moving_avg_window": cfg.MovingAverageWindow,
		"threshold_lo":      finite(cfg.ThresholdLo),
		"threshold_hi":      finite(cfg.ThresholdHi),
		"background":        cfg.Background,
		"pump_probe_mode":   cfg.PPMode.String(),
		"abs_difference":    cfg.PPAbsDifference,
		"on_pulses":         cfg.PPOnIndices,
		"off_pulses":        cfg.PPOffIndices,
		"fom_source":        cfg.CorrelationSource,
		"rois":              cfg.ROIs,
		"correlations":      cfg.Correlations,
		"azimuthal_enabled": cfg.AzimuthalEnabled,
		"azimuthal":         cfg.Azimuthal,
	}
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		httputil.OK(w, paramsView(s.cfgStore.Get()))
	case http.MethodPost:
		var upd paramsUpdate
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			httputil.BadRequest(w, "invalid JSON: "+err.Error())
			return
		}
		if err := s.applyParams(&upd); err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		httputil.OK(w, paramsView(s.cfgStore.Get()))
	default:
		httputil.MethodNotAllowed(w, "GET, POST")
	}
}

func (s *Server) applyParams(upd *paramsUpdate) error {
	var mode *model.PumpProbeMode
	if upd.PumpProbeMode != nil {
		m, err := model.ParsePumpProbeMode(*upd.PumpProbeMode)
		if err != nil {
			return err
		}
		mode = &m
	}
	if upd.MovingAvgWindow != nil && *upd.MovingAvgWindow < 1 {
		return errBadWindow
	}
	if len(upd.ROIs) > model.MaxROIs {
		return errTooManyROIs
	}
	if len(upd.Correlations) > model.MaxCorrelations {
		return errTooManyCorrelations
	}

	s.cfgStore.Update(func(cfg *pipeline.Shared) {
		if upd.MovingAvgWindow != nil {
			cfg.MovingAverageWindow = *upd.MovingAvgWindow
		}
		if upd.ThresholdLo != nil {
			cfg.ThresholdLo = *upd.ThresholdLo
		}
		if upd.ThresholdHi != nil {
			cfg.ThresholdHi = *upd.ThresholdHi
		}
		if upd.Background != nil {
			cfg.Background = *upd.Background
		}
		if mode != nil {
			cfg.PPMode = *mode
		}
		if upd.AbsDifference != nil {
			cfg.PPAbsDifference = *upd.AbsDifference
		}
		if upd.OnPulses != nil {
			cfg.PPOnIndices = append([]int(nil), upd.OnPulses...)
		}
		if upd.OffPulses != nil {
			cfg.PPOffIndices = append([]int(nil), upd.OffPulses...)
		}
		if upd.FOMSource != nil {
			cfg.CorrelationSource = *upd.FOMSource
		}
		if upd.ROIs != nil {
			cfg.ROIs = [model.MaxROIs]*model.Rect{}
			for i, roi := range upd.ROIs {
				cfg.ROIs[i] = roi
			}
		}
		if upd.Correlations != nil {
			cfg.Correlations = [model.MaxCorrelations]*pipeline.CorrelationParam{}
			for i, p := range upd.Correlations {
				cfg.Correlations[i] = p
			}
		}
	})
	opsf("runtime params updated")
	return nil
}

func (s *Server) handleLatestTrain(w http.ResponseWriter, _ *http.Request) {
	snap := s.snapshot()
	if snap == nil {
		httputil.NotFound(w, "no train processed yet")
		return
	}
	httputil.OK(w, snap)
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
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
	httputil.OK(w, map[string]any{
		"deviceId": snap.Meta.DeviceID,
		"property": snap.Meta.Property,
		"x":        snap.X,
		"y":        snap.Y,
		"count":    snap.Count,
		"lower":    snap.Lower,
		"upper":    snap.Upper,
	})
}

func (s *Server) handlePumpProbeHistory(w http.ResponseWriter, _ *http.Request) {
	snap := s.manager.PumpProbeHistory()
	httputil.OK(w, map[string]any{"x": snap.X, "y": snap.Y})
}

func (s *Server) handleROIHistory(w http.ResponseWriter, r *http.Request) {
	idx, err := queryIndex(r, "idx", model.MaxROIs)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	snap, err := s.manager.ROIHistory(idx - 1)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.OK(w, map[string]any{"x": snap.X, "y": snap.Y})
}

// handleCorrelations lists the registered correlation slots.
func (s *Server) handleCorrelations(w http.ResponseWriter, _ *http.Request) {
	list := s.manager.Correlations()
	if list == nil {
		list = []model.CorrelationInfo{}
	}
	httputil.OK(w, map[string]any{"correlations": list})
}

// handleReference manages the reference image: POST with action=set
// marks the next train's mean for capture, action=remove clears it. GET
// reports whether one is held.
func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		_, shape, ok := s.manager.Reference()
		httputil.OK(w, map[string]any{"held": ok, "shape": shape})
	case http.MethodPost:
		var req struct {
			Action string `json:"action"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.BadRequest(w, "invalid JSON: "+err.Error())
			return
		}
		switch req.Action {
		case "set":
			s.manager.RequestReference()
			opsf("reference capture requested")
		case "remove":
			s.manager.RemoveReference()
			opsf("reference image removed")
		default:
			httputil.BadRequest(w, "action must be \"set\" or \"remove\"")
			return
		}
		httputil.OK(w, map[string]any{"action": req.Action})
	default:
		httputil.MethodNotAllowed(w, "GET, POST")
	}
}

// queryIndex parses a 1-based slot index, defaulting to 1.
func queryIndex(r *http.Request, name string, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 1, nil
	}
	idx, err := strconv.Atoi(raw)
	if err != nil || idx < 1 || idx > max {
		return 0, errBadIndex
	}
	return idx, nil
}
