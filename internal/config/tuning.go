package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/beamline-data/trainproc/internal/fsutil"
	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// fs is swapped for an in-memory filesystem in tests.
var fs fsutil.FileSystem = fsutil.OSFileSystem{}

// TuningConfig is the root configuration for the processing service. The
// schema matches the /api/params endpoint so the same JSON works for
// both startup configuration and runtime updates. Omitted fields fall
// back to the Get* defaults, so partial configs are safe.
type TuningConfig struct {
	// Bridge params
	BridgeEndpoint *string `json:"bridge_endpoint,omitempty"`
	BridgeQueue    *int    `json:"bridge_queue,omitempty"`

	// Scheduler params
	QueueSize *int    `json:"queue_size,omitempty"`
	Timeout   *string `json:"timeout,omitempty"` // duration string like "5s"

	// Detector params
	DetectorDevice   *string  `json:"detector_device,omitempty"`
	DetectorProperty *string  `json:"detector_property,omitempty"`
	XGMDevice        *string  `json:"xgm_device,omitempty"`
	XGMProperty      *string  `json:"xgm_property,omitempty"`
	MovingAvgWindow  *int     `json:"moving_avg_window,omitempty"`
	ThresholdLo      *float64 `json:"threshold_lo,omitempty"`
	ThresholdHi      *float64 `json:"threshold_hi,omitempty"`
	Background       *float64 `json:"background,omitempty"`

	// Pump-probe params
	PumpProbeMode *string `json:"pump_probe_mode,omitempty"`
	OnPulses      []int   `json:"on_pulses,omitempty"`
	OffPulses     []int   `json:"off_pulses,omitempty"`
	AbsDifference *bool   `json:"abs_difference,omitempty"`

	// Analysis params
	ROIs             []*model.Rect                `json:"rois,omitempty"`
	FOMSource        *string                      `json:"fom_source,omitempty"`
	Correlations     []*pipeline.CorrelationParam `json:"correlations,omitempty"`
	AzimuthalEnabled *bool                        `json:"azimuthal_enabled,omitempty"`
	AzimuthalCenterX *float64                     `json:"azimuthal_center_x,omitempty"`
	AzimuthalCenterY *float64                     `json:"azimuthal_center_y,omitempty"`
	AzimuthalPoints  *int                         `json:"azimuthal_points,omitempty"`
	PixelSize        *float64                     `json:"pixel_size,omitempty"`      // metres
	SampleDistance   *float64                     `json:"sample_distance,omitempty"` // metres
	PhotonEnergyKeV  *float64                     `json:"photon_energy_kev,omitempty"`

	// Persistence and monitor params
	DatabasePath *string `json:"database_path,omitempty"`
	MonitorAddr  *string `json:"monitor_addr,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fs.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fs.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *TuningConfig) Validate() error {
	if c.Timeout != nil && *c.Timeout != "" {
		if _, err := time.ParseDuration(*c.Timeout); err != nil {
			return fmt.Errorf("invalid timeout '%s': %w", *c.Timeout, err)
		}
	}
	if c.QueueSize != nil && *c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be >= 1, got %d", *c.QueueSize)
	}
	if c.MovingAvgWindow != nil && *c.MovingAvgWindow < 1 {
		return fmt.Errorf("moving_avg_window must be >= 1, got %d", *c.MovingAvgWindow)
	}
	if c.ThresholdLo != nil && c.ThresholdHi != nil && *c.ThresholdLo > *c.ThresholdHi {
		return fmt.Errorf("threshold_lo %v exceeds threshold_hi %v", *c.ThresholdLo, *c.ThresholdHi)
	}
	if c.PumpProbeMode != nil {
		if _, err := model.ParsePumpProbeMode(*c.PumpProbeMode); err != nil {
			return err
		}
	}
	if len(c.ROIs) > model.MaxROIs {
		return fmt.Errorf("at most %d ROIs supported, got %d", model.MaxROIs, len(c.ROIs))
	}
	if len(c.Correlations) > model.MaxCorrelations {
		return fmt.Errorf("at most %d correlations supported, got %d", model.MaxCorrelations, len(c.Correlations))
	}
	for i, p := range c.Correlations {
		if p != nil && p.Resolution < 0 {
			return fmt.Errorf("correlation %d resolution must be >= 0, got %v", i+1, p.Resolution)
		}
	}
	if c.AzimuthalPoints != nil && *c.AzimuthalPoints < 2 {
		return fmt.Errorf("azimuthal_points must be >= 2, got %d", *c.AzimuthalPoints)
	}
	if c.PixelSize != nil && *c.PixelSize <= 0 {
		return fmt.Errorf("pixel_size must be > 0, got %v", *c.PixelSize)
	}
	if c.SampleDistance != nil && *c.SampleDistance <= 0 {
		return fmt.Errorf("sample_distance must be > 0, got %v", *c.SampleDistance)
	}
	if c.PhotonEnergyKeV != nil && *c.PhotonEnergyKeV <= 0 {
		return fmt.Errorf("photon_energy_kev must be > 0, got %v", *c.PhotonEnergyKeV)
	}
	return nil
}

// GetBridgeEndpoint returns the bridge endpoint or the default.
func (c *TuningConfig) GetBridgeEndpoint() string {
	if c.BridgeEndpoint == nil || *c.BridgeEndpoint == "" {
		return "tcp://localhost:45454"
	}
	return *c.BridgeEndpoint
}

// GetBridgeQueue returns the bridge queue depth or the default.
func (c *TuningConfig) GetBridgeQueue() int {
	if c.BridgeQueue == nil {
		return 16
	}
	return *c.BridgeQueue
}

// GetQueueSize returns the scheduler queue size or the default.
func (c *TuningConfig) GetQueueSize() int {
	if c.QueueSize == nil {
		return pipeline.DefaultQueueSize
	}
	return *c.QueueSize
}

// GetTimeout parses and returns the scheduler timeout.
func (c *TuningConfig) GetTimeout() time.Duration {
	if c.Timeout == nil || *c.Timeout == "" {
		return pipeline.DefaultTimeout
	}
	d, err := time.ParseDuration(*c.Timeout)
	if err != nil {
		return pipeline.DefaultTimeout
	}
	return d
}

// GetDetectorDevice returns the detector device ID or the default.
func (c *TuningConfig) GetDetectorDevice() string {
	if c.DetectorDevice == nil || *c.DetectorDevice == "" {
		return "detector"
	}
	return *c.DetectorDevice
}

// GetDetectorProperty returns the detector image property or the default.
func (c *TuningConfig) GetDetectorProperty() string {
	if c.DetectorProperty == nil || *c.DetectorProperty == "" {
		return "image.data"
	}
	return *c.DetectorProperty
}

// GetXGMDevice returns the beam diagnostic device, empty when disabled.
func (c *TuningConfig) GetXGMDevice() string {
	if c.XGMDevice == nil {
		return ""
	}
	return *c.XGMDevice
}

// GetXGMProperty returns the beam intensity property or the default.
func (c *TuningConfig) GetXGMProperty() string {
	if c.XGMProperty == nil || *c.XGMProperty == "" {
		return "pulseEnergy"
	}
	return *c.XGMProperty
}

// GetMovingAvgWindow returns the moving average window or the default.
func (c *TuningConfig) GetMovingAvgWindow() int {
	if c.MovingAvgWindow == nil {
		return 1
	}
	return *c.MovingAvgWindow
}

// GetDatabasePath returns the sqlite path or the default.
func (c *TuningConfig) GetDatabasePath() string {
	if c.DatabasePath == nil || *c.DatabasePath == "" {
		return "trainproc.db"
	}
	return *c.DatabasePath
}

// GetMonitorAddr returns the monitor listen address or the default.
func (c *TuningConfig) GetMonitorAddr() string {
	if c.MonitorAddr == nil || *c.MonitorAddr == "" {
		return ":8090"
	}
	return *c.MonitorAddr
}

// ToShared maps the tuning values onto a pipeline snapshot. Call only
// after Validate.
func (c *TuningConfig) ToShared() pipeline.Shared {
	shared := pipeline.DefaultShared()
	shared.MovingAverageWindow = c.GetMovingAvgWindow()
	if c.ThresholdLo != nil {
		shared.ThresholdLo = *c.ThresholdLo
	}
	if c.ThresholdHi != nil {
		shared.ThresholdHi = *c.ThresholdHi
	}
	if c.Background != nil {
		shared.Background = *c.Background
	}
	if c.PumpProbeMode != nil {
		mode, err := model.ParsePumpProbeMode(*c.PumpProbeMode)
		if err == nil {
			shared.PPMode = mode
		}
	}
	shared.PPOnIndices = append([]int(nil), c.OnPulses...)
	shared.PPOffIndices = append([]int(nil), c.OffPulses...)
	if c.AbsDifference != nil {
		shared.PPAbsDifference = *c.AbsDifference
	}
	for i, r := range c.ROIs {
		if i < model.MaxROIs {
			shared.ROIs[i] = r
		}
	}
	if c.FOMSource != nil && *c.FOMSource != "" {
		shared.CorrelationSource = *c.FOMSource
	}
	for i, p := range c.Correlations {
		if i < model.MaxCorrelations {
			shared.Correlations[i] = p
		}
	}
	if c.AzimuthalEnabled != nil && *c.AzimuthalEnabled {
		shared.AzimuthalEnabled = true
		points := 512
		if c.AzimuthalPoints != nil {
			points = *c.AzimuthalPoints
		}
		var cx, cy float64
		if c.AzimuthalCenterX != nil {
			cx = *c.AzimuthalCenterX
		}
		if c.AzimuthalCenterY != nil {
			cy = *c.AzimuthalCenterY
		}
		params := pipeline.AzimuthalParams{CenterX: cx, CenterY: cy, Points: points}
		if c.PixelSize != nil {
			params.PixelSize = *c.PixelSize
		}
		if c.SampleDistance != nil {
			params.Distance = *c.SampleDistance
		}
		if c.PhotonEnergyKeV != nil {
			params.EnergyKeV = *c.PhotonEnergyKeV
		}
		shared.Azimuthal = params
	}
	return shared
}
