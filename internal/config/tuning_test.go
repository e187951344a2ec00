package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamline-data/trainproc/internal/fsutil"
	"github.com/beamline-data/trainproc/internal/train/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTuningConfigPartial(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"bridge_endpoint": "tcp://10.0.0.5:45454",
		"moving_avg_window": 9,
		"pump_probe_mode": "even_train_on",
		"rois": [{"x": 1, "y": 2, "w": 3, "h": 4}]
	}`)

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp://10.0.0.5:45454", cfg.GetBridgeEndpoint())
	assert.Equal(t, 9, cfg.GetMovingAvgWindow())

	// Omitted fields fall back to defaults.
	assert.Equal(t, 2, cfg.GetQueueSize())
	assert.Equal(t, 5*time.Second, cfg.GetTimeout())
	assert.Equal(t, "image.data", cfg.GetDetectorProperty())
	assert.Equal(t, ":8090", cfg.GetMonitorAddr())
	assert.Equal(t, "", cfg.GetXGMDevice())
}

func TestLoadTuningConfigRejectsBadFiles(t *testing.T) {
	t.Parallel()

	_, err := LoadTuningConfig("tuning.yaml")
	assert.Error(t, err, "wrong extension")

	_, err = LoadTuningConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err, "missing file")

	_, err = LoadTuningConfig(writeConfig(t, `{not json`))
	assert.Error(t, err, "malformed json")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	bad := func(content string) {
		t.Helper()
		_, err := LoadTuningConfig(writeConfig(t, content))
		assert.Error(t, err, content)
	}

	bad(`{"timeout": "not-a-duration"}`)
	bad(`{"queue_size": 0}`)
	bad(`{"moving_avg_window": 0}`)
	bad(`{"threshold_lo": 5, "threshold_hi": 1}`)
	bad(`{"pump_probe_mode": "both_trains"}`)
	bad(`{"azimuthal_points": 1}`)
	bad(`{"correlations": [{"deviceId": "m", "property": "p", "resolution": -1}]}`)
	bad(`{"rois": [null, null, null, null, null]}`)
}

func TestToShared(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `{
		"moving_avg_window": 4,
		"threshold_lo": -1,
		"threshold_hi": 100,
		"background": 3.5,
		"pump_probe_mode": "same_train",
		"on_pulses": [0, 2],
		"off_pulses": [1, 3],
		"abs_difference": true,
		"fom_source": "roi2",
		"rois": [{"x": 0, "y": 0, "w": 10, "h": 10}],
		"correlations": [{"deviceId": "motor", "property": "position", "resolution": 0.5}],
		"azimuthal_enabled": true,
		"azimuthal_center_x": 64,
		"azimuthal_center_y": 64,
		"azimuthal_points": 128
	}`)

	cfg, err := LoadTuningConfig(path)
	require.NoError(t, err)

	shared := cfg.ToShared()
	assert.Equal(t, 4, shared.MovingAverageWindow)
	assert.Equal(t, -1.0, shared.ThresholdLo)
	assert.Equal(t, 100.0, shared.ThresholdHi)
	assert.Equal(t, 3.5, shared.Background)
	assert.Equal(t, model.PPModeSameTrain, shared.PPMode)
	assert.Equal(t, []int{0, 2}, shared.PPOnIndices)
	assert.Equal(t, []int{1, 3}, shared.PPOffIndices)
	assert.True(t, shared.PPAbsDifference)
	assert.Equal(t, "roi2", shared.CorrelationSource)
	require.NotNil(t, shared.ROIs[0])
	assert.Equal(t, 10, shared.ROIs[0].W)
	require.NotNil(t, shared.Correlations[0])
	assert.Equal(t, 0.5, shared.Correlations[0].Resolution)
	assert.True(t, shared.AzimuthalEnabled)
	assert.Equal(t, 128, shared.Azimuthal.Points)
}

func TestToSharedDefaults(t *testing.T) {
	t.Parallel()

	shared := EmptyTuningConfig().ToShared()
	assert.Equal(t, 1, shared.MovingAverageWindow)
	assert.Equal(t, model.PPModeUndefined, shared.PPMode)
	assert.Equal(t, 0.0, shared.Background)
	assert.False(t, shared.AzimuthalEnabled)
	assert.Equal(t, "roi1", shared.CorrelationSource)
}

func TestLoadTuningConfigMemoryFS(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	require.NoError(t, mem.WriteFile("etc/tuning.json", []byte(`{"queue_size": 8}`), 0o644))

	orig := fs
	fs = mem
	t.Cleanup(func() { fs = orig })

	cfg, err := LoadTuningConfig("etc/tuning.json")
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.GetQueueSize())
}
