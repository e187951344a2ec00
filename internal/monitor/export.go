package monitor

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/beamline-data/trainproc/internal/fsutil"
	"github.com/beamline-data/trainproc/internal/httputil"
	"github.com/beamline-data/trainproc/internal/security"
	"github.com/beamline-data/trainproc/internal/train/history"
	"github.com/beamline-data/trainproc/internal/train/model"
)

// exportFS is swapped for an in-memory filesystem in tests.
var exportFS fsutil.FileSystem = fsutil.OSFileSystem{}

// exportDir anchors all exports under the temp directory so an arbitrary
// file parameter cannot write elsewhere.
var exportDir = os.TempDir()

// safeExportPath builds an absolute path for a user-supplied file name.
// Only the base name is used, sanitized, and the result is validated
// against the export directory.
func safeExportPath(userPath string) (string, error) {
	if userPath == "" {
		return "", fmt.Errorf("empty export file name")
	}
	base := security.SanitizeFilename(filepath.Base(userPath))
	if base == "." || base == ".." || base == "" {
		return "", fmt.Errorf("invalid export file name %q", userPath)
	}
	joined := filepath.Join(exportDir, base)
	if err := security.ValidateExportPath(joined); err != nil {
		return "", fmt.Errorf("invalid export path: %w", err)
	}
	return joined, nil
}

// handleExport writes a history buffer to a CSV file on the server host.
// Query params:
//   - what: "roi", "pumpprobe" or "correlation"
//   - idx:  slot index for roi/correlation (default 0)
//   - file: output file name, created under the temp directory
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, "POST")
		return
	}

	var snap history.Snapshot
	what := r.URL.Query().Get("what")
	switch what {
	case "roi":
		idx, err := queryIndex(r, "idx", model.MaxROIs)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		snap, err = s.manager.ROIHistory(idx - 1)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
	case "pumpprobe":
		snap = s.manager.PumpProbeHistory()
	case "correlation":
		idx, err := queryIndex(r, "idx", model.MaxCorrelations)
		if err != nil {
			httputil.BadRequest(w, err.Error())
			return
		}
		var ok bool
		snap, ok = s.manager.Correlation(idx)
		if !ok {
			httputil.NotFound(w, "correlation slot not registered")
			return
		}
	default:
		httputil.BadRequest(w, fmt.Sprintf("unknown export target %q", what))
		return
	}

	path, err := safeExportPath(r.URL.Query().Get("file"))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	data, err := snapshotCSV(snap)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	if err := exportFS.WriteFile(path, data, 0o644); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to write export: %v", err))
		return
	}

	opsf("exported %s history (%d rows) to %s", what, len(snap.X), path)
	httputil.OK(w, map[string]any{"path": path, "rows": len(snap.X)})
}

func snapshotCSV(snap history.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)

	withStats := len(snap.Count) > 0 && len(snap.Count) == len(snap.X)
	header := []string{"x", "y"}
	if withStats {
		header = append(header, "count", "lower", "upper")
	}
	if err := cw.Write(header); err != nil {
		return nil, err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	for i := range snap.X {
		row := []string{f(snap.X[i]), f(snap.Y[i])}
		if withStats {
			row = append(row, strconv.Itoa(snap.Count[i]), f(snap.Lower[i]), f(snap.Upper[i]))
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}
