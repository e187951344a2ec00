package main

import (
	"testing"

	"github.com/beamline-data/trainproc/internal/config"
)

// TestFlagDefaults verifies the flag defaults match the documented
// behavior: config path points at the canonical defaults file and the
// override flags are empty so the config file wins.
func TestFlagDefaults(t *testing.T) {
	if *configPath != config.DefaultConfigPath {
		t.Errorf("expected -config default %q, got %q", config.DefaultConfigPath, *configPath)
	}
	if *endpoint != "" {
		t.Errorf("expected -endpoint default to be empty, got %q", *endpoint)
	}
	if *dbFile != "" {
		t.Errorf("expected -db default to be empty, got %q", *dbFile)
	}
	if *listen != "" {
		t.Errorf("expected -listen default to be empty, got %q", *listen)
	}
	if *verbose {
		t.Error("expected -verbose default to be false")
	}
}
