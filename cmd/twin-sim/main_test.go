package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalsfoundry/flight-twin/internal/config"
	"github.com/signalsfoundry/flight-twin/internal/logging"
)

func TestRunWritesReport(t *testing.T) {
	cfg := config.Default()
	cfg.Risk.TrainingSamples = 300
	dir := filepath.Join(t.TempDir(), "report")

	var out bytes.Buffer
	err := run(context.Background(), &cfg, options{
		Seed:         7,
		Updates:      60,
		AnomalyStart: 30,
		Cruise:       75,
		OutputDir:    dir,
	}, logging.Noop(), &out)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}

	text := out.String()
	for _, want := range []string{"Mission ", "REFERENCE_QUAD", "updates:        60", "Risk events published:"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
	for _, name := range []string{"summary.txt", "risk.png", "altitude.png", "path.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("report file %s: %v", name, err)
		}
	}
}

func TestRunRejectsBadOptions(t *testing.T) {
	cfg := config.Default()
	tests := []options{
		{Updates: 1},
		{Updates: 10, AnomalyStart: 11},
		{Updates: 10, AnomalyStart: -1},
	}
	for _, opts := range tests {
		if err := run(context.Background(), &cfg, opts, logging.Noop(), &bytes.Buffer{}); err == nil {
			t.Fatalf("run(%+v) error = nil, want error", opts)
		}
	}
}
