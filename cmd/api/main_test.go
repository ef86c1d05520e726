package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutout/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		HTTPAddr:        "127.0.0.1:0",
		DatabaseURL:     "file:api_" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared",
		StoreDriver:     config.StoreGorm,
		UploadBackend:   config.UploadLocal,
		UploadDir:       t.TempDir(),
		ProcessDispatch: config.DispatchNone,
		ProcessWorkers:  1,
		ProcessMaxSide:  256,
	}
}

func TestRun_StartupFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(t *testing.T, cfg *config.Config)
		wantErr string
	}{
		{
			name: "upload dir is a file",
			mutate: func(t *testing.T, cfg *config.Config) {
				path := filepath.Join(t.TempDir(), "taken")
				require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
				cfg.UploadDir = filepath.Join(path, "uploads")
			},
			wantErr: "init app",
		},
		{
			name:    "unknown dispatch mode",
			mutate:  func(t *testing.T, cfg *config.Config) { cfg.ProcessDispatch = "carrier-pigeon" },
			wantErr: "init dispatcher",
		},
		{
			name: "bad sweep schedule",
			mutate: func(t *testing.T, cfg *config.Config) {
				cfg.SweepSchedule = "every now and then"
				cfg.SweepStaleAfter = 1
			},
			wantErr: "init sweeper",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(t, cfg)

			err := run(context.Background(), cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, run(ctx, testConfig(t)))
}
