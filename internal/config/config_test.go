package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
transmitter:
  type: serial
  serial:
    device: ${IRLIGHTD_TEST_DEVICE:/dev/ttyACM0}
lights:
  - id: living
    kind: stepwise
  - id: bedroom
    name: Bedroom ceiling
    kind: stepwise
    channel: 2
    brightness_curve: "x ** 2.2"
  - id: desk
    kind: boxlight
reconciler:
  periodic_interval: 1m
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, TransmitterSerial, cfg.Transmitter.Type)
	assert.Equal(t, "/dev/ttyACM0", cfg.Transmitter.Serial.Device)
	assert.Equal(t, 115200, cfg.Transmitter.Serial.Baud)
	assert.Equal(t, 2*time.Second, cfg.Transmitter.Serial.ReadTimeout.Duration())

	require.Len(t, cfg.Lights, 3)
	assert.Equal(t, 1, cfg.Lights[0].Channel)
	assert.Equal(t, 2, cfg.Lights[1].Channel)
	assert.Equal(t, "Bedroom ceiling", cfg.Lights[1].DisplayName())
	assert.Equal(t, "desk", cfg.Lights[2].DisplayName())

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "./irlightd.sqlite", cfg.Database.Path)
	assert.Equal(t, time.Minute, cfg.Reconciler.PeriodicInterval.Duration())
	assert.Equal(t, 2.0, cfg.Reconciler.RateLimitRPS)
	assert.Equal(t, 30, cfg.Ledger.RetentionDays)
	assert.Equal(t, "0.0.0.0:8080", cfg.API.Addr())
	assert.Equal(t, 9090, cfg.Healthcheck.Port)
	assert.Equal(t, 4, cfg.EventBus.Workers)
	assert.Equal(t, 5*time.Second, cfg.GetShutdownTimeout())

	l, ok := cfg.Light("bedroom")
	assert.True(t, ok)
	assert.Equal(t, "x ** 2.2", l.BrightnessCurve)
	_, ok = cfg.Light("garage")
	assert.False(t, ok)
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("IRLIGHTD_TEST_DEVICE", "/dev/ttyUSB3")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB3", cfg.Transmitter.Serial.Device)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown_kind", "lights:\n  - id: a\n    kind: rgb\n"},
		{"missing_id", "lights:\n  - kind: stepwise\n"},
		{"bad_channel", "lights:\n  - id: a\n    kind: stepwise\n    channel: 3\n"},
		{"bad_curve", "lights:\n  - id: a\n    kind: stepwise\n    brightness_curve: \"x +\"\n"},
		{"curve_unknown_var", "lights:\n  - id: a\n    kind: stepwise\n    brightness_curve: \"y * 2\"\n"},
		{"unknown_transmitter", "transmitter:\n  type: infrared\n"},
		{"http_without_url", "transmitter:\n  type: http\n"},
		{"bad_port", "api:\n  port: 70000\n"},
		{"bad_log_level", "log:\n  level: loud\n"},
		{"bad_duration", "shutdown_timeout: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestParse_DuplicateLight(t *testing.T) {
	_, err := Parse([]byte("lights:\n  - id: a\n    kind: stepwise\n  - id: a\n    kind: boxlight\n"))
	assert.ErrorIs(t, err, ErrDuplicateLight)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Lights, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
