package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Veraticus/tandem/internal/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, yaml string) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	if yaml != "" {
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(strings.NewReader(yaml)))
	}
	return v
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newViper(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 3, cfg.Import.DuplicateWindowDays)
	assert.InDelta(t, 0.6, cfg.Import.MatchThreshold, 0.0001)
	assert.InDelta(t, 0.9, cfg.Import.AutoSkipThreshold, 0.0001)
	assert.Equal(t, 90, cfg.Import.HistoryDays)
	assert.Equal(t, "sqlite", cfg.Queue.Backend)
	assert.Equal(t, 3, cfg.Queue.MaxRetries)
	assert.Equal(t, 168*time.Hour, cfg.Queue.MaxAge)
	assert.True(t, cfg.Queue.SortByPriority)
	assert.True(t, cfg.Queue.Backoff)
	assert.True(t, cfg.Queue.AutoProcess)
	assert.Equal(t, 15*time.Second, cfg.Network.Interval)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.True(t, filepath.IsAbs(cfg.Database.Path) || strings.HasPrefix(cfg.Database.Path, "~"))
}

func TestLoad_Overrides(t *testing.T) {
	cfg, err := Load(newViper(t, `
cache:
  ttl: 5m
import:
  duplicate_window_days: 7
  match_threshold: 0.7
queue:
  backend: BOLT
  max_retries: 5
  backoff: false
uploads:
  bucket: receipts
`))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 7, cfg.Import.DuplicateWindowDays)
	assert.InDelta(t, 0.7, cfg.Import.MatchThreshold, 0.0001)
	assert.Equal(t, "bolt", cfg.Queue.Backend)
	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.False(t, cfg.Queue.Backoff)
	assert.Equal(t, "receipts", cfg.Uploads.Bucket)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "zero ttl", yaml: "cache:\n  ttl: 0s\n", want: "cache.ttl"},
		{name: "threshold range", yaml: "import:\n  match_threshold: 1.5\n", want: "thresholds"},
		{name: "auto skip below match", yaml: "import:\n  auto_skip_threshold: 0.5\n", want: "auto_skip_threshold"},
		{name: "backend", yaml: "queue:\n  backend: redis\n", want: "queue.backend"},
		{name: "retries", yaml: "queue:\n  max_retries: 0\n", want: "queue.max_retries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.yaml))
			require.ErrorIs(t, err, common.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("TANDEM_TEST_DIR", "/srv/tandem")

	tests := []struct {
		in   string
		want string
	}{
		{in: "", want: ""},
		{in: "~", want: home},
		{in: "~/data/tandem.db", want: filepath.Join(home, "data/tandem.db")},
		{in: "$TANDEM_TEST_DIR/queue.db", want: "/srv/tandem/queue.db"},
		{in: "/abs/path", want: "/abs/path"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}
