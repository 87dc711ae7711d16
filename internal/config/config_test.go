package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOrCreateWritesDefaults(t *testing.T) {
	root := t.TempDir()

	cfg, err := LoadOrCreate(root)
	require.NoError(t, err)

	_, err = os.Stat(Path(root))
	require.NoError(t, err, "config.yml should be created")

	assert.Equal(t, Default().Discovery.MaxFiles, cfg.Discovery.MaxFiles)
	assert.Equal(t, 30*time.Second, cfg.Lock.StaleAfter)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	root := t.TempDir()
	path := Path(root)
	data := `
discovery:
  maxDepth: 5
quality:
  minConfidence: 0.6
lock:
  maxWait: 2s
modules:
  - name: components
    paths: ["src/components/**"]
    importPath: "@/components"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Discovery.MaxDepth)
	assert.Equal(t, 5000, cfg.Discovery.MaxFiles, "unset fields keep defaults")
	assert.Equal(t, 0.6, cfg.Quality.MinConfidence)
	assert.Equal(t, 2*time.Second, cfg.Lock.MaxWait)
	require.Len(t, cfg.Modules, 1)
	assert.Equal(t, "@/components", cfg.Modules[0].ImportPath)
}

func TestLoadRejectsInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("discovery: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no environment variables keeps values",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, Default().Quality.MinConfidence, cfg.Quality.MinConfidence)
			},
		},
		{
			name: "overrides thresholds and durations",
			envVars: map[string]string{
				"LLKB_MIN_CONFIDENCE":        "0.65",
				"LLKB_LOCK_MAX_WAIT":         "10s",
				"LLKB_SOURCE_DIRS":           "src,web",
				"LLKB_PASSIVE_SIGNALS":       "false",
				"LLKB_HISTORY_DAYS":          "30",
				"LLKB_MAX_DEPTH":             "8",
				"LLKB_CACHE_MAX_FILES":       "100",
				"LLKB_EXPORT_MIN_CONFIDENCE": "0.8",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0.65, cfg.Quality.MinConfidence)
				assert.Equal(t, 10*time.Second, cfg.Lock.MaxWait)
				assert.Equal(t, []string{"src", "web"}, cfg.Discovery.SourceDirs)
				assert.False(t, cfg.Discovery.PassiveSignals)
				assert.Equal(t, 30, cfg.Retention.HistoryDays)
				assert.Equal(t, 8, cfg.Discovery.MaxDepth)
				assert.Equal(t, 100, cfg.Cache.MaxFiles)
				assert.Equal(t, 0.8, cfg.Export.MinConfidence)
			},
		},
		{
			name:    "invalid float",
			envVars: map[string]string{"LLKB_MIN_CONFIDENCE": "high"},
			wantErr: true,
		},
		{
			name:    "out of range value fails validation",
			envVars: map[string]string{"LLKB_MIN_CONFIDENCE": "1.5"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := Default()
			err := ApplyEnv(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"depth zero", func(c *Config) { c.Discovery.MaxDepth = 0 }},
		{"batch percent too large", func(c *Config) { c.Cache.EvictionBatchPercent = 150 }},
		{"min above ceiling", func(c *Config) { c.Quality.MinConfidence = 0.99 }},
		{"wait shorter than retry", func(c *Config) { c.Lock.MaxWait = time.Millisecond }},
		{"unknown sort", func(c *Config) { c.Injection.SortBy = "random" }},
		{"module missing import path", func(c *Config) {
			c.Modules = []ModuleRule{{Name: "x", Paths: []string{"src/**"}}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
