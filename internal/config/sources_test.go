package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSourcesFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadSourcesMergesDefaults(t *testing.T) {
	path := writeSourcesFile(t, `
sources:
  - code: hoogvliet
    name: Hoogvliet
    pageSize: 36
    maxPages: 10
    captureRaw: true
    fetchDetails: false
    pageDelay: 1s
    categoryRules:
      zuivel-123: Zuivel
  - code: dirk
    name: Dirk
`)

	cfg, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 2)

	hv := cfg.Get("hoogvliet")
	assert.Equal(t, 36, hv.PageSize)
	assert.Equal(t, 10, hv.MaxPages)
	assert.True(t, hv.CaptureRaw)
	assert.False(t, hv.DetailsEnabled())
	assert.Equal(t, time.Second, hv.PageDelay)
	assert.Equal(t, 12, hv.Workers, "unset fields fall back to defaults")
	assert.Equal(t, 4, hv.MaxAttempts)
	assert.Equal(t, 20*time.Second, hv.Timeout)
	assert.Equal(t, 6*time.Hour, hv.RunInterval)

	dirk := cfg.Get("dirk")
	assert.Equal(t, 24, dirk.PageSize)
	assert.Equal(t, 250*time.Millisecond, dirk.PageDelay)
	assert.True(t, dirk.DetailsEnabled(), "omitted fetchDetails stays enabled")
	assert.Empty(t, dirk.CategoryRules)
}

func TestLoadSourcesMissingFile(t *testing.T) {
	cfg, err := LoadSources(filepath.Join(t.TempDir(), "sources.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Sources)
}

func TestLoadSourcesDuplicateCode(t *testing.T) {
	path := writeSourcesFile(t, `
sources:
  - code: demo
    name: Demo
  - code: demo
    name: Demo Again
`)

	_, err := LoadSources(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate source code")
}

func TestLoadSourcesMissingCode(t *testing.T) {
	path := writeSourcesFile(t, `
sources:
  - name: Anonymous
`)

	_, err := LoadSources(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without code")
}

func TestGetUnknownCodeReturnsDefaults(t *testing.T) {
	var cfg SourcesConfig

	sc := cfg.Get("nergens")
	assert.Equal(t, "nergens", sc.Code)
	assert.Equal(t, DefaultSourceConfig().PageSize, sc.PageSize)
	assert.True(t, sc.DetailsEnabled())
}

func TestCategoryRulesCollection(t *testing.T) {
	cfg := SourcesConfig{Sources: []SourceConfig{
		{Code: "a", CategoryRules: map[string]string{"x": "Zuivel"}},
		{Code: "b"},
	}}

	rules := cfg.CategoryRules()
	require.Len(t, rules, 1)
	assert.Equal(t, "Zuivel", rules["a"]["x"])
}
