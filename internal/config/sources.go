package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SourceConfig is the per-retailer ingestion tuning. One entry per source
// code; anything unset falls back to the defaults below.
type SourceConfig struct {
	Code         string `mapstructure:"code"`
	Name         string `mapstructure:"name"`
	Abbreviation string `mapstructure:"abbreviation"`
	LogoURL      string `mapstructure:"logoUrl"`
	BrandColor   string `mapstructure:"brandColor"`

	SearchTerm string `mapstructure:"searchTerm"`
	PageSize   int    `mapstructure:"pageSize"`
	MaxPages   int    `mapstructure:"maxPages"` // 0 = no ceiling
	Workers    int    `mapstructure:"workers"`
	// FetchDetails is a pointer so an omitted yaml key keeps the default
	// (enabled) instead of collapsing to false.
	FetchDetails *bool         `mapstructure:"fetchDetails"`
	PageDelay    time.Duration `mapstructure:"pageDelay"`
	DetailDelay  time.Duration `mapstructure:"detailDelay"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxAttempts  int           `mapstructure:"maxAttempts"`
	CaptureRaw   bool          `mapstructure:"captureRaw"`

	// CategoryRules maps raw store category codes or names onto the
	// internal taxonomy.
	CategoryRules map[string]string `mapstructure:"categoryRules"`

	RunInterval time.Duration `mapstructure:"runInterval"`
}

// CategoryRules collects the per-source mapping tables keyed by source code.
func (c SourcesConfig) CategoryRules() map[string]map[string]string {
	rules := make(map[string]map[string]string, len(c.Sources))
	for _, s := range c.Sources {
		if len(s.CategoryRules) > 0 {
			rules[s.Code] = s.CategoryRules
		}
	}
	return rules
}

// SourcesConfig holds all configured sources, keyed by source code.
type SourcesConfig struct {
	Sources []SourceConfig `mapstructure:"sources"`
}

func DefaultSourceConfig() SourceConfig {
	return SourceConfig{
		SearchTerm:  "producten",
		PageSize:    24,
		MaxPages:    0,
		Workers:     12,
		PageDelay:   250 * time.Millisecond,
		DetailDelay: 100 * time.Millisecond,
		Timeout:     20 * time.Second,
		MaxAttempts: 4,
		CaptureRaw:  false,
		RunInterval: 6 * time.Hour,
	}
}

// DetailsEnabled reports whether per-item detail fetching is on; unset
// means enabled.
func (s SourceConfig) DetailsEnabled() bool {
	if s.FetchDetails == nil {
		return true
	}
	return *s.FetchDetails
}

// LoadSources reads sources.yaml via viper. A missing file is not an error:
// callers get an empty set and sources register themselves with defaults.
func LoadSources(path string) (SourcesConfig, error) {
	v := viper.New()

	v.SetConfigName("sources")
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("/etc/shelfscout")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SHELFSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			return SourcesConfig{}, nil
		}
		return SourcesConfig{}, err
	}

	var cfg SourcesConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return SourcesConfig{}, err
	}
	for i := range cfg.Sources {
		cfg.Sources[i] = cfg.Sources[i].withDefaults()
	}
	if err := validateSources(cfg); err != nil {
		return SourcesConfig{}, err
	}
	return cfg, nil
}

// Get returns the configuration for a source code, or defaults when the
// source has no entry.
func (c SourcesConfig) Get(code string) SourceConfig {
	for _, s := range c.Sources {
		if s.Code == code {
			return s
		}
	}
	sc := DefaultSourceConfig()
	sc.Code = code
	return sc
}

func (s SourceConfig) withDefaults() SourceConfig {
	defaults := DefaultSourceConfig()
	if s.SearchTerm == "" {
		s.SearchTerm = defaults.SearchTerm
	}
	if s.PageSize <= 0 {
		s.PageSize = defaults.PageSize
	}
	if s.Workers <= 0 {
		s.Workers = defaults.Workers
	}
	if s.PageDelay <= 0 {
		s.PageDelay = defaults.PageDelay
	}
	if s.DetailDelay <= 0 {
		s.DetailDelay = defaults.DetailDelay
	}
	if s.Timeout <= 0 {
		s.Timeout = defaults.Timeout
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = defaults.MaxAttempts
	}
	if s.RunInterval <= 0 {
		s.RunInterval = defaults.RunInterval
	}
	return s
}

func validateSources(cfg SourcesConfig) error {
	seen := make(map[string]struct{}, len(cfg.Sources))
	for _, s := range cfg.Sources {
		code := strings.TrimSpace(s.Code)
		if code == "" {
			return fmt.Errorf("source entry without code")
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("duplicate source code %q", code)
		}
		seen[code] = struct{}{}
	}
	return nil
}
