// Package config provides configuration management for the CLI.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/encoding/ini"
	"github.com/spf13/viper"
	"github.com/zeebo/blake3"

	"github.com/greysquirr3l/codeguardian-go/internal/cache"
	"github.com/greysquirr3l/codeguardian-go/internal/version"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CODEGUARDIAN"

// ErrInvalidConfig is wrapped by every Validate error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the global configuration.
type Config struct {
	// Worker band for the parallelism controller.
	MinWorkers     int `mapstructure:"min_workers"`
	MaxWorkers     int `mapstructure:"max_workers"`
	InitialWorkers int `mapstructure:"initial_workers"`

	MemoryLimitMB        int `mapstructure:"memory_limit_mb"`
	StreamingThresholdMB int `mapstructure:"streaming_threshold_mb"`
	// StreamingChunkKB overrides the derived large-file chunk size when
	// positive.
	StreamingChunkKB int `mapstructure:"streaming_chunk_kb"`
	MatcherChunkKB   int `mapstructure:"matcher_chunk_kb"`
	IOLimitMBps      int `mapstructure:"io_limit_mbps"`

	MonitorInterval    time.Duration `mapstructure:"monitor_interval"`
	AdjustmentInterval time.Duration `mapstructure:"adjustment_interval"`

	PatternCacheEntries int           `mapstructure:"pattern_cache_entries"`
	PatternCacheMaxAge  time.Duration `mapstructure:"pattern_cache_max_age"`
	PatternCachePolicy  string        `mapstructure:"pattern_cache_policy"`

	ResultCacheEntries  int     `mapstructure:"result_cache_entries"`
	ResultCacheMemoryMB int     `mapstructure:"result_cache_memory_mb"`
	ResultCacheTTLHours float64 `mapstructure:"result_cache_ttl_hours"`

	// ExtraPatterns are regex rules, "name=regex" or bare "regex".
	ExtraPatterns []string `mapstructure:"extra_patterns"`

	// File discovery.
	IncludeAll      bool     `mapstructure:"include_all"`
	IncludePatterns []string `mapstructure:"include_patterns"`
	ExcludePatterns []string `mapstructure:"exclude_patterns"`
	MaxFileSizeMB   int      `mapstructure:"max_file_size_mb"`
	FollowSymlinks  bool     `mapstructure:"follow_symlinks"`

	// CacheDirectory is where the result cache snapshot is kept.
	CacheDirectory string `mapstructure:"cache_directory"`

	// CacheEnabled enables result cache persistence between runs.
	CacheEnabled bool `mapstructure:"cache"`

	Debug   bool `mapstructure:"debug"`
	Verbose bool `mapstructure:"verbose"`
	Quiet   bool `mapstructure:"quiet"`
	NoColor bool `mapstructure:"no_color"`

	// ConfigFile is the path to the configuration file (set at runtime).
	ConfigFile string `mapstructure:"-"`
}

// DefaultMaxWorkers is twice the core count, capped at 16.
func DefaultMaxWorkers() int {
	return min(runtime.NumCPU()*2, 16)
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	maxWorkers := DefaultMaxWorkers()
	cacheDir, err := cache.DefaultCacheDir()
	if err != nil {
		cacheDir = filepath.Join(os.TempDir(), "codeguardian")
	}

	return &Config{
		MinWorkers:           1,
		MaxWorkers:           maxWorkers,
		InitialWorkers:       max(maxWorkers/2, 1),
		MemoryLimitMB:        512,
		StreamingThresholdMB: 5,
		MatcherChunkKB:       64,
		MonitorInterval:      2 * time.Second,
		AdjustmentInterval:   5 * time.Second,
		PatternCacheEntries:  500,
		PatternCacheMaxAge:   time.Hour,
		PatternCachePolicy:   "lru",
		ResultCacheEntries:   1000,
		ResultCacheMemoryMB:  100,
		ResultCacheTTLHours:  24,
		CacheDirectory:       cacheDir,
		CacheEnabled:         true,
	}
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "codeguardian", "codeguardian.ini")
}

// keys returns every configuration key with its default value.
func keys(d *Config) map[string]interface{} {
	return map[string]interface{}{
		"min_workers":            d.MinWorkers,
		"max_workers":            d.MaxWorkers,
		"initial_workers":        d.InitialWorkers,
		"memory_limit_mb":        d.MemoryLimitMB,
		"streaming_threshold_mb": d.StreamingThresholdMB,
		"streaming_chunk_kb":     d.StreamingChunkKB,
		"matcher_chunk_kb":       d.MatcherChunkKB,
		"io_limit_mbps":          d.IOLimitMBps,
		"monitor_interval":       d.MonitorInterval,
		"adjustment_interval":    d.AdjustmentInterval,
		"pattern_cache_entries":  d.PatternCacheEntries,
		"pattern_cache_max_age":  d.PatternCacheMaxAge,
		"pattern_cache_policy":   d.PatternCachePolicy,
		"result_cache_entries":   d.ResultCacheEntries,
		"result_cache_memory_mb": d.ResultCacheMemoryMB,
		"result_cache_ttl_hours": d.ResultCacheTTLHours,
		"extra_patterns":         d.ExtraPatterns,
		"include_all":            d.IncludeAll,
		"include_patterns":       d.IncludePatterns,
		"exclude_patterns":       d.ExcludePatterns,
		"max_file_size_mb":       d.MaxFileSizeMB,
		"follow_symlinks":        d.FollowSymlinks,
		"cache_directory":        d.CacheDirectory,
		"cache":                  d.CacheEnabled,
		"debug":                  d.Debug,
		"verbose":                d.Verbose,
		"quiet":                  d.Quiet,
		"no_color":               d.NoColor,
	}
}

// Load loads configuration from all sources in priority order:
// 1. Command-line flags (applied by the caller)
// 2. Environment variables (CODEGUARDIAN_*)
// 3. Config file, including keys in its [DEFAULT] section
// 4. Defaults
//
// A missing default config file is not an error; a missing explicit one is.
func Load(configFile string) (*Config, error) {
	codecRegistry := viper.NewCodecRegistry()
	if err := codecRegistry.RegisterCodec("ini", ini.Codec{}); err != nil {
		return nil, fmt.Errorf("registering INI codec: %w", err)
	}

	v := viper.NewWithOptions(
		viper.WithCodecRegistry(codecRegistry),
	)

	known := keys(DefaultConfig())
	for key, value := range known {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// NO_COLOR is a cross-tool convention.
	if os.Getenv("NO_COLOR") != "" {
		v.Set("no_color", true)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("ini")
	} else {
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".config", "codeguardian"))
		v.AddConfigPath(".")
		v.SetConfigName("codeguardian")
		v.SetConfigType("ini")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// The INI codec reports [DEFAULT] keys as "default.<key>". Promote them
	// unless the top level or the environment already provides the key.
	for key := range known {
		sectioned := "default." + key
		if !v.InConfig(sectioned) || v.InConfig(key) {
			continue
		}
		if _, inEnv := os.LookupEnv(EnvPrefix + "_" + strings.ToUpper(key)); inEnv {
			continue
		}
		v.Set(key, v.Get(sectioned))
	}

	if os.Getenv(EnvPrefix+"_DEBUG_CONFIG") != "" {
		fmt.Fprintf(os.Stderr, "[DEBUG] Config file used: %s\n", v.ConfigFileUsed())
		fmt.Fprintf(os.Stderr, "[DEBUG] All settings: %v\n", v.AllSettings())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ExtraPatterns = splitList(cfg.ExtraPatterns)
	cfg.IncludePatterns = splitList(cfg.IncludePatterns)
	cfg.ExcludePatterns = splitList(cfg.ExcludePatterns)
	cfg.CacheDirectory = ExpandPath(cfg.CacheDirectory)
	cfg.ConfigFile = v.ConfigFileUsed()

	return &cfg, nil
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks that the settings are usable.
func (c *Config) Validate() error {
	var problems []string
	if c.MinWorkers < 1 {
		problems = append(problems, "min_workers must be at least 1")
	}
	if c.MaxWorkers < c.MinWorkers {
		problems = append(problems, "max_workers must not be below min_workers")
	}
	if c.InitialWorkers < 0 {
		problems = append(problems, "initial_workers must not be negative")
	}
	if c.MemoryLimitMB <= 0 {
		problems = append(problems, "memory_limit_mb must be positive")
	}
	if c.StreamingThresholdMB <= 0 {
		problems = append(problems, "streaming_threshold_mb must be positive")
	}
	if c.StreamingChunkKB < 0 || c.MatcherChunkKB < 0 || c.IOLimitMBps < 0 || c.MaxFileSizeMB < 0 {
		problems = append(problems, "sizes and limits must not be negative")
	}
	if c.MonitorInterval <= 0 {
		problems = append(problems, "monitor_interval must be positive")
	}
	if c.AdjustmentInterval < 0 {
		problems = append(problems, "adjustment_interval must not be negative")
	}
	if c.PatternCacheEntries <= 0 || c.ResultCacheEntries <= 0 {
		problems = append(problems, "cache entry limits must be positive")
	}
	if c.ResultCacheMemoryMB <= 0 {
		problems = append(problems, "result_cache_memory_mb must be positive")
	}
	if c.Debug && c.Quiet {
		problems = append(problems, "debug and quiet are mutually exclusive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Hash digests every setting that changes what the analyzer reports,
// together with the program version. Cached results are only reused
// under an identical hash.
func (c *Config) Hash() string {
	h := blake3.New()
	write := func(parts ...string) {
		for _, p := range parts {
			_, _ = h.Write([]byte(strconv.Itoa(len(p)) + ":" + p))
		}
	}

	write("codeguardian-config", version.GetVersion())
	write("extra_patterns", strconv.Itoa(len(c.ExtraPatterns)))
	write(c.ExtraPatterns...)

	return hex.EncodeToString(h.Sum(nil)[:16])
}

// ExpandPath expands ~ in paths to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
