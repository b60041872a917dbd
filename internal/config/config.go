package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/searchkit/internal/engine"
)

// ProjectConfigName is the per-project configuration file name.
const ProjectConfigName = ".searchkit.yaml"

// Config represents the complete SearchKit configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	Index       IndexConfig       `yaml:"index" json:"index"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Annotate    AnnotateConfig    `yaml:"annotate" json:"annotate"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Server      ServerConfig      `yaml:"server" json:"server"`
}

// IndexConfig selects the engine and how documents are analyzed.
// These values only take effect when an index is created; an existing
// index keeps the properties it was created with.
type IndexConfig struct {
	// Backend is the engine adapter: "bleve" (default) or "sqlite".
	Backend string `yaml:"backend" json:"backend"`

	// Type is the index topology: "inverted", "vector" or "inverted_vector".
	Type string `yaml:"type" json:"type"`

	// Proximity enables phrase and proximity queries.
	Proximity bool `yaml:"proximity" json:"proximity"`

	// StopWords are ignored at index and query time.
	StopWords []string `yaml:"stop_words" json:"stop_words"`

	// MinTermLength drops shorter terms. 0 keeps everything.
	MinTermLength int `yaml:"min_term_length" json:"min_term_length"`

	// Path is the on-disk index location, relative to the project root.
	Path string `yaml:"path" json:"path"`
}

// SearchConfig configures progressive search defaults.
type SearchConfig struct {
	// Limit is the number of results requested per chunk.
	Limit int `yaml:"limit" json:"limit"`

	// Timeout bounds each chunk (e.g., "1s").
	Timeout string `yaml:"timeout" json:"timeout"`

	// SpaceMeansOR joins bare terms with OR instead of AND.
	SpaceMeansOR bool `yaml:"space_means_or" json:"space_means_or"`
}

// AnnotateConfig configures line matching and excerpts.
type AnnotateConfig struct {
	ContextChars int    `yaml:"context_chars" json:"context_chars"`
	Mode         string `yaml:"mode" json:"mode"` // "all" or "first"
	CacheSize    int    `yaml:"cache_size" json:"cache_size"`
}

// PerformanceConfig configures performance tuning options.
type PerformanceConfig struct {
	IndexWorkers  int    `yaml:"index_workers" json:"index_workers"`
	MaxFileSize   int64  `yaml:"max_file_size" json:"max_file_size"`
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
	CompactIdle   string `yaml:"compact_idle" json:"compact_idle"`
}

// PathsConfig configures which paths are skipped during folder ingestion.
type PathsConfig struct {
	Exclude        []string `yaml:"exclude" json:"exclude"`
	FollowSymlinks bool     `yaml:"follow_symlinks" json:"follow_symlinks"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// defaultExcludePatterns are always excluded.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/*.min.js",
	"**/*.min.css",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Backend:       engine.BackendBleve,
			Type:          string(engine.TypeInverted),
			Proximity:     true,
			StopWords:     []string{},
			MinTermLength: 0,
			Path:          filepath.Join(".searchkit", "index"),
		},
		Search: SearchConfig{
			Limit:   10,
			Timeout: "1s",
		},
		Annotate: AnnotateConfig{
			ContextChars: 60,
			Mode:         "all",
			CacheSize:    256,
		},
		Performance: PerformanceConfig{
			IndexWorkers:  runtime.NumCPU(),
			MaxFileSize:   10 * 1024 * 1024,
			WatchDebounce: "500ms",
			CompactIdle:   "30s",
		},
		Paths: PathsConfig{
			Exclude: append([]string(nil), defaultExcludePatterns...),
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/searchkit/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/searchkit/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "searchkit", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "searchkit", "config.yaml")
	}
	return filepath.Join(home, ".config", "searchkit", "config.yaml")
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := parsed.decodeYAML(configPath); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/searchkit/config.yaml)
//  3. Project config (.searchkit.yaml in dir)
//  4. Environment variables (SEARCHKIT_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .searchkit.yaml or .searchkit.yml.
func (c *Config) loadFromFile(dir string) error {
	if path := ProjectConfigPath(dir); path != "" {
		return c.loadYAML(path)
	}
	return nil
}

// LoadFile returns the defaults overlaid with the single file at path,
// without user config or environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ProjectConfigPath returns the project config file in dir, or "" when
// there is none.
func ProjectConfigPath(dir string) string {
	for _, name := range []string{ProjectConfigName, ".searchkit.yml"} {
		if p := filepath.Join(dir, name); fileExists(p) {
			return p
		}
	}
	return ""
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	var parsed Config
	if err := parsed.decodeYAML(path); err != nil {
		return err
	}
	c.mergeWith(&parsed)
	return nil
}

func (c *Config) decodeYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
// Booleans can only be switched on by a file; env vars can switch them off.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Index
	if other.Index.Backend != "" {
		c.Index.Backend = other.Index.Backend
	}
	if other.Index.Type != "" {
		c.Index.Type = other.Index.Type
	}
	if other.Index.Proximity {
		c.Index.Proximity = true
	}
	if len(other.Index.StopWords) > 0 {
		c.Index.StopWords = other.Index.StopWords
	}
	if other.Index.MinTermLength > 0 {
		c.Index.MinTermLength = other.Index.MinTermLength
	}
	if other.Index.Path != "" {
		c.Index.Path = other.Index.Path
	}

	// Search
	if other.Search.Limit > 0 {
		c.Search.Limit = other.Search.Limit
	}
	if other.Search.Timeout != "" {
		c.Search.Timeout = other.Search.Timeout
	}
	if other.Search.SpaceMeansOR {
		c.Search.SpaceMeansOR = true
	}

	// Annotate
	if other.Annotate.ContextChars > 0 {
		c.Annotate.ContextChars = other.Annotate.ContextChars
	}
	if other.Annotate.Mode != "" {
		c.Annotate.Mode = other.Annotate.Mode
	}
	if other.Annotate.CacheSize > 0 {
		c.Annotate.CacheSize = other.Annotate.CacheSize
	}

	// Performance
	if other.Performance.IndexWorkers > 0 {
		c.Performance.IndexWorkers = other.Performance.IndexWorkers
	}
	if other.Performance.MaxFileSize > 0 {
		c.Performance.MaxFileSize = other.Performance.MaxFileSize
	}
	if other.Performance.WatchDebounce != "" {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}
	if other.Performance.CompactIdle != "" {
		c.Performance.CompactIdle = other.Performance.CompactIdle
	}

	// Paths
	if len(other.Paths.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Paths.Exclude = appendUnique(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if other.Paths.FollowSymlinks {
		c.Paths.FollowSymlinks = true
	}

	// Server
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies SEARCHKIT_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SEARCHKIT_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("SEARCHKIT_INDEX_TYPE"); v != "" {
		c.Index.Type = v
	}
	if v := os.Getenv("SEARCHKIT_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("SEARCHKIT_PROXIMITY"); v != "" {
		c.Index.Proximity = parseBool(v)
	}
	if v := os.Getenv("SEARCHKIT_STOP_WORDS"); v != "" {
		c.Index.StopWords = splitList(v)
	}
	if v := os.Getenv("SEARCHKIT_MIN_TERM_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Index.MinTermLength = n
		}
	}

	if v := os.Getenv("SEARCHKIT_SEARCH_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Search.Limit = n
		}
	}
	if v := os.Getenv("SEARCHKIT_SEARCH_TIMEOUT"); v != "" {
		c.Search.Timeout = v
	}
	if v := os.Getenv("SEARCHKIT_SPACE_MEANS_OR"); v != "" {
		c.Search.SpaceMeansOR = parseBool(v)
	}

	if v := os.Getenv("SEARCHKIT_ANNOTATE_MODE"); v != "" {
		c.Annotate.Mode = v
	}
	if v := os.Getenv("SEARCHKIT_INDEX_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Performance.IndexWorkers = n
		}
	}

	if v := os.Getenv("SEARCHKIT_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("SEARCHKIT_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Index.Backend) {
	case engine.BackendBleve, engine.BackendSQLite:
	default:
		return fmt.Errorf("index.backend must be 'bleve' or 'sqlite', got %s", c.Index.Backend)
	}

	if _, err := engine.ParseIndexType(c.Index.Type); err != nil {
		return fmt.Errorf("index.type: %w", err)
	}
	if c.Index.MinTermLength < 0 {
		return fmt.Errorf("index.min_term_length must be non-negative, got %d", c.Index.MinTermLength)
	}

	if c.Search.Limit <= 0 {
		return fmt.Errorf("search.limit must be positive, got %d", c.Search.Limit)
	}
	if _, err := parsePositiveDuration(c.Search.Timeout); err != nil {
		return fmt.Errorf("search.timeout: %w", err)
	}

	if c.Annotate.Mode != "all" && c.Annotate.Mode != "first" {
		return fmt.Errorf("annotate.mode must be 'all' or 'first', got %s", c.Annotate.Mode)
	}
	if c.Annotate.ContextChars < 0 {
		return fmt.Errorf("annotate.context_chars must be non-negative, got %d", c.Annotate.ContextChars)
	}

	if c.Performance.IndexWorkers <= 0 {
		return fmt.Errorf("performance.index_workers must be positive, got %d", c.Performance.IndexWorkers)
	}
	if _, err := parsePositiveDuration(c.Performance.WatchDebounce); err != nil {
		return fmt.Errorf("performance.watch_debounce: %w", err)
	}
	if _, err := parsePositiveDuration(c.Performance.CompactIdle); err != nil {
		return fmt.Errorf("performance.compact_idle: %w", err)
	}

	for _, pattern := range c.Paths.Exclude {
		if _, err := filepath.Match(strings.ReplaceAll(pattern, "**", "*"), ""); err != nil {
			return fmt.Errorf("paths.exclude: bad pattern %q: %w", pattern, err)
		}
	}

	if strings.ToLower(c.Server.Transport) != "stdio" {
		return fmt.Errorf("server.transport must be 'stdio', got %s", c.Server.Transport)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// Properties returns the engine properties used when creating a new index.
func (c *Config) Properties() engine.Properties {
	indexType, err := engine.ParseIndexType(c.Index.Type)
	if err != nil {
		indexType = engine.TypeInverted
	}
	return engine.Properties{
		Type:          indexType,
		Proximity:     c.Index.Proximity,
		StopWords:     append([]string(nil), c.Index.StopWords...),
		MinTermLength: c.Index.MinTermLength,
		Backend:       strings.ToLower(c.Index.Backend),
	}
}

// SearchTimeout returns the parsed per-chunk timeout.
func (c *Config) SearchTimeout() time.Duration {
	d, err := parsePositiveDuration(c.Search.Timeout)
	if err != nil {
		return time.Second
	}
	return d
}

// WatchDebounce returns the parsed watcher debounce interval.
func (c *Config) WatchDebounce() time.Duration {
	d, err := parsePositiveDuration(c.Performance.WatchDebounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// CompactIdle returns how long the watcher waits after the last change before compacting.
func (c *Config) CompactIdle() time.Duration {
	d, err := parsePositiveDuration(c.Performance.CompactIdle)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// IndexPath resolves the index path against root.
func (c *Config) IndexPath(root string) string {
	if filepath.IsAbs(c.Index.Path) {
		return c.Index.Path
	}
	return filepath.Join(root, c.Index.Path)
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindProjectRoot finds the project root directory.
// It looks for a .searchkit.yaml/.yml file or a .git directory by walking up the tree.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ProjectConfigName)) ||
			fileExists(filepath.Join(currentDir, ".searchkit.yml")) {
			return currentDir, nil
		}
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}

// splitList splits a comma-separated env value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func appendUnique(dst []string, values ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, v := range dst {
		seen[v] = struct{}{}
	}
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		dst = append(dst, v)
	}
	return dst
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
