package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
)

type Config struct {
	Port string
	// Site is the public host of this service, e.g. "localhost:8080".
	Site string

	// Essay source
	GitHubAPIURL string
	GHAcct       string
	GHRepo       string
	GHRef        string
	GHToken      string
	ContentRoot  string

	// Knowledge graph
	WikidataSPARQLURL string
	JSTORSPARQLURL    string

	// Manifest service
	ManifestServiceURL string
	ManifestWorkers    int

	// Cache
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	HTTPTimeout      time.Duration
	TransformTimeout time.Duration
	RunTTL           time.Duration

	LogLevel string
}

// fileConfig is the YAML shape of ESSAYIST_CONFIG. Durations are strings
// in time.ParseDuration form.
type fileConfig struct {
	Port               string `yaml:"port"`
	Site               string `yaml:"site"`
	GitHubAPIURL       string `yaml:"github_api_url"`
	GHAcct             string `yaml:"gh_acct"`
	GHRepo             string `yaml:"gh_repo"`
	GHRef              string `yaml:"gh_ref"`
	GHToken            string `yaml:"gh_token"`
	ContentRoot        string `yaml:"content_root"`
	WikidataSPARQLURL  string `yaml:"wikidata_sparql_url"`
	JSTORSPARQLURL     string `yaml:"jstor_sparql_url"`
	ManifestServiceURL string `yaml:"manifest_service_url"`
	ManifestWorkers    int    `yaml:"manifest_workers"`
	RedisAddr          string `yaml:"redis_addr"`
	RedisPassword      string `yaml:"redis_password"`
	RedisDB            int    `yaml:"redis_db"`
	CacheTTL           string `yaml:"cache_ttl"`
	HTTPTimeout        string `yaml:"http_timeout"`
	TransformTimeout   string `yaml:"transform_timeout"`
	RunTTL             string `yaml:"run_ttl"`
	LogLevel           string `yaml:"log_level"`
}

func defaults() Config {
	return Config{
		Port:               "8080",
		GitHubAPIURL:       "https://api.github.com",
		GHRef:              "main",
		WikidataSPARQLURL:  "https://query.wikidata.org/sparql",
		JSTORSPARQLURL:     "https://kg-query.jstor.org/proxy/wdqs/bigdata/namespace/wdq/sparql",
		ManifestServiceURL: "https://iiif-v2.visual-essays.app/manifest/",
		ManifestWorkers:    10,
		CacheTTL:           7 * 24 * time.Hour,
		HTTPTimeout:        30 * time.Second,
		TransformTimeout:   2 * time.Minute,
		RunTTL:             1 * time.Hour,
		LogLevel:           "info",
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// ESSAYIST_CONFIG if set, then environment variables.
func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("ESSAYIST_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := cfg.applyFile(data); err != nil {
			return cfg, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg = Config{
		Port: envOr("PORT", cfg.Port),
		Site: envOr("SITE", cfg.Site),

		GitHubAPIURL: envOr("GITHUB_API_URL", cfg.GitHubAPIURL),
		GHAcct:       envOr("GH_ACCT", cfg.GHAcct),
		GHRepo:       envOr("GH_REPO", cfg.GHRepo),
		GHRef:        envOr("GH_REF", cfg.GHRef),
		GHToken:      envOr("GH_TOKEN", cfg.GHToken),
		ContentRoot:  envOr("CONTENT_ROOT", cfg.ContentRoot),

		WikidataSPARQLURL: envOr("WIKIDATA_SPARQL_URL", cfg.WikidataSPARQLURL),
		JSTORSPARQLURL:    envOr("JSTOR_SPARQL_URL", cfg.JSTORSPARQLURL),

		ManifestServiceURL: envOr("MANIFEST_SERVICE_URL", cfg.ManifestServiceURL),
		ManifestWorkers:    envInt("MANIFEST_WORKERS", cfg.ManifestWorkers),

		RedisAddr:     envOr("REDIS_ADDR", cfg.RedisAddr),
		RedisPassword: envOr("REDIS_PASSWORD", cfg.RedisPassword),
		RedisDB:       envInt("REDIS_DB", cfg.RedisDB),
		CacheTTL:      envDuration("CACHE_TTL", cfg.CacheTTL),

		HTTPTimeout:      envDuration("HTTP_TIMEOUT", cfg.HTTPTimeout),
		TransformTimeout: envDuration("TRANSFORM_TIMEOUT", cfg.TransformTimeout),
		RunTTL:           envDuration("RUN_TTL", cfg.RunTTL),

		LogLevel: envOr("LOG_LEVEL", cfg.LogLevel),
	}

	if cfg.ManifestWorkers <= 0 {
		cfg.ManifestWorkers = 10
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.TransformTimeout <= 0 {
		cfg.TransformTimeout = 2 * time.Minute
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 1 * time.Hour
	}

	return cfg, nil
}

// applyFile overlays the non-zero values of a YAML document. Unknown keys
// are rejected.
func (c *Config) applyFile(data []byte) error {
	var f fileConfig
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.Strict()); err != nil {
		return err
	}

	setString(&c.Port, f.Port)
	setString(&c.Site, f.Site)
	setString(&c.GitHubAPIURL, f.GitHubAPIURL)
	setString(&c.GHAcct, f.GHAcct)
	setString(&c.GHRepo, f.GHRepo)
	setString(&c.GHRef, f.GHRef)
	setString(&c.GHToken, f.GHToken)
	setString(&c.ContentRoot, f.ContentRoot)
	setString(&c.WikidataSPARQLURL, f.WikidataSPARQLURL)
	setString(&c.JSTORSPARQLURL, f.JSTORSPARQLURL)
	setString(&c.ManifestServiceURL, f.ManifestServiceURL)
	setString(&c.RedisAddr, f.RedisAddr)
	setString(&c.RedisPassword, f.RedisPassword)
	setString(&c.LogLevel, f.LogLevel)
	if f.ManifestWorkers != 0 {
		c.ManifestWorkers = f.ManifestWorkers
	}
	if f.RedisDB != 0 {
		c.RedisDB = f.RedisDB
	}

	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"cache_ttl", f.CacheTTL, &c.CacheTTL},
		{"http_timeout", f.HTTPTimeout, &c.HTTPTimeout},
		{"transform_timeout", f.TransformTimeout, &c.TransformTimeout},
		{"run_ttl", f.RunTTL, &c.RunTTL},
	} {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if (c.GHAcct == "") != (c.GHRepo == "") {
		return fmt.Errorf("GH_ACCT and GH_REPO must be set together")
	}
	if c.WikidataSPARQLURL == "" {
		return fmt.Errorf("WIKIDATA_SPARQL_URL is required")
	}
	if c.RedisDB < 0 {
		return fmt.Errorf("REDIS_DB must not be negative")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// SPARQLEndpoints maps knowledge namespaces to their endpoints.
func (c Config) SPARQLEndpoints() map[string]string {
	endpoints := map[string]string{"wd": c.WikidataSPARQLURL}
	if c.JSTORSPARQLURL != "" {
		endpoints["jstor"] = c.JSTORSPARQLURL
	}
	return endpoints
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
