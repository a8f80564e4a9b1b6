// Package config loads exporter configuration from a YAML file, with
// environment variable and command-line flag overrides, following the
// layered-override style of the RDMA exporter this module started from.
package config

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListenAddress      = ":9436"
	defaultMetricsPath        = "/metrics"
	defaultHealthPath         = "/health"
	defaultLogLevel           = "info"
	defaultCollectionInterval = 30 * time.Second
	defaultScrapeTimeout      = 10 * time.Second
)

// RouterTarget is one fleet member as expressed in the YAML config file.
type RouterTarget struct {
	Name     string `yaml:"name"`
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// fileConfig is the YAML file's top-level shape.
type fileConfig struct {
	ListenAddress      string         `yaml:"listen_address"`
	CollectionInterval string         `yaml:"collection_interval"`
	Targets            []RouterTarget `yaml:"targets"`
}

// Config captures the fully resolved runtime configuration.
type Config struct {
	ListenAddress      string
	MetricsPath        string
	HealthPath         string
	LogLevel           slog.Level
	CollectionInterval time.Duration
	ScrapeTimeout      time.Duration
	Targets            []RouterTarget
	ShowVersion        bool
}

// Load constructs a Config from a YAML file named by --config (or the
// ROUTEROS_EXPORTER_CONFIG environment variable), then applies command-line
// flag overrides for the server-level settings. The target list can only
// come from the file: a flag-only representation of an arbitrarily sized
// fleet is impractical.
func Load(args []string) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("routeros_exporter", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configPath := fs.String("config", envOrDefault("ROUTEROS_EXPORTER_CONFIG", "config.yaml"), "Path to the YAML targets file.")
	listen := fs.String("listen-address", envOrDefault("ROUTEROS_EXPORTER_LISTEN_ADDRESS", defaultListenAddress), "Address to listen on for HTTP requests.")
	metricsPath := fs.String("metrics-path", envOrDefault("ROUTEROS_EXPORTER_METRICS_PATH", defaultMetricsPath), "HTTP path under which metrics are served.")
	healthPath := fs.String("health-path", envOrDefault("ROUTEROS_EXPORTER_HEALTH_PATH", defaultHealthPath), "HTTP path for fleet health status.")
	logLevel := fs.String("log-level", envOrDefault("ROUTEROS_EXPORTER_LOG_LEVEL", defaultLogLevel), "Log level (debug, info, warn, error).")
	interval := fs.Duration("collection-interval", defaultCollectionInterval, "How often to poll the fleet.")
	scrapeTimeout := fs.Duration("scrape-timeout", defaultScrapeTimeout, "Per-target collection timeout.")
	showVersion := fs.Bool("version", false, "Print version information and exit.")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return cfg, err
		}
		return cfg, fmt.Errorf("parse flags: %w", err)
	}

	level, err := parseLogLevel(*logLevel)
	if err != nil {
		return cfg, err
	}

	cfg = Config{
		ListenAddress:      *listen,
		MetricsPath:        *metricsPath,
		HealthPath:         *healthPath,
		LogLevel:           level,
		CollectionInterval: *interval,
		ScrapeTimeout:      *scrapeTimeout,
		ShowVersion:        *showVersion,
	}
	if cfg.ShowVersion {
		return cfg, nil
	}

	file, err := loadFile(*configPath)
	if err != nil {
		return cfg, err
	}
	cfg.Targets = file.Targets

	if file.ListenAddress != "" && !flagWasSet(fs, "listen-address") && envOrDefault("ROUTEROS_EXPORTER_LISTEN_ADDRESS", "") == "" {
		cfg.ListenAddress = file.ListenAddress
	}
	if file.CollectionInterval != "" && !flagWasSet(fs, "collection-interval") {
		d, err := time.ParseDuration(file.CollectionInterval)
		if err != nil {
			return cfg, fmt.Errorf("config file: invalid collection_interval %q: %w", file.CollectionInterval, err)
		}
		cfg.CollectionInterval = d
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string) (fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("read config file %q: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fileConfig{}, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return fc, nil
}

func flagWasSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// validate rejects malformed targets (duplicate or missing name, missing
// address/user). An empty target list is a valid, if idle, configuration:
// the host may run with zero targets, in which case /metrics simply
// renders an empty body.
func validate(cfg Config) error {
	seen := make(map[string]struct{}, len(cfg.Targets))
	for _, t := range cfg.Targets {
		if t.Name == "" {
			return errors.New("config: target name must not be empty")
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("config: duplicate target name %q", t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.Address == "" {
			return fmt.Errorf("config: target %q: address must not be empty", t.Name)
		}
		if t.User == "" {
			return fmt.Errorf("config: target %q: user must not be empty", t.Name)
		}
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", value)
	}
}
