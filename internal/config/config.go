// Package config holds the taxa configuration and its viper loader.
//
// Precedence, highest first: command-line flags, TAXA_* environment
// variables, the config file, DefaultConfig.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/agentic-research/taxa/internal/hierarchy"
	"github.com/agentic-research/taxa/internal/reconcile"
	"github.com/agentic-research/taxa/internal/taxon"
)

// EnvPrefix prefixes environment overrides, e.g. TAXA_STORE_DSN.
const EnvPrefix = "TAXA"

type Config struct {
	Store StoreConfig `mapstructure:"store" yaml:"store"`
	// Languages lists the accepted common-name languages. Empty accepts all.
	Languages []string `mapstructure:"languages" yaml:"languages,omitempty"`
	// Language receives names of inputs that carry a single name column.
	Language  string          `mapstructure:"language" yaml:"language"`
	Assemble  AssembleConfig  `mapstructure:"assemble" yaml:"assemble"`
	Reconcile ReconcileConfig `mapstructure:"reconcile" yaml:"reconcile"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

type StoreConfig struct {
	Driver string      `mapstructure:"driver" yaml:"driver"`
	DSN    string      `mapstructure:"dsn" yaml:"dsn"`
	Cache  CacheConfig `mapstructure:"cache" yaml:"cache"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

type AssembleConfig struct {
	Sequence        string `mapstructure:"sequence" yaml:"sequence"`
	Factor          int64  `mapstructure:"factor" yaml:"factor"`
	Baseline        int64  `mapstructure:"baseline" yaml:"baseline"`
	ChangeDetection string `mapstructure:"change_detection" yaml:"change_detection"`
	Profile         string `mapstructure:"profile" yaml:"profile"`
	ProfilesFile    string `mapstructure:"profiles_file" yaml:"profiles_file"`
	Encoding        string `mapstructure:"encoding" yaml:"encoding"`
	// Root is "rank:Latin", e.g. "kl:Aves". Empty derives the root from
	// the input.
	Root string `mapstructure:"root" yaml:"root"`
}

type ReconcileConfig struct {
	Mode           string `mapstructure:"mode" yaml:"mode"`
	Renumber       bool   `mapstructure:"renumber" yaml:"renumber"`
	SkipSubspecies bool   `mapstructure:"skip_subspecies" yaml:"skip_subspecies"`
	ReportUnlisted bool   `mapstructure:"report_unlisted" yaml:"report_unlisted"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	Quiet bool   `mapstructure:"quiet" yaml:"quiet"`
	File  string `mapstructure:"file" yaml:"file"`
}

func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
			DSN:    "taxa.db",
			Cache:  CacheConfig{Enabled: true, TTL: 5 * time.Minute},
		},
		Language: "en",
		Assemble: AssembleConfig{
			Sequence:        "sequential",
			Factor:          0,
			Baseline:        0,
			ChangeDetection: "marker",
			Profile:         "lines",
			Encoding:        "utf-8",
		},
		Reconcile: ReconcileConfig{Mode: "validate"},
		Log:       LogConfig{Level: "info"},
	}
}

// DefaultPath is $HOME/.taxa/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, ".taxa", "config.yaml"), nil
}

// SetDefaults registers every key of DefaultConfig with v so environment
// variables can override keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("store.driver", d.Store.Driver)
	v.SetDefault("store.dsn", d.Store.DSN)
	v.SetDefault("store.cache.enabled", d.Store.Cache.Enabled)
	v.SetDefault("store.cache.ttl", d.Store.Cache.TTL)
	v.SetDefault("languages", d.Languages)
	v.SetDefault("language", d.Language)
	v.SetDefault("assemble.sequence", d.Assemble.Sequence)
	v.SetDefault("assemble.factor", d.Assemble.Factor)
	v.SetDefault("assemble.baseline", d.Assemble.Baseline)
	v.SetDefault("assemble.change_detection", d.Assemble.ChangeDetection)
	v.SetDefault("assemble.profile", d.Assemble.Profile)
	v.SetDefault("assemble.profiles_file", d.Assemble.ProfilesFile)
	v.SetDefault("assemble.encoding", d.Assemble.Encoding)
	v.SetDefault("assemble.root", d.Assemble.Root)
	v.SetDefault("reconcile.mode", d.Reconcile.Mode)
	v.SetDefault("reconcile.renumber", d.Reconcile.Renumber)
	v.SetDefault("reconcile.skip_subspecies", d.Reconcile.SkipSubspecies)
	v.SetDefault("reconcile.report_unlisted", d.Reconcile.ReportUnlisted)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.quiet", d.Log.Quiet)
	v.SetDefault("log.file", d.Log.File)
}

// Setup prepares v: defaults, environment binding and the config file.
// An explicit file must exist; otherwise $HOME/.taxa/config.yaml and then
// ./taxa.yaml are tried and their absence is not an error.
func Setup(v *viper.Viper, file string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file == "" {
		file = discover()
		if file == "" {
			return nil
		}
	}
	v.SetConfigFile(file)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config %s: %w", file, err)
	}
	return nil
}

func discover() string {
	var candidates []string
	if p, err := DefaultPath(); err == nil {
		candidates = append(candidates, p)
	}
	candidates = append(candidates, "taxa.yaml")
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

// Decode unmarshals the effective configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is Setup followed by Decode on a fresh viper instance.
func Load(file string) (*Config, error) {
	v := viper.New()
	if err := Setup(v, file); err != nil {
		return nil, err
	}
	return Decode(v)
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "sqlite", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver))
	}
	if _, err := c.AssemblerOptions(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.ReconcileOptions(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AssemblerOptions converts the assemble section.
func (c *Config) AssemblerOptions() (hierarchy.Options, error) {
	opts := hierarchy.Options{
		Factor:    c.Assemble.Factor,
		Baseline:  c.Assemble.Baseline,
		Languages: c.Languages,
	}
	policy, err := hierarchy.ParseSequencePolicy(c.Assemble.Sequence)
	if err != nil {
		return opts, fmt.Errorf("assemble.sequence: %w", err)
	}
	opts.Policy = policy
	switch strings.ToLower(c.Assemble.ChangeDetection) {
	case "", "marker":
		opts.Detection = hierarchy.MarkerBased
	case "equality":
		opts.Detection = hierarchy.EqualityBased
	default:
		return opts, fmt.Errorf("assemble.change_detection: unknown value %q", c.Assemble.ChangeDetection)
	}
	if c.Assemble.Root != "" {
		root, err := ParseRoot(c.Assemble.Root)
		if err != nil {
			return opts, fmt.Errorf("assemble.root: %w", err)
		}
		opts.Root = root
	}
	return opts, nil
}

// ReconcileOptions converts the reconcile section.
func (c *Config) ReconcileOptions() (reconcile.Options, error) {
	mode, err := reconcile.ParseMode(c.Reconcile.Mode)
	if err != nil {
		return reconcile.Options{}, fmt.Errorf("reconcile.mode: %w", err)
	}
	return reconcile.Options{
		Mode:           mode,
		Renumber:       c.Reconcile.Renumber,
		SkipSubspecies: c.Reconcile.SkipSubspecies,
		Languages:      c.Languages,
		ReportUnlisted: c.Reconcile.ReportUnlisted,
	}, nil
}

// ParseRoot parses "rank:Latin" into a fresh root node.
func ParseRoot(s string) (*taxon.Node, error) {
	code, latin, ok := strings.Cut(s, ":")
	latin = strings.TrimSpace(latin)
	if !ok || latin == "" {
		return nil, fmt.Errorf("root %q is not rank:Latin", s)
	}
	rank, err := taxon.ParseRank(code)
	if err != nil {
		return nil, err
	}
	return taxon.NewNode(rank, latin), nil
}

// YAML renders c as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return out, nil
}
