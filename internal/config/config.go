// Package config loads the pagecorpus command configuration from defaults,
// an optional YAML file, a .env file and PAGECORPUS_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. PAGECORPUS_DATASET_ROOT.
const EnvPrefix = "PAGECORPUS"

// Config is the full command configuration.
type Config struct {
	Dataset    DatasetConfig    `mapstructure:"dataset" yaml:"dataset"`
	Corpus     CorpusConfig     `mapstructure:"corpus" yaml:"corpus"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding" yaml:"embedding"`
	Similarity SimilarityConfig `mapstructure:"similarity" yaml:"similarity"`
	Suggest    SuggestConfig    `mapstructure:"suggest" yaml:"suggest"`
	Split      SplitConfig      `mapstructure:"split" yaml:"split"`
	Publish    PublishConfig    `mapstructure:"publish" yaml:"publish"`
	Log        LogConfig        `mapstructure:"log" yaml:"log"`
}

// DatasetConfig locates the curated dataset.
type DatasetConfig struct {
	Root string `mapstructure:"root" yaml:"root"`
	// Version pins a dataset version. Zero opens the newest.
	Version     int    `mapstructure:"version" yaml:"version"`
	WatchAlias  bool   `mapstructure:"watch_aliases" yaml:"watch_aliases"`
	CorpusIndex string `mapstructure:"corpus_index" yaml:"corpus_index"`
}

// CorpusConfig drives build-corpus.
type CorpusConfig struct {
	GroundTruthDir string            `mapstructure:"ground_truth_dir" yaml:"ground_truth_dir"`
	PDFDir         string            `mapstructure:"pdf_dir" yaml:"pdf_dir"`
	OutputDir      string            `mapstructure:"output_dir" yaml:"output_dir"`
	MaxDocs        int               `mapstructure:"max_docs" yaml:"max_docs"`
	TopTerms       int               `mapstructure:"top_terms" yaml:"top_terms"`
	HeaderTopRatio float64           `mapstructure:"header_top_ratio" yaml:"header_top_ratio"`
	Concurrency    int               `mapstructure:"concurrency" yaml:"concurrency"`
	Registry       string            `mapstructure:"registry" yaml:"registry"`
	FamilyMap      map[string]string `mapstructure:"family_map" yaml:"family_map"`
}

// EmbeddingConfig configures the embedding collaborator and pipeline.
type EmbeddingConfig struct {
	// Command is run once per page with the image path as last argument and
	// prints the vector as a JSON array. Empty disables embedding.
	Command     []string      `mapstructure:"command" yaml:"command"`
	Model       string        `mapstructure:"model" yaml:"model"`
	Dim         int           `mapstructure:"dim" yaml:"dim"`
	Compression string        `mapstructure:"compression" yaml:"compression"`
	Workers     int           `mapstructure:"workers" yaml:"workers"`
	QueueSize   int           `mapstructure:"queue_size" yaml:"queue_size"`
	RateLimit   float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst       int           `mapstructure:"burst" yaml:"burst"`
	Attempts    uint          `mapstructure:"attempts" yaml:"attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
}

// SimilarityConfig tunes the similarity index.
type SimilarityConfig struct {
	Candidates int `mapstructure:"candidates" yaml:"candidates"`
	EF         int `mapstructure:"ef" yaml:"ef"`
	M          int `mapstructure:"m" yaml:"m"`
}

// SuggestConfig tunes the reranker.
type SuggestConfig struct {
	TopK            int     `mapstructure:"top_k" yaml:"top_k"`
	AutoLabelBoost  float32 `mapstructure:"auto_label_boost" yaml:"auto_label_boost"`
	PageNumberBoost float32 `mapstructure:"page_number_boost" yaml:"page_number_boost"`
	ContinuityBoost float32 `mapstructure:"continuity_boost" yaml:"continuity_boost"`
}

// SplitConfig controls the document-level split written with manifests.
type SplitConfig struct {
	Train float64 `mapstructure:"train" yaml:"train"`
	Val   float64 `mapstructure:"val" yaml:"val"`
	Test  float64 `mapstructure:"test" yaml:"test"`
	Seed  int64   `mapstructure:"seed" yaml:"seed"`
}

// PublishConfig selects the blob store versions are published to.
type PublishConfig struct {
	// Backend is one of local, s3 or minio. Empty disables publishing.
	Backend     string      `mapstructure:"backend" yaml:"backend"`
	Images      bool        `mapstructure:"images" yaml:"images"`
	Concurrency int         `mapstructure:"concurrency" yaml:"concurrency"`
	Local       LocalConfig `mapstructure:"local" yaml:"local"`
	S3          S3Config    `mapstructure:"s3" yaml:"s3"`
	MinIO       MinIOConfig `mapstructure:"minio" yaml:"minio"`
}

// LocalConfig publishes into a directory.
type LocalConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// S3Config publishes into an S3 bucket. With PointerTable set, the published
// version pointer lives in DynamoDB.
type S3Config struct {
	Bucket       string `mapstructure:"bucket" yaml:"bucket"`
	Prefix       string `mapstructure:"prefix" yaml:"prefix"`
	Region       string `mapstructure:"region" yaml:"region"`
	PointerTable string `mapstructure:"pointer_table" yaml:"pointer_table"`
	Dataset      string `mapstructure:"dataset" yaml:"dataset"`
}

// MinIOConfig publishes into an S3-compatible server.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	Region    string `mapstructure:"region" yaml:"region"`
	Secure    bool   `mapstructure:"secure" yaml:"secure"`
}

// LogConfig configures the command logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Dataset: DatasetConfig{Root: "dataset"},
		Corpus: CorpusConfig{
			GroundTruthDir: "ground_truth",
			PDFDir:         "pdfs",
			OutputDir:      "corpus",
			TopTerms:       50,
			HeaderTopRatio: 0.15,
			Concurrency:    4,
			FamilyMap:      map[string]string{},
		},
		Embedding: EmbeddingConfig{
			Model:       "default",
			Compression: "zstd",
			Workers:     2,
			QueueSize:   256,
			Burst:       1,
			Attempts:    3,
			RetryDelay:  200 * time.Millisecond,
			CallTimeout: 30 * time.Second,
		},
		Similarity: SimilarityConfig{Candidates: 10, EF: 64, M: 16},
		Suggest: SuggestConfig{
			TopK:            5,
			AutoLabelBoost:  0.03,
			PageNumberBoost: 0.02,
			ContinuityBoost: 0.02,
		},
		Split:   SplitConfig{Train: 0.8, Val: 0.1, Test: 0.1, Seed: 42},
		Publish: PublishConfig{Concurrency: 8, S3: S3Config{Dataset: "pagecorpus"}, MinIO: MinIOConfig{Secure: true}},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks values viper cannot check for us.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Dataset.Root) == "" {
		errs = append(errs, errors.New("dataset.root is required"))
	}

	if c.Dataset.Version < 0 {
		errs = append(errs, errors.New("dataset.version must be >= 0"))
	}

	if c.Embedding.Dim < 0 {
		errs = append(errs, errors.New("embedding.dim must be >= 0"))
	}

	switch c.Publish.Backend {
	case "", "local", "s3", "minio":
	default:
		errs = append(errs, fmt.Errorf("publish.backend %q is not one of local, s3, minio", c.Publish.Backend))
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of text, json", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Manager loads the configuration and reloads it when the file changes.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
}

// NewManager loads .env (when present), the config file and environment
// overrides. An empty cfgFile searches ./pagecorpus.yaml and
// $HOME/.pagecorpus/config.yaml; a missing file is not an error.
func NewManager(cfgFile string) (*Manager, error) {
	// .env is optional
	_ = godotenv.Load()

	m := &Manager{v: viper.New()}

	if err := m.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := m.load()
	if err != nil {
		return nil, err
	}

	m.config = cfg

	return m, nil
}

func (m *Manager) initViper(cfgFile string) error {
	v := m.v

	defaults := map[string]any{}
	if err := decodeYAML(DefaultConfig(), &defaults); err != nil {
		return err
	}

	flat := map[string]any{}
	flatten("", defaults, flat)

	for key, value := range flat {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pagecorpus")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.pagecorpus")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

func (m *Manager) load() (*Config, error) {
	var cfg Config
	if err := m.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.resolveEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Viper exposes the underlying viper instance, e.g. to bind command flags.
func (m *Manager) Viper() *viper.Viper { return m.v }

// ConfigFileUsed returns the file the configuration was read from, if any.
func (m *Manager) ConfigFileUsed() string { return m.v.ConfigFileUsed() }

// Reload re-reads the viper state, picking up flags bound after NewManager.
func (m *Manager) Reload() (*Config, error) {
	cfg, err := m.load()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	return cfg, nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.config
}

// OnChange registers a callback for config changes.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callbacks = append(m.callbacks, fn)
}

// WatchConfig reloads the configuration when the config file changes.
// Invalid edits are ignored and the previous configuration stays active.
func (m *Manager) WatchConfig() {
	m.v.OnConfigChange(func(fsnotify.Event) {
		cfg, err := m.load()
		if err != nil {
			return
		}

		m.mu.Lock()
		m.config = cfg
		callbacks := make([]func(*Config), len(m.callbacks))
		copy(callbacks, m.callbacks)
		m.mu.Unlock()

		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	m.v.WatchConfig()
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}

	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// resolveEnv expands credentials given as ${ENV_VAR}.
func (c *Config) resolveEnv() {
	c.Publish.MinIO.AccessKey = ResolveEnvVars(c.Publish.MinIO.AccessKey)
	c.Publish.MinIO.SecretKey = ResolveEnvVars(c.Publish.MinIO.SecretKey)
}

// WriteDefault writes the default configuration to path. An existing file is
// kept unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}

	cfg := DefaultConfig()
	cfg.Publish.MinIO.AccessKey = "${MINIO_ACCESS_KEY}"
	cfg.Publish.MinIO.SecretKey = "${MINIO_SECRET_KEY}"

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# pagecorpus configuration
# Every key can be overridden with PAGECORPUS_<SECTION>_<KEY>, e.g. PAGECORPUS_DATASET_ROOT.
# Credentials use ${ENV_VAR} syntax and may be kept in a .env file.

`)

	return os.WriteFile(path, append(header, data...), 0o644)
}

// decodeYAML round-trips v through YAML so nested structs become maps keyed
// by their yaml tags.
func decodeYAML(v any, out *map[string]any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, out)
}

// mapValued lists keys whose value is a map rather than a section.
var mapValued = map[string]bool{"corpus.family_map": true}

// flatten turns nested sections into dotted viper keys so every leaf can be
// overridden from the environment.
func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}

		if nested, ok := v.(map[string]any); ok && !mapValued[key] {
			flatten(key, nested, out)
			continue
		}

		out[key] = v
	}
}
