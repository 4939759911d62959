// Package config loads the aggregation job configuration.
//
// A job is described by one YAML file; every field has a default so an empty
// file (or no file) reproduces the layout the training workflow writes:
// local models under Local_model/Local_model_json/ and the global model under
// Global_model/.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendMinio = "minio"
)

// Sources selects the local model documents.
type Sources struct {
	// Pattern is a glob relative to the storage root; ** matches across
	// directories.
	Pattern string `yaml:"pattern"`
	// Verify runs every source through the native encoder before merging.
	Verify bool `yaml:"verify"`
}

// Output names the documents written by a run.
type Output struct {
	JSON   string `yaml:"json"`
	Binary string `yaml:"binary"`
}

// Storage selects where sources are read from and outputs written to.
type Storage struct {
	Backend   string `yaml:"backend"`
	Root      string `yaml:"root"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Merge holds merge options.
type Merge struct {
	Strict            bool `yaml:"strict"`
	PreserveStructure bool `yaml:"preserve_structure"`
}

// Native configures the native library call.
type Native struct {
	Enabled bool          `yaml:"enabled"`
	Command []string      `yaml:"command"`
	Timeout time.Duration `yaml:"timeout"`
}

// Log configures logging.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is one aggregation job.
type Config struct {
	Sources     Sources `yaml:"sources"`
	Output      Output  `yaml:"output"`
	Storage     Storage `yaml:"storage"`
	Merge       Merge   `yaml:"merge"`
	Native      Native  `yaml:"native"`
	Parallelism int     `yaml:"parallelism"`
	Log         Log     `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Sources: Sources{
			Pattern: "Local_model/Local_model_json/XGB_train_set_*.json",
		},
		Output: Output{
			JSON:   "Global_model/global_xgb_model.json",
			Binary: "Global_model/global_xgb_model.model",
		},
		Storage: Storage{
			Backend: BackendLocal,
			Root:    ".",
			UseSSL:  true,
		},
		Native: Native{
			Enabled: true,
			Timeout: 5 * time.Minute,
		},
		Parallelism: 4,
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if c.Sources.Pattern == "" {
		return errors.New("sources.pattern is required")
	}
	if c.Output.JSON == "" {
		return errors.New("output.json is required")
	}
	if c.Native.Enabled && c.Output.Binary == "" {
		return errors.New("output.binary is required when native.enabled is set")
	}
	switch c.Storage.Backend {
	case BackendLocal:
	case BackendS3, BackendMinio:
		if c.Storage.Bucket == "" {
			return errors.Errorf("storage.bucket is required for backend %s", c.Storage.Backend)
		}
		if c.Storage.Backend == BackendMinio && c.Storage.Endpoint == "" {
			return errors.New("storage.endpoint is required for backend minio")
		}
	default:
		return errors.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Parallelism <= 0 {
		return errors.Errorf("parallelism must be positive, got %d", c.Parallelism)
	}
	if c.Native.Timeout < 0 {
		return errors.New("native.timeout must not be negative")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return errors.Errorf("unknown log.format %q", c.Log.Format)
	}
	return nil
}
