// Package config holds the settings a compilation needs: the target CDM
// version, the schema names bound to the output parameters, and compiler
// options.
//
// Settings are read, lowest precedence first, from defaults, a YAML file,
// .env and .env.local, and COHORTSQL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "COHORTSQL"

// Config is the compilation configuration.
type Config struct {
	// TargetSchemaVersion is the CDM version the SQL is generated for.
	TargetSchemaVersion string `mapstructure:"target_schema_version" yaml:"target_schema_version"`

	// CDMSchema is bound to @cdm_database_schema.
	CDMSchema string `mapstructure:"cdm_schema" yaml:"cdm_schema"`

	// ResultsSchema is bound to @results_database_schema.
	ResultsSchema string `mapstructure:"results_schema" yaml:"results_schema"`

	Options Options `mapstructure:"options" yaml:"options"`
}

// Options tune the generated statements.
type Options struct {
	// QualifiedEventsTable holds the primary events the additional criteria
	// and inclusion rules are evaluated against.
	QualifiedEventsTable string `mapstructure:"qualified_events_table" yaml:"qualified_events_table"`

	// IncludedEventsTable holds the events that passed every rule.
	IncludedEventsTable string `mapstructure:"included_events_table" yaml:"included_events_table"`

	// Parallelism bounds how many units compile at once.
	Parallelism int `mapstructure:"parallelism" yaml:"parallelism"`
}

var defaults = map[string]any{
	"target_schema_version":          "5.4",
	"cdm_schema":                     "cdm",
	"results_schema":                 "results",
	"options.qualified_events_table": "#qualified_events",
	"options.included_events_table":  "#included_events",
	"options.parallelism":            4,
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		TargetSchemaVersion: defaults["target_schema_version"].(string),
		CDMSchema:           defaults["cdm_schema"].(string),
		ResultsSchema:       defaults["results_schema"].(string),
		Options: Options{
			QualifiedEventsTable: defaults["options.qualified_events_table"].(string),
			IncludedEventsTable:  defaults["options.included_events_table"].(string),
			Parallelism:          defaults["options.parallelism"].(int),
		},
	}
}

// Loader reads configuration through a filesystem abstraction.
type Loader struct {
	fs  afero.Fs
	dir string
}

// NewLoader creates a Loader that looks for cohortsql.yaml and .env files
// in dir.
func NewLoader(fs afero.Fs, dir string) *Loader {
	return &Loader{fs: fs, dir: dir}
}

// Load reads the configuration from the working directory of the OS
// filesystem. An empty path searches for cohortsql.yaml.
func Load(path string) (Config, error) {
	return NewLoader(afero.NewOsFs(), ".").Load(path)
}

// Load reads the configuration. An explicit path must exist; without one a
// missing cohortsql.yaml is not an error.
func (l *Loader) Load(path string) (Config, error) {
	v := viper.New()
	v.SetFs(l.fs)
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("cohortsql")
		v.SetConfigType("yaml")
		v.AddConfigPath(l.dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	dotenv, err := l.dotenv()
	if err != nil {
		return Config{}, err
	}
	for key := range defaults {
		name := EnvName(key)
		val, ok := dotenv[name]
		if !ok {
			continue
		}
		// The process environment wins over .env files.
		if _, set := os.LookupEnv(name); set {
			continue
		}
		v.Set(key, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// dotenv parses .env and then .env.local; later files override earlier ones.
func (l *Loader) dotenv() (map[string]string, error) {
	out := make(map[string]string)
	for _, name := range []string{".env", ".env.local"} {
		p := filepath.Join(l.dir, name)
		f, err := l.fs.Open(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		vals, err := godotenv.Parse(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", p, err)
		}
		for k, val := range vals {
			out[k] = val
		}
	}
	return out, nil
}

// EnvName returns the environment variable that sets key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := c.SchemaVersion(); err != nil {
		return err
	}
	if c.CDMSchema == "" {
		return fmt.Errorf("config: cdm_schema is required")
	}
	if c.Options.QualifiedEventsTable == "" || c.Options.IncludedEventsTable == "" {
		return fmt.Errorf("config: event table names are required")
	}
	if c.Options.Parallelism < 1 {
		return fmt.Errorf("config: parallelism must be at least 1, got %d", c.Options.Parallelism)
	}
	return nil
}

// SchemaVersion parses TargetSchemaVersion.
func (c Config) SchemaVersion() (*version.Version, error) {
	v, err := version.NewVersion(c.TargetSchemaVersion)
	if err != nil {
		return nil, fmt.Errorf("config: target_schema_version %q: %w", c.TargetSchemaVersion, err)
	}
	return v, nil
}

// Bindings maps the schema parameters to their configured values.
func (c Config) Bindings() map[string]string {
	return map[string]string{
		"cdm_database_schema":     c.CDMSchema,
		"results_database_schema": c.ResultsSchema,
	}
}
