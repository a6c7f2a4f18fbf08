// Package config loads skillcards settings from a YAML file, SKILLCARDS_
// environment variables and command line flags, in that order of
// precedence from lowest to highest.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix marks the environment variables read by Load. A double
// underscore separates sections: SKILLCARDS_STORAGE__DSN is storage.dsn.
const EnvPrefix = "SKILLCARDS_"

type Config struct {
	Log      Log      `koanf:"log"`
	Storage  Storage  `koanf:"storage"`
	HTTP     HTTP     `koanf:"http"`
	Study    Study    `koanf:"study"`
	Importer Importer `koanf:"importer"`
}

type Log struct {
	Level string `koanf:"level" validate:"oneof=debug info warn error"`
	Mode  string `koanf:"mode" validate:"oneof=development production"`
}

type Storage struct {
	Driver string `koanf:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `koanf:"dsn" validate:"required"`
}

type HTTP struct {
	Addr            string        `koanf:"addr" validate:"required"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

type Study struct {
	BatchSize     int `koanf:"batch_size" validate:"min=1,ltefield=MaxBatchSize"`
	MaxBatchSize  int `koanf:"max_batch_size" validate:"min=1"`
	MaxNew        int `koanf:"max_new" validate:"min=0"`
	MasteryWindow int `koanf:"mastery_window" validate:"min=1"`
}

type Importer struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
	Workers  int    `koanf:"workers" validate:"min=1,max=64"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		Log:     Log{Level: "info", Mode: "production"},
		Storage: Storage{Driver: "sqlite", DSN: "skillcards.db"},
		HTTP:    HTTP{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Study: Study{
			BatchSize:     10,
			MaxBatchSize:  50,
			MasteryWindow: 10,
		},
		Importer: Importer{ReposDir: "repos", Workers: 4},
	}
}

// flagKeys maps command line flag names onto config keys.
var flagKeys = map[string]string{
	"log-level":      "log.level",
	"log-mode":       "log.mode",
	"driver":         "storage.driver",
	"dsn":            "storage.dsn",
	"addr":           "http.addr",
	"repos-dir":      "importer.repos_dir",
	"workers":        "importer.workers",
	"batch-size":     "study.batch_size",
	"max-new":        "study.max_new",
	"mastery-window": "study.mastery_window",
}

// Load reads the config file at path (skipped when path is empty or the
// file does not exist), then the environment, then the flags the user set
// explicitly. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if flags != nil {
		// Passing a nil koanf skips flags the user left at their default.
		p := posflag.ProviderWithFlag(flags, ".", nil, func(f *pflag.Flag) (string, any) {
			return flagKeys[f.Name], posflag.FlagVal(flags, f)
		})
		if err := k.Load(p, nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
