// Package config provides configuration loading for Quasar. Options are read
// from YAML files through viper with QUASAR_-prefixed environment overrides,
// and can be written back as YAML.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/quasar/pkg/errors"
	"github.com/ajitpratap0/quasar/pkg/ntuple/pagestore"
)

// Config holds the options of a Quasar writer or reader process.
type Config struct {
	// Dataset names the dataset operated on.
	Dataset string `mapstructure:"dataset" yaml:"dataset"`

	// Write steers page sealing and representation selection.
	Write WriteConfig `mapstructure:"write" yaml:"write"`

	// Log configures the structured logger.
	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// WriteConfig mirrors pagestore.WriteOptions in configuration form.
type WriteConfig struct {
	Compression      string `mapstructure:"compression" yaml:"compression"`
	UseSplitEncoding bool   `mapstructure:"use_split_encoding" yaml:"use_split_encoding"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
	Encoding    string `mapstructure:"encoding" yaml:"encoding"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Write: WriteConfig{
			Compression:      pagestore.CompressionZstd,
			UseSplitEncoding: true,
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// WriteOptions converts the write section into page store options.
func (c Config) WriteOptions() pagestore.WriteOptions {
	return pagestore.WriteOptions{
		Compression:      c.Write.Compression,
		UseSplitEncoding: c.Write.UseSplitEncoding,
	}
}

// Load reads a configuration file, layering QUASAR_* environment variables
// over it. An empty path yields the defaults with environment overrides.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("QUASAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("dataset", def.Dataset)
	v.SetDefault("write.compression", def.Write.Compression)
	v.SetDefault("write.use_split_encoding", def.Write.UseSplitEncoding)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.development", def.Log.Development)
	v.SetDefault("log.encoding", def.Log.Encoding)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, errors.ErrorTypeConfig,
				fmt.Sprintf("read config %s", path))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, errors.ErrorTypeConfig, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks option values.
func (c Config) Validate() error {
	switch c.Write.Compression {
	case "", pagestore.CompressionNone, pagestore.CompressionZstd, pagestore.CompressionLZ4:
	default:
		return errors.Newf(errors.ErrorTypeConfig,
			"unknown compression codec %q", c.Write.Compression)
	}
	return nil
}

// Save writes the configuration as YAML.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "write config")
	}
	return nil
}
