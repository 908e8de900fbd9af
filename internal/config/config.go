// Package config loads blockfsctl's configuration from an optional YAML
// file overridden by BLOCKFS_-prefixed environment variables, grounded on
// cmd/auth's LoadConfig: read-the-file-then-call-envconfig.Process.
package config

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const envVarPrefix = "BLOCKFS"

// Config holds the settings blockfsctl needs to open or format a disk
// image.
type Config struct {
	ImagePath       string `envconfig:"BLOCKFS_IMAGE_PATH"        yaml:"imagePath"`
	SectorCount     uint32 `envconfig:"BLOCKFS_SECTOR_COUNT"      yaml:"sectorCount"`
	WriteIntervalMS int    `envconfig:"BLOCKFS_WRITE_INTERVAL_MS" yaml:"writeIntervalMs"`
}

// Load reads configFile if it exists (a missing file is not an error),
// then overrides its fields from the environment.
func Load(configFile string) (*Config, error) {
	c := Config{SectorCount: 4096, WriteIntervalMS: 100}

	if configFile != "" {
		data, err := ioutil.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshaling config file: %w", err)
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	return &c, nil
}

const MissingImagePathErr = configError("missing required configuration: imagePath / BLOCKFS_IMAGE_PATH")

type configError string

func (e configError) Error() string { return string(e) }

// Validate reports whether c has every field blockfsctl needs to proceed.
func (c *Config) Validate() error {
	if c.ImagePath == "" {
		return MissingImagePathErr
	}
	return nil
}
