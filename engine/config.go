package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xpgp/pgperrors"
	"gopkg.in/yaml.v3"
)

// Config describes where the engine finds its key rings and how it
// renders output. Explicit ring paths override the computed defaults
// under HomeDir.
type Config struct {
	// HomeDir is the engine home. Empty means $HOME/.xpgp.
	HomeDir string `json:"home_dir" yaml:"home_dir"`
	// PublicRing overrides the default HomeDir/pubring.gpg.
	PublicRing string `json:"public_ring" yaml:"public_ring"`
	// SecretRing overrides the default HomeDir/secring.gpg.
	SecretRing string `json:"secret_ring" yaml:"secret_ring"`
	// DefaultIdentity is used when an operation is given no identity.
	DefaultIdentity string `json:"default_identity" yaml:"default_identity"`
	// Armor selects ASCII-armored output for messages.
	Armor bool `json:"armor" yaml:"armor"`
}

// LoadConfig reads the engine configuration from a JSON or YAML file,
// selected by file extension.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.WithMessage(pgperrors.ErrIO, err.Error())
	}
	defer f.Close()

	cfg := new(Config)
	if strings.HasSuffix(filename, ".json") {
		err = json.NewDecoder(f).Decode(cfg)
	} else {
		err = yaml.NewDecoder(f).Decode(cfg)
	}
	if err != nil {
		return nil, errors.WithMessagef(pgperrors.ErrDecode, "failed to decode config %s: %s", filename, err.Error())
	}
	return cfg, nil
}

func (c *Config) homeDir() string {
	if c.HomeDir != "" {
		return c.HomeDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".xpgp")
}

// PublicRingPath returns the effective public ring location.
func (c *Config) PublicRingPath() string {
	if c.PublicRing != "" {
		return c.PublicRing
	}
	return filepath.Join(c.homeDir(), "pubring.gpg")
}

// SecretRingPath returns the effective secret ring location.
func (c *Config) SecretRingPath() string {
	if c.SecretRing != "" {
		return c.SecretRing
	}
	return filepath.Join(c.homeDir(), "secring.gpg")
}
