package provisioner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/v2"
	"primamateria.systems/alembic/internal/dataset"
)

const defaultTimeoutSeconds = 600

type Config struct {
	// Root is the project root the data and artifacts directories live
	// under. Defaults to the directory containing the running binary.
	Root  string
	URL   string
	Debug bool
	// Timeout bounds the archive download, in seconds.
	Timeout int
}

func NewConfig(k *koanf.Koanf) (*Config, error) {
	var c Config
	c.Root = k.String("root")
	c.URL = k.String("url")
	c.Debug = k.Bool("debug")
	c.Timeout = k.Int("timeout")

	if c.Root == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("error resolving project root: %w", err)
		}
		c.Root = filepath.Dir(exe)
	}
	if c.URL == "" {
		c.URL = dataset.URL
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeoutSeconds
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("need project root")
	}
	if c.URL == "" {
		return errors.New("need download url")
	}
	// an explicit zero means unset; NewConfig swaps in the default
	if c.Timeout < 0 {
		return errors.New("timeout must not be negative")
	}
	return nil
}

func (c *Config) DataDir() string {
	return filepath.Join(c.Root, dataset.DataDirName)
}

func (c *Config) ArtifactsDir() string {
	return filepath.Join(c.Root, dataset.ArtifactsDirName)
}

func (c *Config) CachePath() string {
	return filepath.Join(c.ArtifactsDir(), dataset.ArchiveName)
}
