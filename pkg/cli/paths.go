package cli

import (
	"os"
	"path/filepath"
)

// DefaultBaseDir is the per-user directory under $HOME.
const DefaultBaseDir = ".songeval"

// DefaultConfigFile is the config file name inside the base directory.
const DefaultConfigFile = "config.yaml"

// Paths provides access to the ~/.songeval directory structure.
type Paths struct {
	// HomeDir is the user's home directory
	HomeDir string
}

// NewPaths creates Paths for the current user.
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{HomeDir: home}, nil
}

// BaseDir returns ~/.songeval
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// ConfigFile returns ~/.songeval/config.yaml
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.BaseDir(), DefaultConfigFile)
}

// ModelsDir returns ~/.songeval/models
func (p *Paths) ModelsDir() string {
	return filepath.Join(p.BaseDir(), "models")
}

// CacheDir returns the score cache directory, ~/.songeval/cache
func (p *Paths) CacheDir() string {
	return filepath.Join(p.BaseDir(), "cache")
}

// EnsureCacheDir creates the cache directory if it doesn't exist
func (p *Paths) EnsureCacheDir() error {
	return os.MkdirAll(p.CacheDir(), 0755)
}

// UserConfig returns the user config file path if it exists.
func (p *Paths) UserConfig() (string, bool) {
	path := p.ConfigFile()
	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		return "", false
	}
	return path, true
}
