// Package daemonconfig loads the TOML configuration file describing
// an rsync daemon's listeners and modules, adapted from the teacher's
// internal/rsyncdconfig call sites in internal/maincmd. The file
// format itself switches from the teacher's YAML-flavored layout to
// TOML, parsed with github.com/BurntSushi/toml, so that module tables
// read naturally as `[[module]]` blocks.
package daemonconfig

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/oferchen/rsync-sub017/rsyncd"
)

// AuthorizedSSH configures a listener that accepts only connections
// authenticated against a set of SSH public keys, as opposed to the
// anonymous SSH listener below.
type AuthorizedSSH struct {
	Address        string `toml:"address"`
	AuthorizedKeys string `toml:"authorized_keys"`
}

// Listener describes one address the daemon accepts connections on,
// using exactly one of its three modes.
type Listener struct {
	Rsyncd        string        `toml:"rsyncd"`
	AnonSSH       string        `toml:"anonssh"`
	AuthorizedSSH AuthorizedSSH `toml:"authorized_ssh"`
}

// Config is the top-level daemon configuration file layout.
type Config struct {
	DontNamespace bool             `toml:"dont_namespace"`
	Listeners     []Listener       `toml:"listener"`
	Modules       []rsyncd.Module  `toml:"module"`
}

// defaultPaths are searched, in order, by FromDefaultFiles.
var defaultPaths = []string{
	"/etc/rsyncd.toml",
	"/etc/rsync-sub017/rsyncd.toml",
}

// FromFile reads and parses the config file at path.
func FromFile(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Modules {
		cfg.Modules[i].Path = filepath.Clean(cfg.Modules[i].Path)
	}
	return &cfg, nil
}

// FromDefaultFiles tries each well-known config path in turn,
// returning the first one found. If none exist, it returns the
// os.IsNotExist error from the last attempt so callers can fall back
// to flag-only configuration.
func FromDefaultFiles() (cfg *Config, path string, err error) {
	for _, p := range defaultPaths {
		cfg, err = FromFile(p)
		if err == nil {
			return cfg, p, nil
		}
		if !os.IsNotExist(err) {
			return nil, p, err
		}
	}
	return nil, defaultPaths[len(defaultPaths)-1], err
}
