// Package conf holds the deployment configuration.
//
// A deploy starts from Default, optionally overlaid by a YAML or JSON file,
// and is validated once before any connection is made. The resulting Conf is
// passed by value and never changed during a run.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"go.uber.org/multierr"
	"sigs.k8s.io/yaml"
)

const (
	// AppName names the config directory and the local config file.
	AppName = "site-deploy"

	// LocalConfigFile is looked up in the working directory first.
	LocalConfigFile = AppName + ".yaml"

	DefaultPort    = 22
	DefaultTimeout = 30 * time.Second
)

// DefaultExclude keeps version-control data, editor and OS droppings, and the
// deploy tool's own files off the server.
var DefaultExclude = []string{
	".git",
	".git*",
	".sass-cache",
	AppName + "*",
	".DS_Store",
	"Users/",
}

// Default returns the built-in deployment: the generated _site/ directory
// mirrored to the labs web root, deleting remote files that no longer exist.
func Default() Conf {
	return Conf{
		LocalPath: "_site/",
		Exclude:   append([]string(nil), DefaultExclude...),
		Delete:    true,
		Timeout:   Duration{DefaultTimeout},
		Remote: Target{
			Username: "root",
			Host:     "178.79.181.129",
			Port:     DefaultPort,
			Path:     "/mnt/persist/www/labs.kollegorna.se",
		},
		Auth: Auth{
			Agent:          true,
			KnownHostsFile: filepath.Join(xdg.Home, ".ssh", "known_hosts"),
		},
	}
}

// LoadConf overlays the file at fileName onto Default. The file may be YAML or
// JSON; keys it omits keep their default values.
func LoadConf(fileName string) (Conf, error) {
	cfg := Default()
	data, err := os.ReadFile(fileName)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", fileName, err)
	}
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", fileName, err)
	}
	if cfg.Remote.Port == 0 {
		cfg.Remote.Port = DefaultPort
	}
	return cfg, nil
}

// Find returns the config file to use when none was given explicitly: the
// local file in the working directory, then the user's XDG config. It returns
// "" when neither exists.
func Find() string {
	if _, err := os.Stat(LocalConfigFile); err == nil {
		return LocalConfigFile
	}
	if p, err := xdg.SearchConfigFile(filepath.Join(AppName, "config.yaml")); err == nil {
		return p
	}
	return ""
}

// Validate reports every problem with c at once.
func (c Conf) Validate() error {
	var errs error
	if c.LocalPath == "" {
		errs = multierr.Append(errs, errors.New("localPath is required"))
	}
	if c.Remote.Username == "" {
		errs = multierr.Append(errs, errors.New("remote.username is required"))
	}
	if c.Remote.Host == "" {
		errs = multierr.Append(errs, errors.New("remote.host is required"))
	}
	if c.Remote.Port <= 0 || c.Remote.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("remote.port %d is out of range", c.Remote.Port))
	}
	switch {
	case c.Remote.Path == "":
		errs = multierr.Append(errs, errors.New("remote.path is required"))
	case c.Remote.Path[0] != '/':
		errs = multierr.Append(errs, fmt.Errorf("remote.path %q must be absolute", c.Remote.Path))
	case c.Remote.Path == "/":
		errs = multierr.Append(errs, errors.New("remote.path must not be the filesystem root"))
	}
	if c.Timeout.Duration < 0 {
		errs = multierr.Append(errs, fmt.Errorf("timeout %s is negative", c.Timeout))
	}
	if !c.Auth.InsecureIgnoreHostKey && c.Auth.KnownHostsFile == "" {
		errs = multierr.Append(errs, errors.New("auth.knownHostsFile is required unless auth.insecureIgnoreHostKey is set"))
	}
	return errs
}
