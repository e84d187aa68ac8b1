// Package paths locates pantry's files: the config directory with
// config.yaml, the JWT secret and resource definitions, and the data
// directory holding the SQLite database.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "pantry"

// DefaultDataDirName is the data directory created in the working
// directory, so a project's database lives next to its sources.
const DefaultDataDirName = ".pantry-data"

// Files and directories inside the config and data directories.
const (
	ConfigFileName   = "config.yaml"
	SecretFileName   = "jwt.key"
	ResourcesDirName = "resources"
	DatabaseFileName = "pantry.db"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "PANTRY_CONFIG_DIR"
	EnvDataDir   = "PANTRY_DATA_DIR"
)

// platformDir holds platform lookups that tests override.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// DefaultConfigDir returns the per-user configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/pantry (fallback ~/.config/pantry)
// macOS:   ~/Library/Application Support/pantry
// Windows: %APPDATA%/pantry
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := platformDir.homeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", appName), nil
	}
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// ResolveConfigDir picks the config directory: flag, then
// PANTRY_CONFIG_DIR, then DefaultConfigDir. A leading ~ expands to the
// home directory.
func ResolveConfigDir(flag string) (string, error) {
	for _, p := range []string{flag, os.Getenv(EnvConfigDir)} {
		if p != "" {
			return absolute(p)
		}
	}
	return DefaultConfigDir()
}

// ResolveDataDir picks the data directory: flag, then database.data_dir
// from config.yaml, then PANTRY_DATA_DIR, then DefaultDataDirName in the
// working directory. A relative config value is taken relative to
// configDir, since that is where config.yaml lives.
func ResolveDataDir(flag, configValue, configDir string) (string, error) {
	if flag != "" {
		return absolute(flag)
	}
	if configValue != "" {
		return InConfigDir(configDir, configValue, "")
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return absolute(env)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// InConfigDir resolves p against configDir. An empty p yields
// defaultName, ~ expands to the home directory and absolute paths are
// kept.
func InConfigDir(configDir, p, defaultName string) (string, error) {
	if p == "" {
		p = defaultName
	}
	p, err := expandHome(p)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p), nil
	}
	return filepath.Join(configDir, p), nil
}

// SecretFile returns the JWT signing key path for the auth.secret_file
// setting.
func SecretFile(configDir, configured string) (string, error) {
	return InConfigDir(configDir, configured, SecretFileName)
}

// ResourcesDir returns the resource definition directory for the
// resources_dir setting.
func ResourcesDir(configDir, configured string) (string, error) {
	return InConfigDir(configDir, configured, ResourcesDirName)
}

// DatabaseFile returns the SQLite database path inside dataDir. An empty
// dataDir means the working directory.
func DatabaseFile(dataDir string) string {
	if dataDir == "" {
		dataDir = "."
	}
	return filepath.Join(dataDir, DatabaseFileName)
}

func absolute(p string) (string, error) {
	p, err := expandHome(p)
	if err != nil {
		return "", err
	}
	return filepath.Abs(p)
}

// expandHome replaces a leading ~ with the user's home directory.
// Other uses of ~ such as ~alice are left alone.
func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") && !strings.HasPrefix(p, `~\`) {
		return p, nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, p[1:]), nil
}
