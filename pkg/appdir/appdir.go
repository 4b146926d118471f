// Package appdir locates the per-user state directory (~/.spacenet) holding
// log databases and the default config file.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const dirName = ".spacenet"

// EnvOverride, when set, replaces the home-relative directory.
const EnvOverride = "SPACENET_HOME"

var (
	once     sync.Once
	appDir   string
	appDirEr error
)

// AppDir returns the state directory, creating it on first use.
func AppDir() (string, error) {
	once.Do(func() {
		dir := os.Getenv(EnvOverride)
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				appDirEr = fmt.Errorf("appdir: %w", err)
				return
			}
			dir = filepath.Join(home, dirName)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			appDirEr = fmt.Errorf("appdir: %w", err)
			return
		}
		appDir = dir
	})
	return appDir, appDirEr
}

// Path joins name onto the state directory. Absolute names are returned as is.
func Path(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	dir, err := AppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
