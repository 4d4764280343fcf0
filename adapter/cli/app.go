package cli

import (
	"sync"

	"github.com/felixgeelhaar/subtrack/internal/app"
	"github.com/felixgeelhaar/subtrack/pkg/config"
)

var (
	appMu     sync.RWMutex
	container *app.Container
	appConfig *config.Config
)

// SetApp sets the wired application used by commands. It may be nil when
// the container could not be built; commands that need it report so.
func SetApp(c *app.Container) {
	appMu.Lock()
	defer appMu.Unlock()
	container = c
}

// GetApp returns the wired application, or nil.
func GetApp() *app.Container {
	appMu.RLock()
	defer appMu.RUnlock()
	return container
}

// SetConfig sets the loaded configuration.
func SetConfig(cfg *config.Config) {
	appMu.Lock()
	defer appMu.Unlock()
	appConfig = cfg
}

// GetConfig returns the loaded configuration. It falls back to the wired
// application's configuration.
func GetConfig() *config.Config {
	appMu.RLock()
	defer appMu.RUnlock()
	if appConfig != nil {
		return appConfig
	}
	if container != nil {
		return container.Config
	}
	return nil
}

func requireApp() (*app.Container, error) {
	c := GetApp()
	if c == nil {
		return nil, errAppNotInitialized
	}
	return c, nil
}
