package app

import (
	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
	"github.com/spf13/viper"
)

// ConfigChangeFunc is called with the reloaded configuration after the
// config file changes on disk.
type ConfigChangeFunc func(v *viper.Viper) error

// WithConfigWatch registers fn to run on every config file change. Watching
// starts only when a config file was actually loaded.
func WithConfigWatch(fn ConfigChangeFunc) Option {
	return func(a *App) {
		if fn != nil {
			a.onChange = append(a.onChange, fn)
		}
	}
}

func (a *App) watchConfig() {
	if len(a.onChange) == 0 || a.viper.ConfigFileUsed() == "" {
		return
	}

	handlers := append([]ConfigChangeFunc(nil), a.onChange...)
	a.viper.OnConfigChange(func(e fsnotify.Event) {
		logger.Infow("config file changed", "file", e.Name, "op", e.Op.String())
		for _, fn := range handlers {
			if err := fn(a.viper); err != nil {
				logger.Warnw("config change rejected", "file", e.Name, "error", err.Error())
			}
		}
	})
	a.viper.WatchConfig()
}
