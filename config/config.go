package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RUNNER"

// Config represents the configuration implementation.
type Config struct {
	AppName   string
	RunMode   string
	Host      string
	Port      int
	Logger    *Logger
	Data      *Data
	Worker    *Worker
	LogStream *LogStream
	Notify    *Notify
	Observes  *Observes
	Viper     *viper.Viper
}

// LoadConfig loads the configuration from the file and the environment.
// An empty path searches the usual locations; a missing file is not an error
// in that case, since every key has a default.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindWorkerEnv(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/runner")
		v.AddConfigPath("$HOME/.runner")
		v.AddConfigPath(".")
		if ex, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(ex))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	worker := getWorkerConfig(v)
	if err := worker.Validate(); err != nil {
		return nil, fmt.Errorf("invalid worker config: %w", err)
	}

	return &Config{
		AppName:   getStringOrDefault(v, "app_name", "runner"),
		RunMode:   getStringOrDefault(v, "run_mode", "release"),
		Host:      getStringOrDefault(v, "server.host", "0.0.0.0"),
		Port:      getIntOrDefault(v, "server.port", 8080),
		Logger:    getLoggerConfig(v),
		Data:      getDataConfig(v),
		Worker:    worker,
		LogStream: getLogStreamConfig(v),
		Notify:    getNotifyConfig(v),
		Observes:  getObservesConfig(v),
		Viper:     v,
	}, nil
}

// Watch watches the configuration file and calls callback with the reloaded
// configuration whenever it changes. Reload failures keep the previous config.
func Watch(cfg *Config, callback func(*Config), onError ...func(error)) {
	if cfg == nil || cfg.Viper == nil || cfg.Viper.ConfigFileUsed() == "" {
		return
	}

	var mu sync.Mutex
	v := cfg.Viper
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		next, err := build(v)
		if err != nil {
			for _, fn := range onError {
				fn(fmt.Errorf("failed to reload config %s: %w", e.Name, err))
			}
			return
		}
		callback(next)
	})
	v.WatchConfig()
}
