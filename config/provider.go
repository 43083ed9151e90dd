package config

import "github.com/google/wire"

// ProviderSet extracts the sub-configurations of a loaded *Config.
//
// Usage:
//
//	wire.Build(
//	    config.ProviderSet,
//	    // ... other providers
//	)
var ProviderSet = wire.NewSet(
	ProvideLoggerConfig,
	ProvideDataConfig,
	ProvideWorkerConfig,
	ProvideLogStreamConfig,
	ProvideNotifyConfig,
	ProvideObservesConfig,
)

// ProvideLoggerConfig provides the logger configuration.
func ProvideLoggerConfig(cfg *Config) *Logger {
	if cfg == nil {
		return nil
	}
	return cfg.Logger
}

// ProvideDataConfig provides the data layer configuration.
func ProvideDataConfig(cfg *Config) *Data {
	if cfg == nil {
		return nil
	}
	return cfg.Data
}

// ProvideWorkerConfig provides the worker configuration.
func ProvideWorkerConfig(cfg *Config) *Worker {
	if cfg == nil || cfg.Worker == nil {
		return DefaultWorker()
	}
	return cfg.Worker
}

// ProvideLogStreamConfig provides the log stream configuration.
func ProvideLogStreamConfig(cfg *Config) *LogStream {
	if cfg == nil || cfg.LogStream == nil {
		return DefaultLogStream()
	}
	return cfg.LogStream
}

// ProvideNotifyConfig provides the notification configuration.
func ProvideNotifyConfig(cfg *Config) *Notify {
	if cfg == nil {
		return nil
	}
	return cfg.Notify
}

// ProvideObservesConfig provides the Sentry and tracing configuration.
func ProvideObservesConfig(cfg *Config) *Observes {
	if cfg == nil || cfg.Observes == nil {
		return &Observes{}
	}
	return cfg.Observes
}
