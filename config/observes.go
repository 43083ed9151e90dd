package config

import (
	"time"

	"github.com/spf13/viper"
)

// Observes configures error reporting and tracing. Both are off while their
// endpoint is empty.
type Observes struct {
	Sentry *Sentry
	Tracer *Tracer
}

// Sentry configures error reporting.
type Sentry struct {
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`
	Environment string  `json:"environment" yaml:"environment"`
	Release     string  `json:"release" yaml:"release"`
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// Tracer configures the OTLP gRPC span exporter.
type Tracer struct {
	Endpoint           string        `json:"endpoint" yaml:"endpoint"`
	Insecure           bool          `json:"insecure" yaml:"insecure"`
	ServiceName        string        `json:"service_name" yaml:"service_name"`
	ServiceVersion     string        `json:"service_version" yaml:"service_version"`
	Environment        string        `json:"environment" yaml:"environment"`
	SamplingRate       float64       `json:"sampling_rate" yaml:"sampling_rate"` // 0.0 to 1.0
	MaxExportBatchSize int           `json:"max_export_batch_size" yaml:"max_export_batch_size"`
	BatchTimeout       time.Duration `json:"batch_timeout" yaml:"batch_timeout"`
	ExportTimeout      time.Duration `json:"export_timeout" yaml:"export_timeout"`
}

// getObservesConfig reads the observes section. observes.environment is the
// fallback for both backends' environment.
func getObservesConfig(v *viper.Viper) *Observes {
	env := v.GetString("observes.environment")
	appName := getStringOrDefault(v, "app_name", "runner")

	return &Observes{
		Sentry: &Sentry{
			Endpoint:    v.GetString("observes.sentry.endpoint"),
			Environment: getStringOrDefault(v, "observes.sentry.environment", env),
			Release:     v.GetString("observes.sentry.release"),
			SampleRate:  getFloat64OrDefault(v, "observes.sentry.sample_rate", 1.0),
		},
		Tracer: &Tracer{
			Endpoint:           v.GetString("observes.tracer.endpoint"),
			Insecure:           getBoolOrDefault(v, "observes.tracer.insecure", true),
			ServiceName:        getStringOrDefault(v, "observes.tracer.service_name", appName),
			ServiceVersion:     v.GetString("observes.tracer.service_version"),
			Environment:        getStringOrDefault(v, "observes.tracer.environment", env),
			SamplingRate:       getFloat64OrDefault(v, "observes.tracer.sampling_rate", 1.0),
			MaxExportBatchSize: getIntOrDefault(v, "observes.tracer.max_export_batch_size", 512),
			BatchTimeout:       getDurationOrDefault(v, "observes.tracer.batch_timeout", 5*time.Second),
			ExportTimeout:      getDurationOrDefault(v, "observes.tracer.export_timeout", 30*time.Second),
		},
	}
}
