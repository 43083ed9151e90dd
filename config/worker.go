package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/spf13/viper"
)

var validate = validator.New()

// Worker configures one worker process.
type Worker struct {
	ID                string        `json:"id" yaml:"id" validate:"required"`
	WorkspaceID       string        `json:"workspace_id" yaml:"workspace_id"`
	PollInterval      time.Duration `json:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
	MaxConcurrent     int           `json:"max_concurrent" yaml:"max_concurrent" validate:"gte=1"`
	HeartbeatInterval time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval" validate:"gt=0"`
	RescueInterval    time.Duration `json:"rescue_interval" yaml:"rescue_interval" validate:"gt=0"`
	RescueEnabled     bool          `json:"rescue_enabled" yaml:"rescue_enabled"`
	LeaseTimeout      time.Duration `json:"lease_timeout" yaml:"lease_timeout" validate:"gtfield=HeartbeatInterval"`
	MaxAttempts       int           `json:"max_attempts" yaml:"max_attempts" validate:"gte=1"`
	ShutdownGrace     time.Duration `json:"shutdown_grace" yaml:"shutdown_grace" validate:"gte=0"`
}

// DefaultWorker returns the worker defaults with a generated id.
func DefaultWorker() *Worker {
	heartbeat := 15 * time.Second
	return &Worker{
		ID:                GenerateWorkerID(),
		PollInterval:      5 * time.Second,
		MaxConcurrent:     1,
		HeartbeatInterval: heartbeat,
		RescueInterval:    time.Minute,
		RescueEnabled:     true,
		LeaseTimeout:      3 * heartbeat,
		MaxAttempts:       3,
		ShutdownGrace:     30 * time.Second,
	}
}

// Validate validates the worker configuration.
func (w *Worker) Validate() error {
	if err := validate.Struct(w); err != nil {
		return err
	}
	return nil
}

const workerIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateWorkerID returns <hostname>-<8 random lowercase alphanumerics>.
func GenerateWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, gonanoid.MustGenerate(workerIDAlphabet, 8))
}

// bindWorkerEnv lets the worker keys be set with their bare environment names.
func bindWorkerEnv(v *viper.Viper) {
	bind := func(key, bare string) {
		_ = v.BindEnv(key, EnvPrefix+"_"+bare, bare)
	}
	bind("worker.id", "WORKER_ID")
	bind("worker.workspace_id", "WORKSPACE_ID")
	bind("worker.poll_interval_ms", "POLL_INTERVAL_MS")
	bind("worker.max_concurrent", "MAX_CONCURRENT")
	bind("worker.heartbeat_interval_ms", "HEARTBEAT_INTERVAL_MS")
	bind("worker.rescue_interval_ms", "RESCUE_INTERVAL_MS")
	bind("worker.rescue_enabled", "RESCUE_ENABLED")
	bind("worker.lease_timeout_ms", "LEASE_TIMEOUT_MS")
	bind("worker.max_attempts", "MAX_ATTEMPTS")
	bind("worker.shutdown_grace_ms", "SHUTDOWN_GRACE_MS")
}

func getWorkerConfig(v *viper.Viper) *Worker {
	d := DefaultWorker()
	heartbeat := getMillisOrDefault(v, "worker.heartbeat_interval_ms", d.HeartbeatInterval)

	id := getStringOrDefault(v, "worker.id", "")
	if id == "" {
		id = d.ID
	}

	return &Worker{
		ID:                id,
		WorkspaceID:       v.GetString("worker.workspace_id"),
		PollInterval:      getMillisOrDefault(v, "worker.poll_interval_ms", d.PollInterval),
		MaxConcurrent:     getIntOrDefault(v, "worker.max_concurrent", d.MaxConcurrent),
		HeartbeatInterval: heartbeat,
		RescueInterval:    getMillisOrDefault(v, "worker.rescue_interval_ms", d.RescueInterval),
		RescueEnabled:     getBoolOrDefault(v, "worker.rescue_enabled", d.RescueEnabled),
		LeaseTimeout:      getMillisOrDefault(v, "worker.lease_timeout_ms", 3*heartbeat),
		MaxAttempts:       getIntOrDefault(v, "worker.max_attempts", d.MaxAttempts),
		ShutdownGrace:     getMillisOrDefault(v, "worker.shutdown_grace_ms", d.ShutdownGrace),
	}
}

// LogStream configures the log tailing gateway.
type LogStream struct {
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	PageLimit    int           `json:"page_limit" yaml:"page_limit"`
	MaxPageLimit int           `json:"max_page_limit" yaml:"max_page_limit"`
}

// DefaultLogStream returns the log stream defaults.
func DefaultLogStream() *LogStream {
	return &LogStream{
		PollInterval: time.Second,
		PageLimit:    100,
		MaxPageLimit: 1000,
	}
}

func getLogStreamConfig(v *viper.Viper) *LogStream {
	d := DefaultLogStream()
	ls := &LogStream{
		PollInterval: getMillisOrDefault(v, "logstream.poll_interval_ms", d.PollInterval),
		PageLimit:    getIntOrDefault(v, "logstream.page_limit", d.PageLimit),
		MaxPageLimit: getIntOrDefault(v, "logstream.max_page_limit", d.MaxPageLimit),
	}
	if ls.PollInterval <= 0 {
		ls.PollInterval = d.PollInterval
	}
	if ls.MaxPageLimit <= 0 {
		ls.MaxPageLimit = d.MaxPageLimit
	}
	if ls.PageLimit <= 0 || ls.PageLimit > ls.MaxPageLimit {
		ls.PageLimit = min(d.PageLimit, ls.MaxPageLimit)
	}
	return ls
}
