package logger

import (
	"github.com/google/wire"
	"github.com/ncobase/runner/config"
	"github.com/ncobase/runner/version"
)

// ProviderSet is the wire provider set for the logger package.
var ProviderSet = wire.NewSet(ProvideLogger)

// ProvideLogger configures the standard logger, stamps it with the build
// version and forwards errors to Sentry. The cleanup closes the log file.
func ProvideLogger(c *config.Logger) (*Logger, func(), error) {
	cleanup, err := New(c)
	if err != nil {
		return nil, nil, err
	}
	l := StdLogger()
	l.SetVersion(version.GetVersionInfo().Version)
	l.AddHook(NewSentryHook())
	return l, cleanup, nil
}
