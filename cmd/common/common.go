// Package common implements common tokenvault command options.
package common

import (
	"context"
	"fmt"
	"io"
	stdLog "log"
	"os"

	"github.com/akrylysov/pogreb"

	"github.com/tokenvault/tokenvault/config"
	"github.com/tokenvault/tokenvault/log"
	"github.com/tokenvault/tokenvault/metrics"
)

var rootLogger = log.NewDefaultLogger("tokenvault")

// Init initializes the common environment. Background servers it starts
// stop when ctx is cancelled.
func Init(ctx context.Context, cfg *config.Config) error {
	var w io.Writer = os.Stdout
	format := log.FmtJSON
	level := log.LevelDebug

	if cfg.Log != nil {
		var err error
		if w, err = getLoggingStream(cfg.Log); err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		if err := format.Set(cfg.Log.Format); err != nil {
			return err
		}
		if err := level.Set(cfg.Log.Level); err != nil {
			return err
		}
	}
	logger, err := log.NewLogger("tokenvault", w, format, level)
	if err != nil {
		return err
	}
	rootLogger = logger

	// Initialize pogreb logging.
	pogrebLogger := RootLogger().WithModule("pogreb").WithCallerUnwind(7)
	pogreb.SetLogger(stdLog.New(log.WriterIntoLogger(*pogrebLogger), "", 0))

	if cfg.Metrics != nil {
		promServer, err := metrics.NewPullService(cfg.Metrics.PullEndpoint, rootLogger)
		if err != nil {
			return fmt.Errorf("initializing metrics: %w", err)
		}
		go func() {
			if err := promServer.Run(ctx); err != nil {
				rootLogger.Error("metrics server stopped", "err", err)
			}
		}()
		if cfg.Metrics.PprofEndpoint != "" {
			go startPprof(ctx, cfg.Metrics.PprofEndpoint)
		}
	}
	return nil
}

// RootLogger returns the logger defined by logging flags.
func RootLogger() *log.Logger {
	return rootLogger
}

func getLoggingStream(cfg *config.LogConfig) (io.Writer, error) {
	if cfg == nil || cfg.File == "" {
		return os.Stdout, nil
	}
	w, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return w, nil
}
