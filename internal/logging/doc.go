// Package logging provides structured logging for shortkeys.
//
// [Logger] wraps log/slog. Output goes to stderr in text form by default,
// or JSON when configured, and can be redirected to a size-rotated file:
//
//	logger, err := logging.New(os.Stderr, logging.Options{
//	    Level:  "info",
//	    Format: logging.FormatJSON,
//	    File:   "/var/log/shortkeys.log",
//	    Rotation: logging.RotationConfig{MaxSizeMB: 10, MaxBackups: 3},
//	})
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
// The task runner derives child loggers per run and per task:
//
//	runLog := logger.WithRun(report.RunID)
//	runLog.WithTask("lint:js").Info("task finished", "duration", d)
//
// Use [NopLogger] in tests.
package logging
