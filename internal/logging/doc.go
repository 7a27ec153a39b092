// Package logging provides structured logging for dbgnav.
//
// The Logger wraps zap with:
//   - a Trace level below Debug for wire-level detail
//   - console output on stderr, OpenTelemetry output through otelzap, or both
//   - correlation fields taken from the context (trace, session, request,
//     debuggee)
//   - per-level sampling where errors are never dropped
//
// Library packages take a plain *zap.Logger (Underlying) and default to a
// no-op logger. Commands build a Logger from Config:
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithDebuggee(ctx, "testdata/sample.yaml")
//	logger.Info(ctx, "snapshot loaded", zap.Int("types", n))
//
// TestLogger records entries for assertions.
package logging
