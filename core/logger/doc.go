// Package logger builds the zap loggers used by every command and service.
//
// New reads the log section of the configuration. Level "debug" selects the
// development config; any other level uses the production config at that
// level. Format selects console or json encoding, console by default.
//
// Reconciliation passes attach a run_id field to their logger. HTTP handlers
// use WithRayID, which adds the ray_id stored by the rayid middleware so all
// lines of one request can be correlated.
//
//	l, err := logger.New(&cfg.Log)
//	if err != nil {
//	    return err
//	}
//	l = logger.WithRayID(l, c)
package logger
