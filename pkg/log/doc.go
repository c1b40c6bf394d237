// Package log provides named, leveled loggers on top of the standard
// library logger.
//
// Every line carries the level and the logger name:
//
//	INFO [search>] committed 3 indicators search=5f0c...
//
// Usage
//
//	l := log.ForService("search")
//	l.Infof("running %d probes", n)
//	l.With("search", id).Debugf("probe %s ok", key)
//
// Debug output is off by default. Enable it for everything with
// SetGlobalDebug(true) (the --debug flag) or for a single logger with
// EnableDebugFor("rest").
//
// Tests redirect output with SetOutput(&buf). All exported functions are
// safe for concurrent use.
//
// The package name collides with the standard library; alias one of them
// when both are needed.
package log
