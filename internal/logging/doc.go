// Package logging wraps log/slog with named per-module loggers whose levels
// can change while the process runs.
//
// Call Initialize once the configuration is known, then ask for a logger
// per component:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "json",
//		Modules: map[string]string{"pipeline": "debug"},
//	})
//
//	log := logging.GetLogger("sink").With("session", name)
//	log.Info("Output opened", "path", path)
//
// GetLogger may be called before Initialize. The logger it returns is the
// same one afterwards and picks up the configured format and level.
// SetLevels changes levels without touching the loggers, which is what the
// config watcher uses on reload.
//
// # Outputs
//
// Every record goes to:
//
//	stdout       text or JSON, skipped when stdout is unusable
//	journald     when its socket is reachable
//	ring buffer  always; served by /api/logs and the log stream
//
// The "module" and "session" attributes are promoted: they become the
// MODULE and SESSION journal fields and the module/session fields of a
// buffered LogEntry. Other attributes keep their group path, dotted in the
// buffer and underscored in the journal.
//
//	journalctl -t framerec -f
//	journalctl -t framerec MODULE=pipeline -p warning
//	journalctl -t framerec SESSION=dxgi_output_20260102_150405
//
// # Configuration
//
// In TOML, module levels sit next to the global ones or under a modules
// table:
//
//	[logging]
//	level = "info"
//	format = "text"
//	ffmpeg = "error"
//
//	[logging.modules]
//	pipeline = "debug"
package logging
