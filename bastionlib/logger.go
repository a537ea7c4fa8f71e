package bastionlib

// Logger defines an interface of the logger used by this library. It is
// structured in a sense that it allows to bind parameters to the logger
// before the actual message is emitted.
type Logger interface {
	// Named returns a child logger with a given name attached.
	Named(name string) Logger

	// BindStr binds a string parameter to the logger.
	BindStr(key, value string) Logger

	// BindInt binds an integer parameter to the logger.
	BindInt(key string, value int) Logger

	// BindFloat binds a float parameter to the logger.
	BindFloat(key string, value float64) Logger

	// Printf is to satisfy dependencies which want a printf-style
	// logger (worker pools and such).
	Printf(format string, args ...interface{})

	Info(msg string)
	InfoError(msg string, err error)
	Warning(msg string)
	WarningError(msg string, err error)
	Debug(msg string)
	DebugError(msg string, err error)
}

// NoopLogger returns a logger which discards everything. Удобен в
// тестах и как дефолт для необязательных коллабораторов.
func NoopLogger() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (n noopLogger) Named(string) Logger              { return n }
func (n noopLogger) BindStr(string, string) Logger    { return n }
func (n noopLogger) BindInt(string, int) Logger       { return n }
func (n noopLogger) BindFloat(string, float64) Logger { return n }
func (n noopLogger) Printf(string, ...interface{})    {}
func (n noopLogger) Info(string)                      {}
func (n noopLogger) InfoError(string, error)          {}
func (n noopLogger) Warning(string)                   {}
func (n noopLogger) WarningError(string, error)       {}
func (n noopLogger) Debug(string)                     {}
func (n noopLogger) DebugError(string, error)         {}
