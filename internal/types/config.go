package types

type RunMode string

const (
	// ModeLocal runs the API server and both workers in a single process
	ModeLocal RunMode = "local"
	// ModeAPI runs just the API server
	ModeAPI RunMode = "api"
	// ModeProcessor runs just the event processor worker
	ModeProcessor RunMode = "processor"
	// ModeAggregator runs just the aggregation worker
	ModeAggregator RunMode = "aggregator"
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

type LogFormat string

const (
	LogFormatJSON    LogFormat = "json"
	LogFormatConsole LogFormat = "console"
)
