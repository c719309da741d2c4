package events

// Event enumerates high-level topics inside the connector core.
type Event string

const (
	EventLogLine      Event = "log_line"
	EventStatusChange Event = "status_change"
	EventAlertIn      Event = "alert.in"
	EventTradeOpened  Event = "trade.opened"
	EventTradeClosed  Event = "trade.closed"
)

// Kind classifies a log line for routing to the notification sink.
type Kind string

const (
	KindInfo  Kind = "info"
	KindAlert Kind = "alert"
	KindError Kind = "error"
)

// LogLine is the payload published on EventLogLine. Message is the
// human-readable sentence shown to the operator; Detail carries extra
// diagnostics that only the file/DB sinks record.
type LogLine struct {
	Message string
	Detail  string
	Kind    Kind
}

// Status is the payload published on EventStatusChange.
type Status struct {
	LoggedIn          bool
	TerminalConnected bool
	RelayConnected    bool
	LocalServer       bool
	UpdateAvailable   string // non-empty when the license server advertises a newer build
}
