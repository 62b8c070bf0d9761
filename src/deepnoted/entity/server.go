package entity

// ServerInfo holds the connection details of a healthy toolkit server.
// A ServerInfo is immutable once returned; a restart produces a new value
// with freshly allocated ports rather than mutating the old one.
type ServerInfo struct {
	URL         string
	JupyterPort int
	LSPPort     int
	Token       string
}

// ServerProcess tracks a spawned toolkit server for one environment.
// Owned exclusively by the server controller for the process lifetime.
type ServerProcess struct {
	EnvironmentID string
	PID           int
	Info          ServerInfo
	Stdout        *RingBuffer
	Stderr        *RingBuffer
}
