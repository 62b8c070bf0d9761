package entity

// LockFileRecord asserts which host session believes it owns an OS process.
// Persisted as one JSON file per pid so that a later session can tell a
// crashed predecessor's children apart from its own.
type LockFileRecord struct {
	SessionID string `json:"sessionId"`
	PID       int    `json:"pid"`
	Timestamp int64  `json:"timestamp"`
}
