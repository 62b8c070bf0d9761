package factory

import (
	"time"

	"github.com/deepnote/deepnoted/src/deepnoted/entity"
	"github.com/gofrs/uuid"
)

// UUID is a user-defined factory for a random uuid.UUID.
func UUID() uuid.UUID {
	return uuid.Must(uuid.NewV4())
}

// EnvironmentValid is a factory for an Environment that passes validation.
func EnvironmentValid(id string) *entity.Environment {
	return &entity.Environment{
		ID:              id,
		Name:            "Environment " + id,
		BaseInterpreter: "/usr/bin/python3",
		VenvPath:        "/tmp/deepnote-venvs/" + id,
		CreatedAt:       time.Now(),
	}
}

// LockFileRecord is a factory for a lock record owned by the given session.
func LockFileRecord(sessionID string, pid int) *entity.LockFileRecord {
	return &entity.LockFileRecord{
		SessionID: sessionID,
		PID:       pid,
		Timestamp: time.Now().UnixMilli(),
	}
}
