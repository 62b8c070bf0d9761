package entity

import "time"

// Environment describes one named combination of a base interpreter and a
// dedicated virtual environment directory, against which a single toolkit
// server can be started. The registry of environments lives in the host;
// this daemon only consumes the fields below.
type Environment struct {
	ID              string
	Name            string
	BaseInterpreter string
	VenvPath        string
	Packages        []string
	CreatedAt       time.Time
	LastUsedAt      time.Time
	ToolkitVersion  string
}

// ToolkitInstall is the result of ensuring a venv has the toolkit installed.
type ToolkitInstall struct {
	InterpreterPath string
	ToolkitVersion  string
}
