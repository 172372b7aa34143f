// Package model contains core data types for the project.
package model

import "fmt"

// Status is the severity reported by a check.
type Status int

const (
	OK       Status = 0 // OK means the reading is above both thresholds.
	Warning  Status = 1 // Warning means the reading fell to or below the warn threshold.
	Critical Status = 2 // Critical means the reading fell to or below the crit threshold or login failed.
	Unknown  Status = 3 // Unknown means the check could not produce a reading.
)

// String returns the label printed in front of the check output.
func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ExitCode maps the status to the process exit code expected by monitoring hosts.
func (s Status) ExitCode() int {
	switch s {
	case OK, Warning, Critical:
		return int(s)
	default:
		return int(Unknown)
	}
}

// Credentials identify the operator account on the device.
type Credentials struct {
	Username string `json:"username" yaml:"username"`
	Password string `json:"-" yaml:"password"`
}

// Thresholds are lower bounds in volts. Crit must not exceed Warn.
type Thresholds struct {
	Warn float64 `json:"warn" yaml:"warn" validate:"gt=0"`
	Crit float64 `json:"crit" yaml:"crit" validate:"gt=0,ltefield=Warn"`
}

// Reading is a raw telemetry value as reported by the device.
type Reading struct {
	RawMilliunits float64 // Input voltage in millivolts.
}

// Outcome is the terminal result of one check run.
type Outcome struct {
	Status   Status
	Message  string
	PerfData string // Metric record, empty when none is emitted.
}

// String renders the single status line: "STATUS - message[ | perfdata]".
func (o Outcome) String() string {
	if o.PerfData == "" {
		return fmt.Sprintf("%s - %s", o.Status, o.Message)
	}
	return fmt.Sprintf("%s - %s | %s", o.Status, o.Message, o.PerfData)
}
