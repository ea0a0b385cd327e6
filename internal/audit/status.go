package audit

import (
	"encoding/json"
	"fmt"
)

// Status is the lifecycle state of a stage attempt.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusVerified
)

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusRunning:   "running",
	StatusCompleted: "completed",
	StatusFailed:    "failed",
	StatusVerified:  "verified",
}

// String returns the wire name of the status.
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// IsSuccess reports whether the status makes an entry visible to lookups.
func (s Status) IsSuccess() bool {
	return s == StatusCompleted || s == StatusVerified
}

// IsTerminal reports whether the status ends a stage's lifecycle.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusVerified || s == StatusFailed
}

// ParseStatus converts a wire name back to a Status.
func ParseStatus(name string) (Status, error) {
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return StatusPending, fmt.Errorf("unknown status %q", name)
}

// MarshalJSON encodes the status as its wire name.
func (s Status) MarshalJSON() ([]byte, error) {
	name, ok := statusNames[s]
	if !ok {
		return nil, fmt.Errorf("cannot marshal unknown status %d", int(s))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a wire name into a Status.
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
