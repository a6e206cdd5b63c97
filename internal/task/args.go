package task

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DefaultDuration is the long_running_task duration, in time units, when the
// caller does not give one
const DefaultDuration = 5

// SendEmailArgs are the arguments of a send_email job
type SendEmailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// Validate checks that every field is present
func (a SendEmailArgs) Validate() error {
	var missing []string
	if a.To == "" {
		missing = append(missing, "to")
	}
	if a.Subject == "" {
		missing = append(missing, "subject")
	}
	if a.Message == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidArgs, strings.Join(missing, ", "))
	}
	return nil
}

// LongRunningTaskArgs are the arguments of a long_running_task job
type LongRunningTaskArgs struct {
	Name     string `json:"name"`
	Duration int    `json:"duration"`
}

// Validate checks the name is present and the duration is not negative
func (a LongRunningTaskArgs) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidArgs)
	}
	if a.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative, got %d", ErrInvalidArgs, a.Duration)
	}
	return nil
}

// UnmarshalJSON applies DefaultDuration when the duration field is absent
func (a *LongRunningTaskArgs) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     string `json:"name"`
		Duration *int   `json:"duration"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Name = raw.Name
	a.Duration = DefaultDuration
	if raw.Duration != nil {
		a.Duration = *raw.Duration
	}
	return nil
}

// decodeArgs unmarshals raw job arguments and validates them
func decodeArgs[T interface{ Validate() error }](raw json.RawMessage) (T, error) {
	var args T
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return args, fmt.Errorf("%w: %v", ErrInvalidArgs, err)
	}
	if err := args.Validate(); err != nil {
		return args, err
	}
	return args, nil
}
