package epadoc

import (
	"fmt"
	"strings"
)

// Severity ranks a diagnostic message.
// Values are the upper-case names used in validation responses.
type Severity string

const (
	// SeverityFatal indicates the document could not be processed further.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates a violation that makes the document invalid.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates a potential problem that should be reviewed.
	SeverityWarning Severity = "WARNING"
	// SeverityInformation indicates informational feedback.
	SeverityInformation Severity = "INFORMATION"
)

// String returns the severity name.
func (s Severity) String() string {
	return string(s)
}

// IsError returns true for FATAL and ERROR.
func (s Severity) IsError() bool {
	return s == SeverityFatal || s == SeverityError
}

// Rank orders severities from most (0) to least (3) severe.
// Unknown severities rank after INFORMATION.
func (s Severity) Rank() int {
	switch s {
	case SeverityFatal:
		return 0
	case SeverityError:
		return 1
	case SeverityWarning:
		return 2
	case SeverityInformation:
		return 3
	default:
		return 4
	}
}

// ParseSeverity maps a severity name in any case ("error", "Error", "ERROR")
// to a Severity. FHIR constraint severities use lower case.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToUpper(strings.TrimSpace(s))) {
	case SeverityFatal:
		return SeverityFatal, true
	case SeverityError:
		return SeverityError, true
	case SeverityWarning:
		return SeverityWarning, true
	case SeverityInformation:
		return SeverityInformation, true
	}
	return "", false
}

// Message is a single diagnostic produced by a checker.
// An empty Location refers to the document root.
type Message struct {
	Severity Severity `json:"severity"`
	Location string   `json:"location"`
	Text     string   `json:"message"`
}

// IsError returns true if this is an error or fatal message.
func (m Message) IsError() bool {
	return m.Severity.IsError()
}

// IsWarning returns true if this is a warning.
func (m Message) IsWarning() bool {
	return m.Severity == SeverityWarning
}

// IsInformation returns true if this is an informational message.
func (m Message) IsInformation() bool {
	return m.Severity == SeverityInformation
}

// String renders the message as "[SEVERITY] location: text".
func (m Message) String() string {
	loc := m.Location
	if loc == "" {
		loc = "root"
	}
	return fmt.Sprintf("[%s] %s: %s", m.Severity, loc, m.Text)
}

// Messages accumulates diagnostics in emission order.
// The zero value is ready to use. Not safe for concurrent use.
type Messages struct {
	list []Message
}

// Add appends a message with a formatted text.
func (c *Messages) Add(severity Severity, location, format string, args ...any) {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}
	c.list = append(c.list, Message{Severity: severity, Location: location, Text: text})
}

// Fatal appends a FATAL message.
func (c *Messages) Fatal(location, format string, args ...any) {
	c.Add(SeverityFatal, location, format, args...)
}

// Error appends an ERROR message.
func (c *Messages) Error(location, format string, args ...any) {
	c.Add(SeverityError, location, format, args...)
}

// Warning appends a WARNING message.
func (c *Messages) Warning(location, format string, args ...any) {
	c.Add(SeverityWarning, location, format, args...)
}

// Info appends an INFORMATION message.
func (c *Messages) Info(location, format string, args ...any) {
	c.Add(SeverityInformation, location, format, args...)
}

// Append adds already-built messages.
func (c *Messages) Append(msgs ...Message) {
	c.list = append(c.list, msgs...)
}

// Len returns the number of collected messages.
func (c *Messages) Len() int {
	return len(c.list)
}

// List returns the collected messages. The slice is owned by the caller.
func (c *Messages) List() []Message {
	if len(c.list) == 0 {
		return nil
	}
	out := make([]Message, len(c.list))
	copy(out, c.list)
	return out
}
