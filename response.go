package epadoc

import (
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Response is the outcome of one validation call.
// It is built once by NewResponse and never mutated afterwards.
type Response struct {
	valid    bool
	messages []Message
}

// NewResponse builds a Response from the merged messages of a validation run.
// The verdict is true iff no message is FATAL or ERROR.
func NewResponse(messages []Message) *Response {
	r := &Response{valid: true}
	if len(messages) > 0 {
		r.messages = make([]Message, len(messages))
		copy(r.messages, messages)
	}
	for _, m := range r.messages {
		if m.IsError() {
			r.valid = false
			break
		}
	}
	return r
}

// ErrorResponse builds a failed Response holding a single root-level ERROR.
func ErrorResponse(text string) *Response {
	return NewResponse([]Message{{Severity: SeverityError, Text: text}})
}

// Valid reports the verdict.
func (r *Response) Valid() bool {
	return r.valid
}

// Messages returns a copy of all messages in chain-execution order.
func (r *Response) Messages() []Message {
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Len returns the total number of messages.
func (r *Response) Len() int {
	return len(r.messages)
}

func (r *Response) filter(keep func(Message) bool) []Message {
	var out []Message
	for _, m := range r.messages {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// Errors returns all FATAL and ERROR messages.
func (r *Response) Errors() []Message {
	return r.filter(Message.IsError)
}

// Warnings returns all WARNING messages.
func (r *Response) Warnings() []Message {
	return r.filter(Message.IsWarning)
}

// Information returns all INFORMATION messages.
func (r *Response) Information() []Message {
	return r.filter(Message.IsInformation)
}

// ErrorCount returns the number of FATAL and ERROR messages.
func (r *Response) ErrorCount() int {
	return len(r.Errors())
}

// WarningCount returns the number of WARNING messages.
func (r *Response) WarningCount() int {
	return len(r.Warnings())
}

// InformationCount returns the number of INFORMATION messages.
func (r *Response) InformationCount() int {
	return len(r.Information())
}

// String renders the human-readable summary:
//
//	Validation SUCCESSFUL
//	Total messages: 1
//
//	WARNINGS (1):
//	  - [WARNING] Bundle.entry[0]: ...
func (r *Response) String() string {
	var sb strings.Builder
	sb.WriteString("Validation ")
	if r.valid {
		sb.WriteString("SUCCESSFUL")
	} else {
		sb.WriteString("FAILED")
	}
	sb.WriteString("\nTotal messages: ")
	sb.WriteString(strconv.Itoa(len(r.messages)))
	sb.WriteString("\n")

	writeSection(&sb, "ERRORS", r.Errors())
	writeSection(&sb, "WARNINGS", r.Warnings())
	return sb.String()
}

func writeSection(sb *strings.Builder, title string, msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString(" (")
	sb.WriteString(strconv.Itoa(len(msgs)))
	sb.WriteString("):\n")
	for _, m := range msgs {
		sb.WriteString("  - ")
		sb.WriteString(m.String())
		sb.WriteString("\n")
	}
}

// responseJSON is the wire form of a Response.
type responseJSON struct {
	Valid    bool      `json:"valid"`
	Messages []Message `json:"messages"`
}

// MarshalJSON encodes the response as {"valid":..., "messages":[...]}.
func (r *Response) MarshalJSON() ([]byte, error) {
	msgs := r.messages
	if msgs == nil {
		msgs = []Message{}
	}
	return json.Marshal(responseJSON{Valid: r.valid, Messages: msgs})
}

// UnmarshalJSON decodes the wire form. The verdict is recomputed from the
// messages so a decoded Response always satisfies the verdict law.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w responseJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = *NewResponse(w.Messages)
	return nil
}

// Detailed is the partitioned view of a Response.
type Detailed struct {
	Valid            bool      `json:"valid"`
	TotalMessages    int       `json:"totalMessages"`
	ErrorCount       int       `json:"errorCount"`
	WarningCount     int       `json:"warningCount"`
	InformationCount int       `json:"informationCount"`
	Errors           []Message `json:"errors"`
	Warnings         []Message `json:"warnings"`
	Information      []Message `json:"information"`
}

// Detailed returns counts and partitions of the response.
func (r *Response) Detailed() Detailed {
	d := Detailed{
		Valid:         r.valid,
		TotalMessages: len(r.messages),
		Errors:        nonNil(r.Errors()),
		Warnings:      nonNil(r.Warnings()),
		Information:   nonNil(r.Information()),
	}
	d.ErrorCount = len(d.Errors)
	d.WarningCount = len(d.Warnings)
	d.InformationCount = len(d.Information)
	return d
}

func nonNil(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	return msgs
}
