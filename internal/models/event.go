package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EventType discriminates stream events.
type EventType string

const (
	EventStage    EventType = "stage"
	EventProgress EventType = "progress"
	EventTokens   EventType = "tokens"
	EventMessage  EventType = "message"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is one message of a job's event stream. Only the fields belonging to
// Type are meaningful.
type Event struct {
	Type EventType `json:"type" msgpack:"type"`

	// stage
	Stage string `json:"stage,omitempty" msgpack:"stage,omitempty"`

	// progress
	Current float64 `json:"current,omitempty" msgpack:"current,omitempty"`
	Total   float64 `json:"total,omitempty" msgpack:"total,omitempty"`

	// tokens
	Rate   *float64 `json:"rate,omitempty" msgpack:"rate,omitempty"`
	Tokens *float64 `json:"tokens,omitempty" msgpack:"tokens,omitempty"`

	// TokenTotal is the running token count.
	TokenTotal *float64 `json:"-" msgpack:"tokenTotal,omitempty"`

	// progress, message
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`

	// error
	Error string `json:"error,omitempty" msgpack:"error,omitempty"`

	// done
	Result json.RawMessage `json:"result,omitempty" msgpack:"result,omitempty"`
}

// eventJSON carries the fields whose wire name collides across event types.
// "total" means the step total for progress and the token total for tokens.
type eventJSON struct {
	Type    EventType       `json:"type"`
	Stage   string          `json:"stage,omitempty"`
	Current *float64        `json:"current,omitempty"`
	Total   *float64        `json:"total,omitempty"`
	Rate    *float64        `json:"rate,omitempty"`
	Tokens  *float64        `json:"tokens,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// MarshalJSON writes the wire form of the event.
func (e Event) MarshalJSON() ([]byte, error) {
	out := eventJSON{
		Type:    e.Type,
		Stage:   e.Stage,
		Rate:    e.Rate,
		Tokens:  e.Tokens,
		Message: e.Message,
		Error:   e.Error,
		Result:  e.Result,
	}
	switch e.Type {
	case EventProgress:
		cur, total := e.Current, e.Total
		out.Current, out.Total = &cur, &total
	case EventTokens:
		out.Total = e.TokenTotal
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the wire form of the event.
func (e *Event) UnmarshalJSON(data []byte) error {
	var in eventJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*e = Event{
		Type:    in.Type,
		Stage:   in.Stage,
		Rate:    in.Rate,
		Tokens:  in.Tokens,
		Message: in.Message,
		Error:   in.Error,
		Result:  in.Result,
	}
	if in.Current != nil {
		e.Current = *in.Current
	}
	if in.Total != nil {
		if in.Type == EventTokens {
			e.TokenTotal = in.Total
		} else {
			e.Total = *in.Total
		}
	}
	return nil
}

// ParseEvent decodes one stream payload. Payloads without a type are rejected.
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("event has no type")
	}
	return ev, nil
}

// HasResult reports whether a done event carries a non-empty result. This is
// the only thing separating "prework finished" from "analysis finished".
func (e Event) HasResult() bool {
	trimmed := bytes.TrimSpace(e.Result)
	switch string(trimmed) {
	case "", "null", `""`, "{}", "[]":
		return false
	}
	return true
}

// ResultText renders the result for display: strings are unquoted, anything
// else is indented JSON.
func (e Event) ResultText() string {
	if !e.HasResult() {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Result, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, e.Result, "", "  "); err != nil {
		return string(e.Result)
	}
	return buf.String()
}

// Throughput picks the display number from a tokens event: rate when present,
// otherwise the raw token count.
func (e Event) Throughput() (float64, bool) {
	if e.Rate != nil {
		return *e.Rate, true
	}
	if e.Tokens != nil {
		return *e.Tokens, true
	}
	return 0, false
}

// Convenience constructors used by the reference backend and tests.

func StageEvent(stage string) Event { return Event{Type: EventStage, Stage: stage} }

func ProgressEvent(current, total float64, message string) Event {
	return Event{Type: EventProgress, Current: current, Total: total, Message: message}
}

func TokensEvent(rate float64) Event { return Event{Type: EventTokens, Rate: &rate} }

func MessageEvent(message string) Event { return Event{Type: EventMessage, Message: message} }

func ErrorEvent(msg string) Event { return Event{Type: EventError, Error: msg} }

// DoneEvent builds a done event; a nil result marks prework completion.
func DoneEvent(result any) Event {
	ev := Event{Type: EventDone}
	if result != nil {
		if raw, err := json.Marshal(result); err == nil {
			ev.Result = raw
		}
	}
	return ev
}

// Terminal reports whether the event ends a stream from the server's side.
func (e Event) Terminal() bool {
	return e.Type == EventError || (e.Type == EventDone && e.HasResult())
}
