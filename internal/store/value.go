// Package store holds the agent's observed state: the bounded
// observation history, the current/last hash maps, and the asset store.
// All mutation goes through a single writer (the ingest sequencer); HTTP
// handlers are readers.
package store

import "strings"

// Value is the tagged sum an observation carries. Serialization and
// suppression branch on the concrete type.
type Value interface {
	// Text is the element text the value serializes to.
	Text() string
	valueTag()
}

// Scalar is a plain string value, the common case.
type Scalar string

func (s Scalar) Text() string { return string(s) }
func (Scalar) valueTag()      {}

// Condition is the 5-field CONDITION tuple.
type Condition struct {
	Level          string // NORMAL, WARNING, FAULT, UNAVAILABLE
	NativeCode     string
	NativeSeverity string
	Qualifier      string
	Message        string
}

func (c Condition) Text() string { return c.Message }
func (Condition) valueTag()      {}

// Message is the MESSAGE pair: nativeCode may be empty.
type Message struct {
	NativeCode string
	Content    string
}

func (m Message) Text() string { return m.Content }
func (Message) valueTag()      {}

// Alarm is the 5-field ALARM tuple.
type Alarm struct {
	Code       string
	NativeCode string
	Severity   string
	State      string
	Content    string
}

func (a Alarm) Text() string { return a.Content }
func (Alarm) valueTag()      {}

// TimeSeries carries a sample-count/sample-rate header and the
// space-separated samples exactly as received.
type TimeSeries struct {
	SampleCount string
	SampleRate  string
	Samples     string
}

func (t TimeSeries) Text() string { return t.Samples }
func (TimeSeries) valueTag()      {}

// valuesEqual reports byte-for-byte equality, used for duplicate
// suppression. All value types are comparable structs or strings.
func valuesEqual(a, b Value) bool {
	return a == b
}

// conditionLevelTag maps a condition level to its MTConnect element
// name (Normal, Warning, Fault, Unavailable).
func conditionLevelTag(level string) string {
	switch strings.ToUpper(level) {
	case "NORMAL":
		return "Normal"
	case "WARNING":
		return "Warning"
	case "FAULT":
		return "Fault"
	default:
		return "Unavailable"
	}
}

// LevelTag exposes the element name for a condition level.
func (c Condition) LevelTag() string { return conditionLevelTag(c.Level) }
