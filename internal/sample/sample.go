// Package sample implements the immutable, timestamped data sample that
// flows through the resource tree: construction per type, typed reads,
// equality, JSON encoding, and JSON sub-element extraction.
package sample

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/nxthongbk/datahub/internal/herr"
)

// Type is one of the four data types a sample can carry, plus Trigger for
// valueless events.
type Type int

const (
	Trigger Type = iota
	Boolean
	Numeric
	String
	JSON
)

func (t Type) String() string {
	switch t {
	case Trigger:
		return "trigger"
	case Boolean:
		return "boolean"
	case Numeric:
		return "numeric"
	case String:
		return "string"
	case JSON:
		return "json"
	default:
		return "unknown"
	}
}

// Sample is an immutable (timestamp, type, value) triple. The zero value is
// not a valid Sample; use one of the New* constructors.
//
// Samples are cheap to share: copy by value, or hold by pointer when a
// buffer needs reference semantics (see the observation package's
// bufEntry). There is no
// internal mutable state, so either is safe under the single-threaded
// cooperative core this package is built for.
type Sample struct {
	timestamp float64
	typ       Type
	boolVal   bool
	numVal    float64
	strVal    string // holds both String and JSON payloads
}

// NewTrigger constructs a valueless Trigger sample.
func NewTrigger(ts float64) Sample { return Sample{timestamp: ts, typ: Trigger} }

// NewBoolean constructs a Boolean sample.
func NewBoolean(ts float64, v bool) Sample { return Sample{timestamp: ts, typ: Boolean, boolVal: v} }

// NewNumeric constructs a Numeric sample.
func NewNumeric(ts float64, v float64) Sample { return Sample{timestamp: ts, typ: Numeric, numVal: v} }

// NewString constructs a String sample.
func NewString(ts float64, v string) Sample { return Sample{timestamp: ts, typ: String, strVal: v} }

// NewJSON constructs a JSON sample. v must already be syntactically valid
// JSON; NewJSON does not validate it (callers that parse from an external
// source should validate with encoding/json.Valid first).
func NewJSON(ts float64, v string) Sample { return Sample{timestamp: ts, typ: JSON, strVal: v} }

// Timestamp returns the sample's epoch-second timestamp.
func (s Sample) Timestamp() float64 { return s.timestamp }

// Type returns the sample's data type.
func (s Sample) Type() Type { return s.typ }

// Bool returns the sample's boolean value and whether the sample is Boolean.
func (s Sample) Bool() (bool, bool) { return s.boolVal, s.typ == Boolean }

// Float returns the sample's numeric value and whether the sample is
// Numeric.
func (s Sample) Float() (float64, bool) { return s.numVal, s.typ == Numeric }

// Text returns the sample's string payload (String or JSON) and whether the
// sample carries one.
func (s Sample) Text() (string, bool) {
	if s.typ == String || s.typ == JSON {
		return s.strVal, true
	}
	return "", false
}

// WithTimestamp returns a copy of s with a different timestamp, keeping the
// type and value. Used when an override replaces the value of an incoming
// sample but must keep the incoming timestamp.
func (s Sample) WithTimestamp(ts float64) Sample {
	s.timestamp = ts
	return s
}

// Equal reports whether two samples are equal by contents (timestamp, type,
// and value).
func (s Sample) Equal(o Sample) bool {
	if s.typ != o.typ || s.timestamp != o.timestamp {
		return false
	}
	switch s.typ {
	case Trigger:
		return true
	case Boolean:
		return s.boolVal == o.boolVal
	case Numeric:
		return s.numVal == o.numVal
	case String, JSON:
		return s.strVal == o.strVal
	default:
		return false
	}
}

// AsFloat64 treats Boolean samples as 1.0/0.0 and Numeric samples as their
// value, for use by aggregate transforms, which count Boolean samples the
// same way. The second return is false for any other type.
func (s Sample) AsFloat64() (float64, bool) {
	switch s.typ {
	case Numeric:
		return s.numVal, true
	case Boolean:
		if s.boolVal {
			return 1.0, true
		}
		return 0.0, true
	default:
		return 0, false
	}
}

// MarshalJSON renders the sample as the output-stream fragment: Trigger
// samples serialize to {"t":<ts>}; others to {"t":<ts>,"v":<v>}.
func (s Sample) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteString(`{"t":`)
	b.WriteString(strconv.FormatFloat(s.timestamp, 'g', -1, 64))

	switch s.typ {
	case Trigger:
		b.WriteString("}")
		return []byte(b.String()), nil
	case Boolean:
		b.WriteString(`,"v":`)
		b.WriteString(strconv.FormatBool(s.boolVal))
	case Numeric:
		b.WriteString(`,"v":`)
		b.WriteString(strconv.FormatFloat(s.numVal, 'g', -1, 64))
	case String:
		b.WriteString(`,"v":`)
		quoted, err := json.Marshal(s.strVal)
		if err != nil {
			return nil, err
		}
		b.Write(quoted)
	case JSON:
		b.WriteString(`,"v":`)
		b.WriteString(s.strVal)
	default:
		return nil, herr.New(herr.Fatal, "unknown sample type %d", s.typ)
	}

	b.WriteString("}")
	return []byte(b.String()), nil
}
