package sample

import (
	"testing"

	"github.com/nxthongbk/datahub/internal/herr"
)

func TestMarshalJSON(t *testing.T) {
	cases := []struct {
		name string
		s    Sample
		want string
	}{
		{"trigger", NewTrigger(1.5), `{"t":1.5}`},
		{"boolean", NewBoolean(2, true), `{"t":2,"v":true}`},
		{"numeric", NewNumeric(3, 21.5), `{"t":3,"v":21.5}`},
		{"string", NewString(4, "a"), `{"t":4,"v":"a"}`},
		{"json", NewJSON(5, `{"x":1}`), `{"t":5,"v":{"x":1}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.s.MarshalJSON()
			if err != nil {
				t.Fatalf("MarshalJSON: %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestEqual(t *testing.T) {
	a := NewNumeric(1, 2.5)
	b := NewNumeric(1, 2.5)
	c := NewNumeric(1, 2.6)
	if !a.Equal(b) {
		t.Fatal("expected equal samples to be equal")
	}
	if a.Equal(c) {
		t.Fatal("expected different samples to be unequal")
	}
}

func TestAsFloat64(t *testing.T) {
	if v, ok := NewBoolean(0, true).AsFloat64(); !ok || v != 1.0 {
		t.Fatalf("true should be 1.0, got %v %v", v, ok)
	}
	if v, ok := NewBoolean(0, false).AsFloat64(); !ok || v != 0.0 {
		t.Fatalf("false should be 0.0, got %v %v", v, ok)
	}
	if _, ok := NewString(0, "x").AsFloat64(); ok {
		t.Fatal("string should not convert to float")
	}
}

func TestExtractScalar(t *testing.T) {
	s := NewJSON(1.0, `{"sensor":{"temp":21.5}}`)
	got, err := Extract(s, "sensor.temp")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Type() != Numeric {
		t.Fatalf("expected Numeric, got %s", got.Type())
	}
	v, _ := got.Float()
	if v != 21.5 {
		t.Fatalf("expected 21.5, got %v", v)
	}
	if got.Timestamp() != 1.0 {
		t.Fatalf("expected extracted sample to keep source timestamp")
	}
}

func TestExtractArrayIndex(t *testing.T) {
	s := NewJSON(1.0, `{"readings":[10,20,30]}`)
	got, err := Extract(s, "readings[1]")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	v, _ := got.Float()
	if v != 20 {
		t.Fatalf("expected 20, got %v", v)
	}
}

func TestExtractMissingMember(t *testing.T) {
	s := NewJSON(1.0, `{"sensor":{}}`)
	_, err := Extract(s, "sensor.temp")
	if !herr.Is(err, herr.NotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestExtractNonJSON(t *testing.T) {
	s := NewNumeric(1.0, 5)
	_, err := Extract(s, "x")
	if !herr.Is(err, herr.Malformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestExtractNestedObject(t *testing.T) {
	s := NewJSON(1.0, `{"a":{"b":{"c":true}}}`)
	got, err := Extract(s, "a.b")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.Type() != JSON {
		t.Fatalf("expected JSON, got %s", got.Type())
	}
	text, _ := got.Text()
	if text != `{"c":true}` {
		t.Fatalf("got %s", text)
	}
}
