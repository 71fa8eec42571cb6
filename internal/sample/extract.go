package sample

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/nxthongbk/datahub/internal/herr"
)

// Extract takes a JSON sample and a path expression of the form
// "member1.member2[index]..." and yields a new sample whose type is
// inferred from the pointed-at JSON token: object/array become JSON,
// true/false become Boolean, a number becomes Numeric, a string stays
// String. The result carries s's timestamp.
//
// Extraction is built directly on encoding/json rather than a dedicated
// path-extraction library — reaching for one here for a three-clause
// switch over "."/"[i]" segments would be dependency-for-its-own-sake.
func Extract(s Sample, path string) (Sample, error) {
	if s.typ != JSON {
		return Sample{}, herr.New(herr.Malformed, "extraction requires a JSON sample, got %s", s.typ)
	}

	var root interface{}
	if err := json.Unmarshal([]byte(s.strVal), &root); err != nil {
		return Sample{}, herr.Wrap(herr.Malformed, err, "invalid JSON sample")
	}

	segments, err := parsePath(path)
	if err != nil {
		return Sample{}, err
	}

	cur := root
	for _, seg := range segments {
		switch seg.kind {
		case segMember:
			m, ok := cur.(map[string]interface{})
			if !ok {
				return Sample{}, herr.New(herr.NotFound, "extraction path %q: %q is not an object", path, seg.name)
			}
			v, ok := m[seg.name]
			if !ok {
				return Sample{}, herr.New(herr.NotFound, "extraction path %q: member %q missing", path, seg.name)
			}
			cur = v
		case segIndex:
			a, ok := cur.([]interface{})
			if !ok {
				return Sample{}, herr.New(herr.NotFound, "extraction path %q: not an array at index %d", path, seg.index)
			}
			if seg.index < 0 || seg.index >= len(a) {
				return Sample{}, herr.New(herr.NotFound, "extraction path %q: index %d out of range", path, seg.index)
			}
			cur = a[seg.index]
		}
	}

	return valueToSample(s.timestamp, cur)
}

func valueToSample(ts float64, v interface{}) (Sample, error) {
	switch t := v.(type) {
	case nil:
		return Sample{}, herr.New(herr.NotFound, "extraction target is null")
	case bool:
		return NewBoolean(ts, t), nil
	case float64:
		return NewNumeric(ts, t), nil
	case string:
		return NewString(ts, t), nil
	case map[string]interface{}, []interface{}:
		encoded, err := json.Marshal(t)
		if err != nil {
			return Sample{}, herr.Wrap(herr.Fatal, err, "re-encoding extracted JSON token")
		}
		return NewJSON(ts, string(encoded)), nil
	default:
		return Sample{}, herr.New(herr.Fatal, "unrecognized JSON token type %T", v)
	}
}

type segKind int

const (
	segMember segKind = iota
	segIndex
)

type pathSeg struct {
	kind  segKind
	name  string
	index int
}

// parsePath parses "member1.member2[index][index2]..." into an ordered
// list of member/index accesses.
func parsePath(path string) ([]pathSeg, error) {
	if path == "" {
		return nil, herr.New(herr.Malformed, "empty extraction path")
	}

	var segs []pathSeg
	for _, dotPart := range strings.Split(path, ".") {
		name, indices, err := splitIndices(dotPart)
		if err != nil {
			return nil, err
		}
		if name != "" {
			segs = append(segs, pathSeg{kind: segMember, name: name})
		}
		for _, idx := range indices {
			segs = append(segs, pathSeg{kind: segIndex, index: idx})
		}
	}
	return segs, nil
}

// splitIndices splits "name[0][1]" into ("name", [0, 1]).
func splitIndices(part string) (string, []int, error) {
	bracket := strings.IndexByte(part, '[')
	if bracket < 0 {
		return part, nil, nil
	}

	name := part[:bracket]
	rest := part[bracket:]

	var indices []int
	for len(rest) > 0 {
		if rest[0] != '[' {
			return "", nil, herr.New(herr.Malformed, "malformed extraction path segment %q", part)
		}
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", nil, herr.New(herr.Malformed, "unterminated index in %q", part)
		}
		idx, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, herr.Wrap(herr.Malformed, err, "non-integer index in %q", part)
		}
		indices = append(indices, idx)
		rest = rest[end+1:]
	}

	return name, indices, nil
}
