// Package backup implements the backup store: binary on-disk persistence
// of observation buffers, atomic writes, restore-on-create, and the
// orphan sweep over a backup root directory.
package backup

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/nxthongbk/datahub/internal/herr"
	"github.com/nxthongbk/datahub/internal/sample"
)

// version is the only backup file format this store understands. Any
// other version byte is rejected.
const version = 0

func typeCode(t sample.Type) (byte, error) {
	switch t {
	case sample.Trigger:
		return 't', nil
	case sample.Boolean:
		return 'b', nil
	case sample.Numeric:
		return 'n', nil
	case sample.String:
		return 's', nil
	case sample.JSON:
		return 'j', nil
	default:
		return 0, herr.New(herr.Fatal, "unknown sample type %v", t)
	}
}

func typeFromCode(c byte) (sample.Type, error) {
	switch c {
	case 't':
		return sample.Trigger, nil
	case 'b':
		return sample.Boolean, nil
	case 'n':
		return sample.Numeric, nil
	case 's':
		return sample.String, nil
	case 'j':
		return sample.JSON, nil
	default:
		return 0, herr.New(herr.Malformed, "unrecognized backup type code %q", c)
	}
}

// Encode serializes samples (all of type t, oldest first) into the
// on-disk binary layout.
func Encode(t sample.Type, samples []sample.Sample) ([]byte, error) {
	code, err := typeCode(t)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte(version)
	buf.WriteByte(code)
	if err := binary.Write(&buf, binary.LittleEndian, uint32(len(samples))); err != nil {
		return nil, herr.Wrap(herr.IOError, err, "encode record count")
	}

	for _, s := range samples {
		if err := binary.Write(&buf, binary.LittleEndian, s.Timestamp()); err != nil {
			return nil, herr.Wrap(herr.IOError, err, "encode timestamp")
		}
		if err := encodeValue(&buf, t, s); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, t sample.Type, s sample.Sample) error {
	switch t {
	case sample.Trigger:
		return nil
	case sample.Boolean:
		b, _ := s.Bool()
		v := byte(0)
		if b {
			v = 1
		}
		buf.WriteByte(v)
		return nil
	case sample.Numeric:
		v, _ := s.Float()
		return binary.Write(buf, binary.LittleEndian, v)
	case sample.String, sample.JSON:
		text, _ := s.Text()
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(text))); err != nil {
			return herr.Wrap(herr.IOError, err, "encode string length")
		}
		buf.WriteString(text)
		return nil
	default:
		return herr.New(herr.Fatal, "unknown sample type %v", t)
	}
}

// Decode parses the on-disk binary layout. It reports herr.Underflow on a
// short/truncated file and herr.Malformed on a bad version or type code,
// so readers fail cleanly rather than panic on truncated or corrupt
// files.
func Decode(data []byte) (sample.Type, []sample.Sample, error) {
	r := bytes.NewReader(data)

	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, herr.Wrap(herr.Underflow, err, "read header")
	}
	if hdr[0] != version {
		return 0, nil, herr.New(herr.Malformed, "unsupported backup version %d", hdr[0])
	}
	t, err := typeFromCode(hdr[1])
	if err != nil {
		return 0, nil, err
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return 0, nil, herr.Wrap(herr.Underflow, err, "read record count")
	}

	samples := make([]sample.Sample, 0, count)
	for i := uint32(0); i < count; i++ {
		var ts float64
		if err := binary.Read(r, binary.LittleEndian, &ts); err != nil {
			return 0, nil, herr.Wrap(herr.Underflow, err, "read timestamp")
		}
		s, err := decodeValue(r, t, ts)
		if err != nil {
			return 0, nil, err
		}
		samples = append(samples, s)
	}
	return t, samples, nil
}

func decodeValue(r *bytes.Reader, t sample.Type, ts float64) (sample.Sample, error) {
	switch t {
	case sample.Trigger:
		return sample.NewTrigger(ts), nil
	case sample.Boolean:
		b, err := r.ReadByte()
		if err != nil {
			return sample.Sample{}, herr.Wrap(herr.Underflow, err, "read boolean value")
		}
		return sample.NewBoolean(ts, b != 0), nil
	case sample.Numeric:
		var v float64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return sample.Sample{}, herr.Wrap(herr.Underflow, err, "read numeric value")
		}
		return sample.NewNumeric(ts, v), nil
	case sample.String, sample.JSON:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return sample.Sample{}, herr.Wrap(herr.Underflow, err, "read string length")
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return sample.Sample{}, herr.Wrap(herr.Underflow, err, "read string bytes")
		}
		if t == sample.String {
			return sample.NewString(ts, string(b)), nil
		}
		return sample.NewJSON(ts, string(b)), nil
	default:
		return sample.Sample{}, herr.New(herr.Fatal, "unknown sample type %v", t)
	}
}
