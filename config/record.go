package config

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	moqerrors "github.com/suhasHere/moqbridge/errors"
)

// FieldKind is the boundary type of a record field.
type FieldKind uint8

const (
	KindString FieldKind = iota + 1
	KindPath
	KindDuration
	KindUint
	KindBool
)

func (k FieldKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindPath:
		return "path"
	case KindDuration:
		return "duration"
	case KindUint:
		return "uint"
	case KindBool:
		return "bool"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Field is one marshaled option. Present is false for the null marker.
type Field struct {
	Name    string
	Kind    FieldKind
	Present bool
	Str     string
	Uint    uint64
	Bool    bool
}

func (f Field) String() string {
	if !f.Present {
		return f.Name + "=<null>"
	}
	switch f.Kind {
	case KindString, KindPath:
		return fmt.Sprintf("%s=%q", f.Name, f.Str)
	case KindDuration:
		return fmt.Sprintf("%s=%s", f.Name, time.Duration(f.Uint)*time.Millisecond)
	case KindBool:
		return fmt.Sprintf("%s=%t", f.Name, f.Bool)
	}
	return fmt.Sprintf("%s=%d", f.Name, f.Uint)
}

// Record is the boundary form of a Config, in fixed field order.
type Record struct {
	Fields []Field
}

// Lookup returns the field called name.
func (r *Record) Lookup(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Marshal converts c to its boundary record. Text fields must be
// representable as NUL-terminated native strings.
func (c *Config) Marshal() (*Record, error) {
	r := &Record{Fields: make([]Field, 0, 11)}

	if err := r.text("relayUrl", KindString, &c.RelayURL); err != nil {
		return nil, err
	}
	if err := r.text("clientName", KindString, c.ClientName); err != nil {
		return nil, err
	}
	r.duration("connectTimeout", c.ConnectTimeout)
	r.duration("idleTimeout", c.IdleTimeout)

	f := Field{Name: "maxSendBuffer", Kind: KindUint}
	if c.MaxSendBuffer != nil {
		f.Present = true
		f.Uint = uint64(*c.MaxSendBuffer)
	}
	r.Fields = append(r.Fields, f)

	r.flag("enableDatagrams", c.EnableDatagrams)
	r.flag("insecureSkipVerify", c.InsecureSkipVerify)

	for _, p := range []struct {
		name string
		v    *string
	}{
		{"tlsCertPath", c.TLSCertPath},
		{"tlsKeyPath", c.TLSKeyPath},
		{"tlsCaPath", c.TLSCAPath},
		{"qlogDir", c.QlogDir},
	} {
		if err := r.text(p.name, KindPath, p.v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Record) text(name string, kind FieldKind, v *string) error {
	f := Field{Name: name, Kind: kind}
	if v != nil {
		if i := strings.IndexByte(*v, 0); i >= 0 {
			return moqerrors.EmbeddedNUL(name, i)
		}
		f.Present = true
		f.Str = *v
	}
	r.Fields = append(r.Fields, f)
	return nil
}

func (r *Record) duration(name string, v *time.Duration) {
	f := Field{Name: name, Kind: KindDuration}
	if v != nil {
		f.Present = true
		f.Uint = uint64(*v / time.Millisecond)
	}
	r.Fields = append(r.Fields, f)
}

func (r *Record) flag(name string, v *bool) {
	f := Field{Name: name, Kind: KindBool}
	if v != nil {
		f.Present = true
		f.Bool = *v
	}
	r.Fields = append(r.Fields, f)
}

// Null and present tags of the encoded form.
const (
	TagNull    byte = 0
	TagPresent byte = 1
)

var recordMagic = [4]byte{'M', 'Q', 'C', 'F'}

// RecordVersion is the version byte of the encoded form.
const RecordVersion byte = 1

// Encode returns the byte form handed to engines that take a flat buffer:
//
//	"MQCF" version:u8 count:u16
//	per field: kind:u8 tag:u8 [payload if tag == 1]
//	payload: string/path u32 length + bytes, duration u64 ms, uint u64, bool u8
//
// Integers are little endian.
func (r *Record) Encode() []byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, recordMagic[:]...)
	buf = append(buf, RecordVersion)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(r.Fields)))

	for _, f := range r.Fields {
		buf = append(buf, byte(f.Kind))
		if !f.Present {
			buf = append(buf, TagNull)
			continue
		}
		buf = append(buf, TagPresent)
		switch f.Kind {
		case KindString, KindPath:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(f.Str)))
			buf = append(buf, f.Str...)
		case KindDuration, KindUint:
			buf = binary.LittleEndian.AppendUint64(buf, f.Uint)
		case KindBool:
			if f.Bool {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		}
	}
	return buf
}

// DecodeRecord parses the encoded form. Field names are restored from the
// fixed order used by Marshal.
func DecodeRecord(data []byte) (*Record, error) {
	bad := func(detail string) error {
		return moqerrors.Configuration("record", detail)
	}
	if len(data) < 7 || [4]byte(data[:4]) != recordMagic {
		return nil, bad("bad magic")
	}
	if data[4] != RecordVersion {
		return nil, bad(fmt.Sprintf("unsupported version %d", data[4]))
	}
	count := int(binary.LittleEndian.Uint16(data[5:7]))
	if count != len(fieldOrder) {
		return nil, bad(fmt.Sprintf("expected %d fields, got %d", len(fieldOrder), count))
	}
	p := data[7:]

	r := &Record{Fields: make([]Field, 0, count)}
	for i := 0; i < count; i++ {
		if len(p) < 2 {
			return nil, bad("truncated")
		}
		f := Field{Name: fieldOrder[i], Kind: FieldKind(p[0])}
		tag := p[1]
		p = p[2:]
		switch tag {
		case TagNull:
			r.Fields = append(r.Fields, f)
			continue
		case TagPresent:
			f.Present = true
		default:
			return nil, bad(fmt.Sprintf("bad tag %d", tag))
		}

		switch f.Kind {
		case KindString, KindPath:
			if len(p) < 4 {
				return nil, bad("truncated")
			}
			n := int(binary.LittleEndian.Uint32(p))
			p = p[4:]
			if len(p) < n {
				return nil, bad("truncated")
			}
			f.Str = string(p[:n])
			p = p[n:]
		case KindDuration, KindUint:
			if len(p) < 8 {
				return nil, bad("truncated")
			}
			f.Uint = binary.LittleEndian.Uint64(p)
			p = p[8:]
		case KindBool:
			if len(p) < 1 {
				return nil, bad("truncated")
			}
			f.Bool = p[0] != 0
			p = p[1:]
		default:
			return nil, bad(fmt.Sprintf("bad kind %d", f.Kind))
		}
		r.Fields = append(r.Fields, f)
	}
	return r, nil
}

var fieldOrder = []string{
	"relayUrl",
	"clientName",
	"connectTimeout",
	"idleTimeout",
	"maxSendBuffer",
	"enableDatagrams",
	"insecureSkipVerify",
	"tlsCertPath",
	"tlsKeyPath",
	"tlsCaPath",
	"qlogDir",
}
