// Package protocol carries compile-time metadata for every Wayland
// interface the relay speaks, plus the signature-driven argument
// codec. Signatures use the libwayland convention: i (int), u (uint),
// f (fixed), s (string), o (object), n (new id), a (array), h (fd). A
// '?' prefix marks a nullable object or string and is ignored by the
// codec; it documents the protocol.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/bnema/virtway/internal/wire"
)

// ObjectID is an object argument on the wire. Zero means null.
type ObjectID uint32

// NewID is a new_id argument. For typed new_id arguments only ID is
// on the wire; the untyped form (wl_registry.bind) also carries the
// interface name and version.
type NewID struct {
	ID        uint32
	Interface string
	Version   uint32
}

// MessageDesc describes one request or event of an interface.
type MessageDesc struct {
	Name      string
	Signature string

	// Types names the interface of each 'o' and 'n' argument in
	// signature order. An empty string means untyped: any object for
	// 'o', the wl_registry.bind triple for 'n'.
	Types []string

	// Destructor marks requests whose delivery destroys the sender.
	Destructor bool

	Since uint32
}

// Interface is the static description of a protocol interface.
type Interface struct {
	Name     string
	Version  uint32
	Requests []MessageDesc
	Events   []MessageDesc
}

// Request returns the request descriptor for an opcode.
func (i *Interface) Request(op uint16) (*MessageDesc, error) {
	if int(op) >= len(i.Requests) {
		return nil, fmt.Errorf("protocol: %s has no request opcode %d", i.Name, op)
	}
	return &i.Requests[op], nil
}

// Event returns the event descriptor for an opcode.
func (i *Interface) Event(op uint16) (*MessageDesc, error) {
	if int(op) >= len(i.Events) {
		return nil, fmt.Errorf("protocol: %s has no event opcode %d", i.Name, op)
	}
	return &i.Events[op], nil
}

// EventOpcode resolves an event name to its opcode. It is used by the
// few hand-built events the relay originates itself.
func (i *Interface) EventOpcode(name string) uint16 {
	for op, d := range i.Events {
		if d.Name == name {
			return uint16(op)
		}
	}
	panic("protocol: unknown event " + i.Name + "." + name)
}

// RequestOpcode resolves a request name to its opcode.
func (i *Interface) RequestOpcode(name string) uint16 {
	for op, d := range i.Requests {
		if d.Name == name {
			return uint16(op)
		}
	}
	panic("protocol: unknown request " + i.Name + "." + name)
}

// typeAt returns the declared interface name for the k-th object-like
// argument (counting 'o' and 'n' in signature order).
func (d *MessageDesc) typeAt(k int) string {
	if k >= len(d.Types) {
		return ""
	}
	return d.Types[k]
}

type decoder struct {
	data []byte
	off  int
}

func (r *decoder) uint32() (uint32, error) {
	if r.off+4 > len(r.data) {
		return 0, errors.New("protocol: truncated argument")
	}
	v := binary.NativeEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v, nil
}

func (r *decoder) str() (string, error) {
	length, err := r.uint32()
	if err != nil {
		return "", err
	}
	if length == 0 {
		// Null string: no payload at all.
		return "", nil
	}
	total := int(length + padding(length))
	if r.off+total > len(r.data) {
		return "", errors.New("protocol: truncated string")
	}
	raw := r.data[r.off : r.off+int(length)]
	r.off += total
	if raw[len(raw)-1] != 0 {
		return "", errors.New("protocol: string not null-terminated")
	}
	return string(raw[:len(raw)-1]), nil
}

func (r *decoder) array() ([]byte, error) {
	length, err := r.uint32()
	if err != nil {
		return nil, err
	}
	total := int(length + padding(length))
	if r.off+total > len(r.data) {
		return nil, errors.New("protocol: truncated array")
	}
	v := r.data[r.off : r.off+int(length)]
	r.off += total
	return v, nil
}

func padding(length uint32) uint32 {
	return (4 - (length & 3)) & 3
}

// Decode extracts the argument values of m under descriptor d. File
// descriptor arguments are claimed from the message in order; the
// caller owns the returned files.
func (d *MessageDesc) Decode(m *wire.Message) ([]any, error) {
	r := decoder{data: m.Data}
	var vals []any
	for i := 0; i < len(d.Signature); i++ {
		switch c := d.Signature[i]; c {
		case '?':
			continue
		case 'i':
			v, err := r.uint32()
			if err != nil {
				return nil, err
			}
			vals = append(vals, int32(v))
		case 'u':
			v, err := r.uint32()
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		case 'f':
			v, err := r.uint32()
			if err != nil {
				return nil, err
			}
			vals = append(vals, wire.Fixed(v))
		case 's':
			v, err := r.str()
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		case 'o':
			v, err := r.uint32()
			if err != nil {
				return nil, err
			}
			vals = append(vals, ObjectID(v))
		case 'n':
			var id NewID
			if d.typed(len(vals), i) {
				v, err := r.uint32()
				if err != nil {
					return nil, err
				}
				id.ID = v
			} else {
				iface, err := r.str()
				if err != nil {
					return nil, err
				}
				version, err := r.uint32()
				if err != nil {
					return nil, err
				}
				v, err := r.uint32()
				if err != nil {
					return nil, err
				}
				id = NewID{ID: v, Interface: iface, Version: version}
			}
			vals = append(vals, id)
		case 'a':
			v, err := r.array()
			if err != nil {
				return nil, err
			}
			vals = append(vals, v)
		case 'h':
			f, err := m.TakeFile()
			if err != nil {
				return nil, err
			}
			vals = append(vals, f)
		default:
			return nil, fmt.Errorf("protocol: bad signature char %q in %s", c, d.Name)
		}
	}
	return vals, nil
}

// typed reports whether the new_id at value index v (signature index
// si) names a fixed interface. Only wl_registry.bind uses the untyped
// form.
func (d *MessageDesc) typed(v, si int) bool {
	k := 0
	for i := 0; i < si; i++ {
		if d.Signature[i] == 'o' || d.Signature[i] == 'n' {
			k++
		}
	}
	return d.typeAt(k) != ""
}

// ObjectType returns the declared interface name of the object-like
// value at index v of d's decoded values, or "" when untyped.
func (d *MessageDesc) ObjectType(v int) string {
	k, seen := 0, 0
	for i := 0; i < len(d.Signature); i++ {
		c := d.Signature[i]
		if c == '?' {
			continue
		}
		if c == 'o' || c == 'n' {
			if seen == v {
				return d.typeAt(k)
			}
			k++
		}
		seen++
	}
	return ""
}

// Encode builds a wire message for opcode op of d with the given
// values. Files are attached in signature order but stay owned by the
// caller.
func (d *MessageDesc) Encode(sender uint32, op uint16, vals []any) (*wire.Message, error) {
	m := &wire.Message{Sender: sender, Opcode: op}
	vi := 0
	next := func() (any, error) {
		if vi >= len(vals) {
			return nil, fmt.Errorf("protocol: %s: not enough values", d.Name)
		}
		v := vals[vi]
		vi++
		return v, nil
	}
	for i := 0; i < len(d.Signature); i++ {
		c := d.Signature[i]
		if c == '?' {
			continue
		}
		v, err := next()
		if err != nil {
			return nil, err
		}
		switch c {
		case 'i':
			putUint32(m, uint32(v.(int32)))
		case 'u':
			putUint32(m, v.(uint32))
		case 'f':
			putUint32(m, uint32(v.(wire.Fixed)))
		case 's':
			putString(m, v.(string))
		case 'o':
			putUint32(m, uint32(v.(ObjectID)))
		case 'n':
			id := v.(NewID)
			if id.Interface != "" {
				putString(m, id.Interface)
				putUint32(m, id.Version)
			}
			putUint32(m, id.ID)
		case 'a':
			putArray(m, v.([]byte))
		case 'h':
			f, ok := v.(*os.File)
			if !ok || f == nil {
				return nil, fmt.Errorf("protocol: %s: fd argument is nil", d.Name)
			}
			m.AddFile(f)
		default:
			return nil, fmt.Errorf("protocol: bad signature char %q in %s", c, d.Name)
		}
	}
	return m, nil
}

func putUint32(m *wire.Message, v uint32) {
	var b [4]byte
	binary.NativeEndian.PutUint32(b[:], v)
	m.Data = append(m.Data, b[:]...)
}

func putString(m *wire.Message, s string) {
	length := uint32(len(s) + 1)
	putUint32(m, length)
	m.Data = append(m.Data, s...)
	for i := uint32(0); i < 1+padding(length); i++ {
		m.Data = append(m.Data, 0)
	}
}

func putArray(m *wire.Message, a []byte) {
	length := uint32(len(a))
	putUint32(m, length)
	m.Data = append(m.Data, a...)
	for i := uint32(0); i < padding(length); i++ {
		m.Data = append(m.Data, 0)
	}
}
