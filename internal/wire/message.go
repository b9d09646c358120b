package wire

import (
	"encoding/binary"
	"errors"
	"os"
)

// headerSize is the fixed Wayland message header: sender id, then
// size<<16|opcode.
const headerSize = 8

// MaxMessageSize bounds a single message. The reference server uses
// 4096; we allow larger payloads for keymap-style arrays but still
// refuse anything that cannot be a sane message.
const MaxMessageSize = 1 << 16

// Message is one framed Wayland message, read from or destined for a
// Conn. Data holds the payload after the 8-byte header, still in wire
// encoding. Files are the descriptors that arrived alongside it, in
// order; argument decoding claims them one at a time.
type Message struct {
	Sender uint32
	Opcode uint16
	Data   []byte

	files []*os.File
}

// AddFile appends a descriptor to be sent with the message. The
// message does not take ownership; the caller closes f once the
// message has been written.
func (m *Message) AddFile(f *os.File) {
	m.files = append(m.files, f)
}

// TakeFile removes and returns the next attached descriptor. The
// caller owns the returned file.
func (m *Message) TakeFile() (*os.File, error) {
	if len(m.files) == 0 {
		return nil, errors.New("wire: message carries no more file descriptors")
	}
	f := m.files[0]
	m.files = m.files[1:]
	return f, nil
}

// Files returns the descriptors still attached to the message.
func (m *Message) Files() []*os.File {
	return m.files
}

// CloseFiles closes every descriptor still attached. Forwarding code
// calls this after a message has been fully handled so that stray
// descriptors never leak.
func (m *Message) CloseFiles() error {
	var errs []error
	for _, f := range m.files {
		if f != nil {
			errs = append(errs, f.Close())
		}
	}
	m.files = nil
	return errors.Join(errs...)
}

// CloseFilesAfter invokes write with the message, then closes the
// attached descriptors regardless of outcome. Once a message is on
// the wire the kernel holds its own references; the local copies are
// done.
func (m *Message) CloseFilesAfter(write func(*Message) error) error {
	err := write(m)
	if cerr := m.CloseFiles(); err == nil {
		err = cerr
	}
	return err
}

// Size is the total encoded size including the header.
func (m *Message) Size() int {
	return headerSize + len(m.Data)
}

func (m *Message) encodeHeader(buf []byte) {
	binary.NativeEndian.PutUint32(buf[0:4], m.Sender)
	binary.NativeEndian.PutUint32(buf[4:8], uint32(m.Size())<<16|uint32(m.Opcode))
}
