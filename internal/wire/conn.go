package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// Conn is one side of a Wayland connection. It frames messages and
// carries the per-connection queue of received file descriptors;
// descriptors are handed to messages in arrival order, which matches
// how the peer attached them.
type Conn struct {
	conn *net.UnixConn
	fds  []int
}

// NewConn wraps an already-connected unix socket. The socket must be
// SOCK_STREAM on a unix domain; Wayland fd passing does not survive
// anything else.
func NewConn(c *net.UnixConn) *Conn {
	return &Conn{conn: c}
}

// Close closes the socket and any descriptors that were received but
// never claimed by a message.
func (c *Conn) Close() error {
	errs := []error{c.conn.Close()}
	for _, fd := range c.fds {
		errs = append(errs, unix.Close(fd))
	}
	c.fds = nil
	return errors.Join(errs...)
}

func xdgRuntimeDir() string {
	if dir, ok := os.LookupEnv("XDG_RUNTIME_DIR"); ok {
		return dir
	}
	return fmt.Sprintf("/run/user/%d", os.Getuid())
}

// SocketPath resolves the host compositor socket from the
// environment, the same way libwayland does.
func SocketPath() string {
	v, ok := os.LookupEnv("WAYLAND_DISPLAY")
	if !ok {
		v = "wayland-0"
	}
	if filepath.IsAbs(v) {
		return v
	}
	return filepath.Join(xdgRuntimeDir(), v)
}

// Dial connects to the host compositor. $WAYLAND_SOCKET takes
// precedence over $WAYLAND_DISPLAY, matching the libwayland client
// transport rules.
func Dial() (*Conn, error) {
	if v, ok := os.LookupEnv("WAYLAND_SOCKET"); ok {
		fd, err := strconv.ParseInt(v, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("parse WAYLAND_SOCKET: %w", err)
		}
		file := os.NewFile(uintptr(fd), "WAYLAND_SOCKET")
		defer file.Close()
		fc, err := net.FileConn(file)
		if err != nil {
			return nil, fmt.Errorf("open WAYLAND_SOCKET connection: %w", err)
		}
		uc, ok := fc.(*net.UnixConn)
		if !ok {
			fc.Close()
			return nil, errors.New("WAYLAND_SOCKET is not a unix socket")
		}
		return NewConn(uc), nil
	}

	conn, err := net.Dial("unix", SocketPath())
	if err != nil {
		return nil, err
	}
	return NewConn(conn.(*net.UnixConn)), nil
}

// DialPath connects to an explicit compositor socket path.
func DialPath(path string) (*Conn, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, err
	}
	return NewConn(conn.(*net.UnixConn)), nil
}

// Listen creates the guest-facing listening socket, replacing a stale
// socket file left behind by a previous run.
func Listen(path string) (*net.UnixListener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Socketpair returns two connected Conns. Tests use it to stand in
// for the guest and host sockets.
func Socketpair() (*Conn, *Conn, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, err
	}
	a, err := fdConn(fds[0])
	if err != nil {
		unix.Close(fds[1])
		return nil, nil, err
	}
	b, err := fdConn(fds[1])
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, b, nil
}

func fdConn(fd int) (*Conn, error) {
	file := os.NewFile(uintptr(fd), "socketpair")
	defer file.Close()
	fc, err := net.FileConn(file)
	if err != nil {
		return nil, err
	}
	return NewConn(fc.(*net.UnixConn)), nil
}

// readFull reads exactly len(buf) bytes, collecting any SCM_RIGHTS
// control data into the connection's fd queue as it goes.
func (c *Conn) readFull(buf []byte) error {
	oob := make([]byte, unix.CmsgSpace(28*4))
	for n := 0; n < len(buf); {
		nn, oobn, _, _, err := c.conn.ReadMsgUnix(buf[n:], oob)
		if err != nil {
			return err
		}
		if nn == 0 && oobn == 0 {
			return errors.New("wire: connection closed mid-message")
		}
		if oobn > 0 {
			if err := c.queueFDs(oob[:oobn]); err != nil {
				return err
			}
		}
		n += nn
	}
	return nil
}

func (c *Conn) queueFDs(oob []byte) error {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return fmt.Errorf("parse control message: %w", err)
	}
	for _, cmsg := range cmsgs {
		fds, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			if errors.Is(err, unix.EINVAL) {
				continue
			}
			return fmt.Errorf("parse unix rights: %w", err)
		}
		for _, fd := range fds {
			unix.CloseOnExec(fd)
		}
		c.fds = append(c.fds, fds...)
	}
	return nil
}

// takeFiles drains the received-descriptor queue into *os.File
// handles. Every descriptor that has arrived by the time a message is
// fully read belongs to that message or an earlier one; attaching the
// whole queue preserves arrival order across fragmented reads.
func (c *Conn) takeFiles() []*os.File {
	if len(c.fds) == 0 {
		return nil
	}
	files := make([]*os.File, len(c.fds))
	for i, fd := range c.fds {
		files[i] = os.NewFile(uintptr(fd), "wayland-fd")
	}
	c.fds = nil
	return files
}

// ReadMessage reads the next framed message. Any file descriptors
// received up to the end of the frame are attached to it.
func (c *Conn) ReadMessage() (*Message, error) {
	var hdr [headerSize]byte
	if err := c.readFull(hdr[:]); err != nil {
		return nil, err
	}

	sender := binary.NativeEndian.Uint32(hdr[0:4])
	so := binary.NativeEndian.Uint32(hdr[4:8])
	size := so >> 16
	op := uint16(so & 0xFFFF)

	if size < headerSize || size > MaxMessageSize {
		return nil, fmt.Errorf("wire: bad message size %d from object %d", size, sender)
	}

	data := make([]byte, size-headerSize)
	if err := c.readFull(data); err != nil {
		return nil, fmt.Errorf("read message body: %w", err)
	}

	return &Message{
		Sender: sender,
		Opcode: op,
		Data:   data,
		files:  c.takeFiles(),
	}, nil
}

// WriteMessage sends m, attaching its files as SCM_RIGHTS. The files
// remain open; the caller decides when to close them.
func (c *Conn) WriteMessage(m *Message) error {
	if m.Size() > MaxMessageSize {
		return fmt.Errorf("wire: message size %d exceeds limit", m.Size())
	}

	buf := make([]byte, m.Size())
	m.encodeHeader(buf)
	copy(buf[headerSize:], m.Data)

	var oob []byte
	if len(m.files) > 0 {
		fds := make([]int, len(m.files))
		for i, f := range m.files {
			fds[i] = int(f.Fd())
		}
		oob = unix.UnixRights(fds...)
	}

	n, _, err := c.conn.WriteMsgUnix(buf, oob, nil)
	if err != nil {
		return err
	}
	if n < len(buf) {
		// WriteMsgUnix on a stream socket either writes the whole
		// buffer or fails; a short write means the peer vanished.
		return errors.New("wire: short write")
	}
	return nil
}
