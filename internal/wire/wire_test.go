package wire

import (
	"encoding/binary"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFixed(t *testing.T) {
	assert.Equal(t, 12, FixedInt(12).Int())
	assert.Equal(t, -3, FixedInt(-3).Int())
	assert.InDelta(t, 1.5, FixedDouble(1.5).Double(), 0.01)
	assert.Equal(t, Fixed(512), FixedInt(1).Mul(2))
	assert.InDelta(t, 5.0, FixedDouble(2.5).Mul(2).Double(), 0.01)
}

func TestPadding(t *testing.T) {
	assert.Equal(t, uint32(0), padding(0))
	assert.Equal(t, uint32(3), padding(1))
	assert.Equal(t, uint32(2), padding(2))
	assert.Equal(t, uint32(0), padding(4))
	assert.Equal(t, uint32(3), padding(5))
}

func TestMessageRoundtrip(t *testing.T) {
	a, b, err := Socketpair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	out := &Message{Sender: 7, Opcode: 3, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}
	require.NoError(t, a.WriteMessage(out))

	in, err := b.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), in.Sender)
	assert.Equal(t, uint16(3), in.Opcode)
	assert.Equal(t, out.Data, in.Data)
	assert.Empty(t, in.Files())
}

func TestMessageCarriesDescriptors(t *testing.T) {
	a, b, err := Socketpair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	fd, err := unix.MemfdCreate("wire-test", unix.MFD_CLOEXEC)
	require.NoError(t, err)
	require.NoError(t, unix.Ftruncate(fd, 64))
	file := os.NewFile(uintptr(fd), "wire-test")
	defer file.Close()

	out := &Message{Sender: 2, Opcode: 0, Data: []byte{0, 0, 0, 0}}
	out.AddFile(file)
	require.NoError(t, a.WriteMessage(out))

	in, err := b.ReadMessage()
	require.NoError(t, err)
	got, err := in.TakeFile()
	require.NoError(t, err)
	defer got.Close()

	// The received descriptor references the same object.
	var st unix.Stat_t
	require.NoError(t, unix.Fstat(int(got.Fd()), &st))
	assert.Equal(t, int64(64), st.Size)

	_, err = in.TakeFile()
	assert.Error(t, err)
}

func TestBadSizeRejected(t *testing.T) {
	a, b, err := Socketpair()
	require.NoError(t, err)
	defer a.Close()
	defer b.Close()

	// Hand-build a header claiming a 4-byte total size.
	buf := make([]byte, 8)
	binary.NativeEndian.PutUint32(buf[0:4], 1)
	binary.NativeEndian.PutUint32(buf[4:8], 4<<16|0)

	_, werr := a.conn.Write(buf)
	require.NoError(t, werr)
	_, rerr := b.ReadMessage()
	assert.Error(t, rerr)
}
