package relay

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bnema/virtway/internal/protocol"
	"github.com/bnema/virtway/internal/virtgpu"
	"github.com/bnema/virtway/internal/wire"
)

// fakeHostGlobals is what the scripted compositor advertises during
// bootstrap.
var fakeHostGlobals = []struct {
	name    uint32
	iface   string
	version uint32
}{
	{1, "wl_compositor", 4},
	{2, "wl_shm", 1},
	{3, "wl_data_device_manager", 3},
	{4, "zwp_primary_selection_device_manager_v1", 1},
	{5, "wl_seat", 7},
	{6, "wl_output", 4},
	{7, "zxdg_output_manager_v1", 3},
	{8, "xdg_wm_base", 2},
}

// countingDevice wraps an allocator and counts allocations, so tests
// can assert laziness.
type countingDevice struct {
	inner  virtgpu.Device
	allocs int
}

func (d *countingDevice) Alloc(q virtgpu.Query) (*virtgpu.Image, error) {
	d.allocs++
	return d.inner.Alloc(q)
}

func (d *countingDevice) Close() error { return d.inner.Close() }

// env drives a session synchronously: guest requests and host events
// are dispatched inline, and the scripted peers read what the relay
// wrote to the sockets.
type env struct {
	t *testing.T
	s *Session

	guest *wire.Conn // the guest client's end
	host  *wire.Conn // the fake compositor's end

	device *countingDevice

	// hostIfaces tracks, on the fake compositor's side, the interface
	// of every object the relay created there.
	hostIfaces map[uint32]*protocol.Interface
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()

	gs, gc, err := wire.Socketpair()
	require.NoError(t, err)
	hs, hc, err := wire.Socketpair()
	require.NoError(t, err)
	t.Cleanup(func() {
		gc.Close()
		hc.Close()
	})

	if opts.Clipboard == nil {
		opts.Clipboard = &Clipboard{prefix: "#PID1#"}
	}
	if opts.Device == nil {
		opts.Device = &countingDevice{inner: virtgpu.NewMemfd()}
	}
	device, _ := opts.Device.(*countingDevice)

	s := NewSession(gs, hs, opts)
	t.Cleanup(func() {
		gs.Close()
		hs.Close()
	})

	e := &env{
		t: t, s: s, guest: gc, host: hc, device: device,
		hostIfaces: map[uint32]*protocol.Interface{1: protocol.Display},
	}

	// Script the bootstrap answers before the relay reads them:
	// socketpair buffering makes the roundtrip synchronous. The relay
	// allocates the registry as host id 2 and the sync callback as 3.
	for _, g := range fakeHostGlobals {
		e.hostWrite(2, protocol.Registry, "global", g.name, g.iface, g.version)
	}
	e.hostWrite(3, protocol.Callback, "done", uint32(0))
	require.NoError(t, s.connectHost())

	// Drain the relay's bootstrap requests.
	e.expectHost("get_registry")
	e.expectHost("sync")
	return e
}

// hostWrite puts a raw event on the fake compositor's socket.
func (e *env) hostWrite(sender uint32, iface *protocol.Interface, event string, vals ...any) {
	e.t.Helper()
	op := iface.EventOpcode(event)
	d, err := iface.Event(op)
	require.NoError(e.t, err)
	m, err := d.Encode(sender, op, vals)
	require.NoError(e.t, err)
	require.NoError(e.t, m.CloseFilesAfter(e.host.WriteMessage))
}

// fromGuest dispatches a guest request into the session.
func (e *env) fromGuest(sender uint32, iface *protocol.Interface, req string, vals ...any) {
	e.t.Helper()
	require.NoError(e.t, e.fromGuestErr(sender, iface, req, vals...))
}

func (e *env) fromGuestErr(sender uint32, iface *protocol.Interface, req string, vals ...any) error {
	e.t.Helper()
	op := iface.RequestOpcode(req)
	d, err := iface.Request(op)
	require.NoError(e.t, err)
	m, err := d.Encode(sender, op, vals)
	require.NoError(e.t, err)
	return e.s.dispatch(inbound{fromHost: false, msg: m})
}

// fromHost dispatches a host event into the session.
func (e *env) fromHost(sender uint32, iface *protocol.Interface, event string, vals ...any) {
	e.t.Helper()
	op := iface.EventOpcode(event)
	d, err := iface.Event(op)
	require.NoError(e.t, err)
	m, err := d.Encode(sender, op, vals)
	require.NoError(e.t, err)
	require.NoError(e.t, e.s.dispatch(inbound{fromHost: true, msg: m}))
}

// expectHost reads the next message the relay sent to the compositor,
// checks its name and returns sender id plus decoded values. Objects
// created by the message are registered for later lookups.
func (e *env) expectHost(req string) (uint32, []any) {
	e.t.Helper()
	m, err := e.host.ReadMessage()
	require.NoError(e.t, err)

	iface, ok := e.hostIfaces[m.Sender]
	require.True(e.t, ok, "message from unknown host object %d", m.Sender)
	d, err := iface.Request(m.Opcode)
	require.NoError(e.t, err)
	require.Equal(e.t, req, d.Name, "unexpected request from %s", iface.Name)

	vals, err := d.Decode(m)
	require.NoError(e.t, err)
	for i, v := range vals {
		id, ok := v.(protocol.NewID)
		if !ok {
			continue
		}
		name := id.Interface
		if name == "" {
			name = d.ObjectType(i)
		}
		created, ok := protocol.Lookup(name)
		require.True(e.t, ok, "host object of unknown interface %q", name)
		e.hostIfaces[id.ID] = created
	}
	return m.Sender, vals
}

// expectGuest reads the next event the relay sent to the guest.
func (e *env) expectGuest(iface *protocol.Interface, event string) (uint32, []any) {
	e.t.Helper()
	m, err := e.guest.ReadMessage()
	require.NoError(e.t, err)
	d, err := iface.Event(m.Opcode)
	require.NoError(e.t, err)
	require.Equal(e.t, event, d.Name)
	vals, err := d.Decode(m)
	require.NoError(e.t, err)
	return m.Sender, vals
}

// getRegistry performs wl_display.get_registry for the guest and
// consumes the advertised globals, returning name-by-interface.
func (e *env) getRegistry(regID uint32) map[string]uint32 {
	e.t.Helper()
	e.fromGuest(1, protocol.Display, "get_registry", protocol.NewID{ID: regID})
	names := make(map[string]uint32)
	for range e.s.adverts {
		_, vals := e.expectGuest(protocol.Registry, "global")
		names[vals[1].(string)] = vals[0].(uint32)
	}
	return names
}

// bind binds a guest global and returns the host-side id the relay
// used for it.
func (e *env) bind(regID, name uint32, iface string, version, id uint32) uint32 {
	e.t.Helper()
	e.fromGuest(regID, protocol.Registry, "bind", name,
		protocol.NewID{ID: id, Interface: iface, Version: version})
	_, vals := e.expectHost("bind")
	return vals[1].(protocol.NewID).ID
}
