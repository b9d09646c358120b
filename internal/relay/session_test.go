package relay

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/bnema/virtway/internal/protocol"
	"github.com/bnema/virtway/internal/wire"
	"github.com/bnema/virtway/internal/xwayland"
)

func TestRegistryAdvertisesHostIntersection(t *testing.T) {
	e := newEnv(t, Options{})
	names := e.getRegistry(2)

	for _, iface := range []string{
		"wl_compositor", "wl_shm", "wl_data_device_manager",
		"zwp_primary_selection_device_manager_v1",
		"gtk_primary_selection_device_manager",
		"wl_seat", "wl_output", "zxdg_output_manager_v1", "xdg_wm_base",
	} {
		assert.Contains(t, names, iface)
	}

	// Both primary-selection managers precede the seat; some clients
	// only honor managers they saw first.
	assert.Less(t, names["zwp_primary_selection_device_manager_v1"], names["wl_seat"])
	assert.Less(t, names["gtk_primary_selection_device_manager"], names["wl_seat"])

	// Versions clamp to the lower of ours and the host's.
	var seatVersion uint32
	for _, adv := range e.s.adverts {
		if adv.desc.iface == protocol.Seat {
			seatVersion = adv.version
		}
	}
	assert.Equal(t, protocol.Seat.Version, seatVersion)
}

func TestBindValidation(t *testing.T) {
	e := newEnv(t, Options{})
	names := e.getRegistry(2)

	err := e.fromGuestErr(2, protocol.Registry, "bind", uint32(1000),
		protocol.NewID{ID: 3, Interface: "wl_compositor", Version: 1})
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)

	err = e.fromGuestErr(2, protocol.Registry, "bind", names["wl_compositor"],
		protocol.NewID{ID: 3, Interface: "wl_shm", Version: 1})
	require.ErrorAs(t, err, &pe)

	err = e.fromGuestErr(2, protocol.Registry, "bind", names["wl_shm"],
		protocol.NewID{ID: 3, Interface: "wl_shm", Version: 99})
	require.ErrorAs(t, err, &pe)
}

func TestDeferredDestroyAck(t *testing.T) {
	e := newEnv(t, Options{})
	names := e.getRegistry(2)
	e.bind(2, names["wl_compositor"], "wl_compositor", 4, 3)

	e.fromGuest(3, protocol.Compositor, "create_region", protocol.NewID{ID: 4})
	_, vals := e.expectHost("create_region")
	hostRegion := vals[0].(protocol.NewID).ID

	e.fromGuest(4, protocol.Region, "destroy")
	e.expectHost("destroy")

	// The guest-side proxy stays until the host confirms.
	require.NotNil(t, e.s.guestObjects.get(4))
	require.Contains(t, e.s.pendingAck, hostRegion)

	e.fromHost(1, protocol.Display, "delete_id", hostRegion)
	_, vals = e.expectGuest(protocol.Display, "delete_id")
	assert.Equal(t, uint32(4), vals[0])
	assert.Nil(t, e.s.guestObjects.get(4))
	assert.Nil(t, e.s.hostObjects.get(hostRegion))
}

func TestSyncCallback(t *testing.T) {
	e := newEnv(t, Options{})
	e.getRegistry(2)

	e.fromGuest(1, protocol.Display, "sync", protocol.NewID{ID: 10})
	_, vals := e.expectHost("sync")
	hostCb := vals[0].(protocol.NewID).ID

	e.fromHost(hostCb, protocol.Callback, "done", uint32(42))
	sender, vals := e.expectGuest(protocol.Callback, "done")
	assert.Equal(t, uint32(10), sender)
	assert.Equal(t, uint32(42), vals[0])

	_, vals = e.expectGuest(protocol.Display, "delete_id")
	assert.Equal(t, uint32(10), vals[0])
}

func newShmPoolFile(t *testing.T, size int64) *os.File {
	t.Helper()
	fd, err := unix.MemfdCreate("guest-pool", unix.MFD_CLOEXEC)
	require.NoError(t, err)
	require.NoError(t, unix.Ftruncate(fd, size))
	return os.NewFile(uintptr(fd), "guest-pool")
}

func TestShmPoolLazyMapping(t *testing.T) {
	e := newEnv(t, Options{})
	names := e.getRegistry(2)
	e.bind(2, names["wl_shm"], "wl_shm", 1, 3)

	file := newShmPoolFile(t, 4096)
	e.fromGuest(3, protocol.Shm, "create_pool", protocol.NewID{ID: 4}, file, int32(4096))
	e.fromGuest(4, protocol.ShmPool, "create_buffer", protocol.NewID{ID: 5},
		int32(0), int32(16), int32(16), int32(64), uint32(0))

	// Neither creation touched the host or the allocator.
	assert.Equal(t, 0, e.device.allocs)

	e.fromGuest(5, protocol.Buffer, "destroy")
	_, vals := e.expectGuest(protocol.Display, "delete_id")
	assert.Equal(t, uint32(5), vals[0])

	e.fromGuest(4, protocol.ShmPool, "destroy")
	_, vals = e.expectGuest(protocol.Display, "delete_id")
	assert.Equal(t, uint32(4), vals[0])

	assert.Equal(t, 0, e.device.allocs)
	// Refcount hit zero: the guest descriptor was closed.
	assert.Error(t, file.Close())
}

func TestShmCommitCopiesBuffer(t *testing.T) {
	e := newEnv(t, Options{})
	names := e.getRegistry(2)
	e.bind(2, names["wl_shm"], "wl_shm", 1, 3)
	e.bind(2, names["wl_compositor"], "wl_compositor", 4, 6)

	file := newShmPoolFile(t, 1024)
	_, err := file.WriteAt(bytes.Repeat([]byte{0xAA}, 1024), 0)
	require.NoError(t, err)

	e.fromGuest(3, protocol.Shm, "create_pool", protocol.NewID{ID: 4}, file, int32(1024))
	e.fromGuest(4, protocol.ShmPool, "create_buffer", protocol.NewID{ID: 5},
		int32(0), int32(16), int32(16), int32(64), uint32(0))
	e.fromGuest(6, protocol.Compositor, "create_surface", protocol.NewID{ID: 7})
	e.expectHost("create_surface")

	e.fromGuest(7, protocol.Surface, "attach", protocol.ObjectID(5), int32(0), int32(0))

	// The attach realized the mirror: an allocation, a host pool over
	// its descriptor, a host buffer, then the attach itself.
	assert.Equal(t, 1, e.device.allocs)
	_, vals := e.expectHost("create_pool")
	hostPoolFile := vals[1].(*os.File)
	defer hostPoolFile.Close()
	assert.Equal(t, int32(1024), vals[2])

	_, vals = e.expectHost("create_buffer")
	assert.Equal(t, int32(16), vals[2])
	assert.Equal(t, int32(64), vals[4])
	_, vals = e.expectHost("attach")
	assert.NotEqual(t, protocol.ObjectID(0), vals[0])

	st, ok := e.s.guestObjects.get(7).data.(*surfaceState)
	require.True(t, ok)
	assert.Len(t, st.clientMem, 1024)
	assert.Len(t, st.hostMem, 1024)

	e.fromGuest(7, protocol.Surface, "commit")
	e.expectHost("commit")

	// The host's view of the pool now carries the committed bytes.
	mem, err := unix.Mmap(int(hostPoolFile.Fd()), 0, 1024, unix.PROT_READ, unix.MAP_SHARED)
	require.NoError(t, err)
	defer unix.Munmap(mem)
	assert.Equal(t, bytes.Repeat([]byte{0xAA}, 1024), mem)
}

func TestShmPoolResizeDropsMapping(t *testing.T) {
	e := newEnv(t, Options{})
	names := e.getRegistry(2)
	e.bind(2, names["wl_shm"], "wl_shm", 1, 3)
	e.bind(2, names["wl_compositor"], "wl_compositor", 4, 6)

	file := newShmPoolFile(t, 1024)
	e.fromGuest(3, protocol.Shm, "create_pool", protocol.NewID{ID: 4}, file, int32(1024))
	e.fromGuest(4, protocol.ShmPool, "create_buffer", protocol.NewID{ID: 5},
		int32(0), int32(16), int32(16), int32(64), uint32(0))
	e.fromGuest(6, protocol.Compositor, "create_surface", protocol.NewID{ID: 7})
	e.expectHost("create_surface")
	e.fromGuest(7, protocol.Surface, "attach", protocol.ObjectID(5), int32(0), int32(0))
	e.expectHost("create_pool")
	e.expectHost("create_buffer")
	e.expectHost("attach")

	pool := e.s.guestObjects.get(4).data.(*shmPool)
	require.NotNil(t, pool.mapping)

	// Same-size resize is a no-op.
	e.fromGuest(4, protocol.ShmPool, "resize", int32(1024))
	assert.NotNil(t, pool.mapping)

	// Growing drops the mirror; the host pool is destroyed.
	require.NoError(t, unix.Ftruncate(int(file.Fd()), 2048))
	e.fromGuest(4, protocol.ShmPool, "resize", int32(2048))
	assert.Nil(t, pool.mapping)
	e.expectHost("destroy")
	assert.Equal(t, int32(2048), pool.size)
}

func TestSelectionNamespacing(t *testing.T) {
	e := newEnv(t, Options{})
	names := e.getRegistry(2)
	e.bind(2, names["wl_seat"], "wl_seat", 5, 3)
	e.bind(2, names["wl_data_device_manager"], "wl_data_device_manager", 3, 4)

	e.fromGuest(4, protocol.DataDeviceManager, "get_data_device", protocol.NewID{ID: 5}, protocol.ObjectID(3))
	_, vals := e.expectHost("get_data_device")
	hostDev := vals[0].(protocol.NewID).ID

	e.fromGuest(4, protocol.DataDeviceManager, "create_data_source", protocol.NewID{ID: 6})
	_, vals = e.expectHost("create_data_source")
	hostSrc := vals[0].(protocol.NewID).ID

	// Guest MIME types reach the host with the namespace prefix.
	e.fromGuest(6, protocol.DataSource, "offer", "text/plain")
	_, vals = e.expectHost("offer")
	assert.Equal(t, "#PID1#text/plain", vals[0])

	e.fromGuest(5, protocol.DataDevice, "set_selection", protocol.ObjectID(6), uint32(1))
	_, vals = e.expectHost("set_selection")
	assert.Equal(t, protocol.ObjectID(hostSrc), vals[0])

	// Host transfer requests come back stripped.
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	e.fromHost(hostSrc, protocol.DataSource, "send", "#PID1#text/plain", w)
	sender, vals := e.expectGuest(protocol.DataSource, "send")
	assert.Equal(t, uint32(6), sender)
	assert.Equal(t, "text/plain", vals[0])
	vals[1].(*os.File).Close()

	// A transfer for another namespace is dropped outright.
	r2, w2, err := os.Pipe()
	require.NoError(t, err)
	defer r2.Close()
	e.fromHost(hostSrc, protocol.DataSource, "send", "#other#text/plain", w2)
	e.fromHost(hostSrc, protocol.DataSource, "cancelled")
	_, _ = e.expectGuest(protocol.DataSource, "cancelled")
	_ = hostDev
}

func TestOfferFilteringAndLifetime(t *testing.T) {
	e := newEnv(t, Options{})
	names := e.getRegistry(2)
	e.bind(2, names["wl_seat"], "wl_seat", 5, 3)
	e.bind(2, names["wl_data_device_manager"], "wl_data_device_manager", 3, 4)
	e.fromGuest(4, protocol.DataDeviceManager, "get_data_device", protocol.NewID{ID: 5}, protocol.ObjectID(3))
	_, vals := e.expectHost("get_data_device")
	hostDev := vals[0].(protocol.NewID).ID

	const hostOffer = uint32(0xFF000001)
	e.fromHost(hostDev, protocol.DataDevice, "data_offer", protocol.NewID{ID: hostOffer})
	// The fake compositor created this offer; record it so expectHost
	// can decode the relay's requests on it.
	e.hostIfaces[hostOffer] = protocol.DataOffer
	_, vals = e.expectGuest(protocol.DataDevice, "data_offer")
	guestOffer := vals[0].(protocol.NewID).ID
	assert.GreaterOrEqual(t, guestOffer, uint32(0xFF000000))

	// Foreign-namespace MIME types never reach the guest.
	e.fromHost(hostOffer, protocol.DataOffer, "offer", "#other#text/plain")
	e.fromHost(hostOffer, protocol.DataOffer, "offer", "#PID1#text/plain")
	sender, vals := e.expectGuest(protocol.DataOffer, "offer")
	assert.Equal(t, guestOffer, sender)
	assert.Equal(t, "text/plain", vals[0])

	e.fromHost(hostDev, protocol.DataDevice, "selection", protocol.ObjectID(hostOffer))
	_, vals = e.expectGuest(protocol.DataDevice, "selection")
	assert.Equal(t, protocol.ObjectID(guestOffer), vals[0])

	// The guest fetches through the relay with the prefix restored.
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	e.fromGuest(guestOffer, protocol.DataOffer, "receive", "text/plain", w)
	_, vals = e.expectHost("receive")
	assert.Equal(t, "#PID1#text/plain", vals[0])
	vals[1].(*os.File).Close()

	// Destroying the superseded offer deletes the host proxy
	// immediately: server-allocated ids get no delete_id.
	e.fromGuest(guestOffer, protocol.DataOffer, "destroy")
	e.expectHost("destroy")
	assert.Nil(t, e.s.hostObjects.get(hostOffer))
	assert.Nil(t, e.s.guestObjects.get(guestOffer))
}

func TestGtkPrimarySelectionCompat(t *testing.T) {
	e := newEnv(t, Options{})
	names := e.getRegistry(2)
	e.bind(2, names["wl_seat"], "wl_seat", 5, 9)

	// Binding the GTK manager binds the Zwp manager on the host.
	e.fromGuest(2, protocol.Registry, "bind", names["gtk_primary_selection_device_manager"],
		protocol.NewID{ID: 3, Interface: "gtk_primary_selection_device_manager", Version: 1})
	_, vals := e.expectHost("bind")
	nid := vals[1].(protocol.NewID)
	assert.Equal(t, "zwp_primary_selection_device_manager_v1", nid.Interface)

	e.fromGuest(3, protocol.GtkPrimarySelectionDeviceManager, "get_device",
		protocol.NewID{ID: 4}, protocol.ObjectID(9))
	_, vals = e.expectHost("get_device")
	hostDev := vals[0].(protocol.NewID).ID

	e.fromGuest(3, protocol.GtkPrimarySelectionDeviceManager, "create_source", protocol.NewID{ID: 5})
	e.expectHost("create_source")

	e.fromGuest(5, protocol.GtkPrimarySelectionSource, "offer", "text/plain")
	_, vals = e.expectHost("offer")
	assert.Equal(t, "#PID1#text/plain", vals[0])

	e.fromGuest(4, protocol.GtkPrimarySelectionDevice, "set_selection", protocol.ObjectID(5), uint32(7))
	e.expectHost("set_selection")

	// The host answers through the Zwp flow; the guest twin speaks
	// the GTK interface.
	const hostOffer = uint32(0xFF000002)
	e.fromHost(hostDev, protocol.PrimarySelectionDevice, "data_offer", protocol.NewID{ID: hostOffer})
	_, vals = e.expectGuest(protocol.GtkPrimarySelectionDevice, "data_offer")
	guestOffer := vals[0].(protocol.NewID).ID

	e.fromHost(hostOffer, protocol.PrimarySelectionOffer, "offer", "#PID1#text/plain")
	sender, vals := e.expectGuest(protocol.GtkPrimarySelectionOffer, "offer")
	assert.Equal(t, guestOffer, sender)
	assert.Equal(t, "text/plain", vals[0])

	e.fromHost(hostDev, protocol.PrimarySelectionDevice, "selection", protocol.ObjectID(hostOffer))
	_, vals = e.expectGuest(protocol.GtkPrimarySelectionDevice, "selection")
	assert.Equal(t, protocol.ObjectID(guestOffer), vals[0])

	// The generic translation functions refuse cross-interface pairs.
	mgr := e.s.guestObjects.get(3)
	_, err := toHost(mgr)
	assert.ErrorIs(t, err, errCrossInterface)
	hostMgr := e.s.hostObjects.get(nid.ID)
	_, err = toClient(hostMgr)
	assert.ErrorIs(t, err, errCrossInterface)
}

func TestSeatCapabilityMaskAndTouchRejection(t *testing.T) {
	e := newEnv(t, Options{})
	names := e.getRegistry(2)
	hostSeat := e.bind(2, names["wl_seat"], "wl_seat", 5, 3)

	e.fromHost(hostSeat, protocol.Seat, "capabilities", uint32(7))
	_, vals := e.expectGuest(protocol.Seat, "capabilities")
	assert.Equal(t, uint32(3), vals[0])

	err := e.fromGuestErr(3, protocol.Seat, "get_touch", protocol.NewID{ID: 4})
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestPointerSerialAndScale(t *testing.T) {
	e := newEnv(t, Options{Hooks: &xwayland.Hooks{Scale: 2}})
	names := e.getRegistry(2)
	e.bind(2, names["wl_compositor"], "wl_compositor", 4, 3)
	e.bind(2, names["wl_seat"], "wl_seat", 5, 6)

	e.fromGuest(6, protocol.Seat, "get_pointer", protocol.NewID{ID: 7})
	_, vals := e.expectHost("get_pointer")
	hostPtr := vals[0].(protocol.NewID).ID

	e.fromGuest(3, protocol.Compositor, "create_surface", protocol.NewID{ID: 8})
	_, vals = e.expectHost("create_surface")
	hostSurf := vals[0].(protocol.NewID).ID
	e.expectHost("set_buffer_scale")

	e.fromHost(hostPtr, protocol.Pointer, "enter", uint32(99), protocol.ObjectID(hostSurf),
		wire.FixedInt(10), wire.FixedInt(20))
	_, vals = e.expectGuest(protocol.Pointer, "enter")
	assert.Equal(t, uint32(99), vals[0])
	assert.Equal(t, protocol.ObjectID(8), vals[1])
	assert.Equal(t, wire.FixedInt(20), vals[2])
	assert.Equal(t, wire.FixedInt(40), vals[3])
	assert.Equal(t, uint32(99), e.s.lastSerial)

	e.fromHost(hostPtr, protocol.Pointer, "motion", uint32(1000), wire.FixedInt(5), wire.FixedInt(5))
	_, vals = e.expectGuest(protocol.Pointer, "motion")
	assert.Equal(t, wire.FixedInt(10), vals[1])
}

func TestOutputScaleRewrites(t *testing.T) {
	e := newEnv(t, Options{Hooks: &xwayland.Hooks{Scale: 2}})
	names := e.getRegistry(2)
	hostOut := e.bind(2, names["wl_output"], "wl_output", 4, 3)
	e.bind(2, names["zxdg_output_manager_v1"], "zxdg_output_manager_v1", 3, 4)

	e.fromHost(hostOut, protocol.Output, "scale", int32(2))
	_, vals := e.expectGuest(protocol.Output, "scale")
	assert.Equal(t, int32(1), vals[0])

	e.fromGuest(4, protocol.XdgOutputManager, "get_xdg_output", protocol.NewID{ID: 5}, protocol.ObjectID(3))
	_, vals = e.expectHost("get_xdg_output")
	hostXdg := vals[0].(protocol.NewID).ID

	e.fromHost(hostXdg, protocol.XdgOutput, "logical_size", int32(800), int32(600))
	_, vals = e.expectGuest(protocol.XdgOutput, "logical_size")
	assert.Equal(t, int32(1600), vals[0])
	assert.Equal(t, int32(1200), vals[1])
}

func TestWmBasePingPongFIFO(t *testing.T) {
	e := newEnv(t, Options{})
	names := e.getRegistry(2)
	hostWm := e.bind(2, names["xdg_wm_base"], "xdg_wm_base", 2, 3)

	e.fromHost(hostWm, protocol.XdgWmBase, "ping", uint32(11))
	_, vals := e.expectGuest(protocol.XdgWmBase, "ping")
	assert.Equal(t, uint32(11), vals[0])
	e.fromHost(hostWm, protocol.XdgWmBase, "ping", uint32(12))
	e.expectGuest(protocol.XdgWmBase, "ping")

	e.fromGuest(3, protocol.XdgWmBase, "pong", uint32(11))
	_, vals = e.expectHost("pong")
	assert.Equal(t, uint32(11), vals[0])
	e.fromGuest(3, protocol.XdgWmBase, "pong", uint32(12))
	_, vals = e.expectHost("pong")
	assert.Equal(t, uint32(12), vals[0])

	// A stray pong is logged and dropped.
	e.fromGuest(3, protocol.XdgWmBase, "pong", uint32(99))
	assert.Empty(t, e.s.pongQueue)
}

func TestToplevelTitleTag(t *testing.T) {
	e := newEnv(t, Options{Tag: "[vm] "})
	names := e.getRegistry(2)
	e.bind(2, names["wl_compositor"], "wl_compositor", 4, 3)
	e.bind(2, names["xdg_wm_base"], "xdg_wm_base", 2, 4)

	e.fromGuest(3, protocol.Compositor, "create_surface", protocol.NewID{ID: 5})
	e.expectHost("create_surface")
	e.fromGuest(4, protocol.XdgWmBase, "get_xdg_surface", protocol.NewID{ID: 6}, protocol.ObjectID(5))
	e.expectHost("get_xdg_surface")
	e.fromGuest(6, protocol.XdgSurface, "get_toplevel", protocol.NewID{ID: 7})
	e.expectHost("get_toplevel")

	e.fromGuest(7, protocol.XdgToplevel, "set_title", "editor")
	_, vals := e.expectHost("set_title")
	assert.Equal(t, "[vm] editor", vals[0])
}

func TestUnconfiguredSurfaceQueuesFIFO(t *testing.T) {
	var configure func(xwayland.Visibility)
	hooks := &xwayland.Hooks{
		Scale: 2,
		OnCreateSurface: func(host, client xwayland.SurfaceHandle, set func(xwayland.Visibility)) {
			configure = set
		},
	}
	e := newEnv(t, Options{Hooks: hooks})
	names := e.getRegistry(2)
	e.bind(2, names["wl_compositor"], "wl_compositor", 4, 3)

	e.fromGuest(3, protocol.Compositor, "create_surface", protocol.NewID{ID: 4})
	e.expectHost("create_surface")
	_, vals := e.expectHost("set_buffer_scale")
	assert.Equal(t, int32(2), vals[0])
	require.NotNil(t, configure)

	// Requests queue while unconfigured.
	e.fromGuest(4, protocol.Surface, "damage", int32(2), int32(2), int32(8), int32(8))
	e.fromGuest(4, protocol.Surface, "commit")
	st := e.s.guestObjects.get(4).data.(*surfaceState)
	assert.Len(t, st.queue, 2)

	// Configuration drains them in order, host-ward scaled.
	configure(xwayland.Show)
	_, vals = e.expectHost("damage")
	assert.Equal(t, []any{int32(1), int32(1), int32(4), int32(4)}, vals)
	e.expectHost("commit")
	assert.Empty(t, st.queue)

	// Afterwards requests run immediately.
	e.fromGuest(4, protocol.Surface, "offset", int32(10), int32(10))
	_, vals = e.expectHost("offset")
	assert.Equal(t, int32(5), vals[0])
}

func TestUnmanagedSurfaceRevertsScale(t *testing.T) {
	var configure func(xwayland.Visibility)
	hooks := &xwayland.Hooks{
		Scale: 2,
		OnCreateSurface: func(host, client xwayland.SurfaceHandle, set func(xwayland.Visibility)) {
			configure = set
		},
	}
	e := newEnv(t, Options{Hooks: hooks})
	names := e.getRegistry(2)
	e.bind(2, names["wl_compositor"], "wl_compositor", 4, 3)
	e.fromGuest(3, protocol.Compositor, "create_surface", protocol.NewID{ID: 4})
	e.expectHost("create_surface")
	e.expectHost("set_buffer_scale")

	configure(xwayland.Unmanaged)
	_, vals := e.expectHost("set_buffer_scale")
	assert.Equal(t, int32(1), vals[0])
}

func TestDestroyedSurfaceDropsPending(t *testing.T) {
	hooks := &xwayland.Hooks{
		OnCreateSurface: func(host, client xwayland.SurfaceHandle, set func(xwayland.Visibility)) {},
	}
	e := newEnv(t, Options{Hooks: hooks})
	names := e.getRegistry(2)
	e.bind(2, names["wl_compositor"], "wl_compositor", 4, 3)
	e.fromGuest(3, protocol.Compositor, "create_surface", protocol.NewID{ID: 4})
	_, vals := e.expectHost("create_surface")
	hostSurf := vals[0].(protocol.NewID).ID

	e.fromGuest(4, protocol.Surface, "commit") // queued, never drained
	e.fromGuest(4, protocol.Surface, "destroy")
	e.expectHost("destroy")

	e.fromHost(1, protocol.Display, "delete_id", hostSurf)
	_, vals = e.expectGuest(protocol.Display, "delete_id")
	assert.Equal(t, uint32(4), vals[0])
}
