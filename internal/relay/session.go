package relay

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/bnema/virtway/internal/logger"
	"github.com/bnema/virtway/internal/protocol"
	"github.com/bnema/virtway/internal/virtgpu"
	"github.com/bnema/virtway/internal/wire"
	"github.com/bnema/virtway/internal/xwayland"
)

// Options configures one session.
type Options struct {
	// Tag is prepended to window titles so the host compositor can
	// tell guest windows apart.
	Tag string

	// Clipboard namespaces MIME types. Required.
	Clipboard *Clipboard

	// DirectShm forwards guest shm descriptors to the host untouched
	// instead of mirroring them through the allocator. Only valid
	// when both sides share a kernel.
	DirectShm bool

	// Device allocates host-visible buffers. Unused in DirectShm
	// mode.
	Device virtgpu.Device

	// Hooks is the optional Xwayland integration.
	Hooks *xwayland.Hooks

	Log *log.Logger
}

// hostGlobal is one global advertised by the host registry.
type hostGlobal struct {
	name    uint32
	version uint32
}

type hookKey struct {
	iface  string
	opcode uint16
}

type handler func(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error

// Session relays one guest client to its own host connection. All
// message handling runs on the goroutine inside Run; the two
// transport readers only feed it, so handlers never interleave.
type Session struct {
	opts Options

	// One sub-logger per relay component, so operators can filter
	// the session lifecycle from registry, shm, selection and
	// xdg-shell traffic.
	log         *log.Logger
	registryLog *log.Logger
	shmLog      *log.Logger
	selLog      *log.Logger
	xdgLog      *log.Logger

	guest *wire.Conn
	host  *wire.Conn

	// guestObjects holds server-side proxies: ids chosen by the guest
	// plus ids the relay allocates in the server range.
	guestObjects *objectTable
	// hostObjects holds client-side proxies: ids the relay allocates
	// plus ids the host allocates in the server range.
	hostObjects *objectTable

	guestDisplay *Proxy
	hostDisplay  *Proxy
	hostRegistry *Proxy

	hostGlobals map[string]hostGlobal
	adverts     []advert

	// pendingAck maps a host-side id whose destruction has been
	// requested to the server-side proxy that must not disappear
	// until the host confirms with delete_id.
	pendingAck map[uint32]*Proxy

	requestHooks map[hookKey]handler
	eventHooks   map[hookKey]handler

	lastSerial uint32

	// guestWmBase is the bound xdg_wm_base, used for relay-initiated
	// pings. pongQueue holds one handler per ping in flight, strict
	// FIFO.
	guestWmBase *Proxy
	pongQueue   []func()
	pingSerial  uint32

	closeReason string
}

// NewSession wires a session over an accepted guest connection and a
// dialed host connection. Run performs the host bootstrap.
func NewSession(guest, host *wire.Conn, opts Options) *Session {
	base := opts.Log
	if base == nil {
		base = logger.Logger
	}
	s := &Session{
		opts:         opts,
		log:          base.WithPrefix("session"),
		registryLog:  base.WithPrefix("registry"),
		shmLog:       base.WithPrefix("shm"),
		selLog:       base.WithPrefix("selection"),
		xdgLog:       base.WithPrefix("xdg"),
		guest:        guest,
		host:         host,
		guestObjects: newObjectTable(serverIDBase),
		hostObjects:  newObjectTable(2),
		hostGlobals:  make(map[string]hostGlobal),
		pendingAck:   make(map[uint32]*Proxy),
		requestHooks: make(map[hookKey]handler),
		eventHooks:   make(map[hookKey]handler),
	}

	s.guestDisplay = &Proxy{id: 1, iface: protocol.Display, version: 1, role: RoleServer, live: true}
	s.hostDisplay = &Proxy{id: 1, iface: protocol.Display, version: 1, role: RoleClient, live: true}
	s.guestObjects.add(s.guestDisplay)
	s.hostObjects.add(s.hostDisplay)

	s.installRegistryHooks()
	s.installShmHooks()
	s.installSurfaceHooks()
	s.installSelectionHooks()
	s.installInputHooks()
	s.installOutputHooks()
	s.installShellHooks()
	s.installCallbackHooks()

	if opts.Hooks.Active() && opts.Hooks.SetPing != nil {
		opts.Hooks.SetPing(s.pingGuest)
	}

	return s
}

// onRequest registers an interception for a guest request.
func (s *Session) onRequest(iface *protocol.Interface, name string, h handler) {
	s.requestHooks[hookKey{iface.Name, iface.RequestOpcode(name)}] = h
}

// onEvent registers an interception for a host event.
func (s *Session) onEvent(iface *protocol.Interface, name string, h handler) {
	s.eventHooks[hookKey{iface.Name, iface.EventOpcode(name)}] = h
}

type inbound struct {
	fromHost bool
	msg      *wire.Message
	err      error
}

// Run bootstraps the host connection, then relays until either side
// closes. The returned error reports which side failed; a clean EOF
// on either transport returns nil.
func (s *Session) Run(ctx context.Context) error {
	defer s.guest.Close()
	defer s.host.Close()

	if err := s.connectHost(); err != nil {
		return &HostError{Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan inbound)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pump(ctx, s.host, true, ch) })
	g.Go(func() error { return s.pump(ctx, s.guest, false, ch) })

	err := s.relayLoop(ctx, ch)
	cancel()
	// Closing the transports unblocks the pumps.
	s.guest.Close()
	s.host.Close()
	g.Wait()

	if s.closeReason != "" {
		s.log.Info("session closed", "reason", s.closeReason)
	}
	return err
}

func (s *Session) pump(ctx context.Context, c *wire.Conn, fromHost bool, ch chan<- inbound) error {
	for {
		m, err := c.ReadMessage()
		select {
		case ch <- inbound{fromHost: fromHost, msg: m, err: err}:
		case <-ctx.Done():
			if m != nil {
				m.CloseFiles()
			}
			return ctx.Err()
		}
		if err != nil {
			return err
		}
	}
}

func (s *Session) relayLoop(ctx context.Context, ch <-chan inbound) error {
	for {
		select {
		case <-ctx.Done():
			s.closeReason = "context cancelled"
			return nil
		case in := <-ch:
			if in.err != nil {
				side := "client"
				if in.fromHost {
					side = "host"
				}
				if errors.Is(in.err, io.EOF) || errors.Is(in.err, io.ErrUnexpectedEOF) {
					s.closeReason = side + " disconnected"
					return nil
				}
				s.closeReason = fmt.Sprintf("%s transport error: %v", side, in.err)
				if in.fromHost {
					return &HostError{Err: in.err}
				}
				return in.err
			}
			if err := s.dispatch(in); err != nil {
				side := "client"
				if in.fromHost {
					side = "host"
				}
				s.closeReason = fmt.Sprintf("%s failed: %v", side, err)
				s.log.Error("fatal relay error", "side", side, "err", err)
				return err
			}
		}
	}
}

func (s *Session) dispatch(in inbound) error {
	defer in.msg.CloseFiles()
	if in.fromHost {
		return s.dispatchHostEvent(in.msg)
	}
	return s.dispatchGuestRequest(in.msg)
}

func (s *Session) dispatchGuestRequest(m *wire.Message) error {
	if m.Sender == 1 {
		return s.handleDisplayRequest(m)
	}

	p := s.guestObjects.get(m.Sender)
	if p == nil {
		return protocolErrf(m.Sender, "request for unknown object")
	}
	if !p.live {
		// Requests racing a destructor; the object is already torn
		// down on our side.
		s.log.Debug("dropping request on dead object", "object", p.String(), "opcode", m.Opcode)
		return nil
	}
	d, err := p.iface.Request(m.Opcode)
	if err != nil {
		return protocolErrf(m.Sender, "%v", err)
	}

	if h, ok := s.requestHooks[hookKey{p.iface.Name, m.Opcode}]; ok {
		return h(s, p, d, m)
	}
	return s.forwardRequest(p, d, m)
}

func (s *Session) dispatchHostEvent(m *wire.Message) error {
	if m.Sender == 1 {
		return s.handleDisplayEvent(m)
	}

	p := s.hostObjects.get(m.Sender)
	if p == nil {
		// Events can legitimately race our destroy of their sender.
		s.log.Debug("dropping event for unknown host object", "id", m.Sender, "opcode", m.Opcode)
		return nil
	}
	d, err := p.iface.Event(m.Opcode)
	if err != nil {
		return &HostError{Err: err}
	}

	if h, ok := s.eventHooks[hookKey{p.iface.Name, m.Opcode}]; ok {
		return h(s, p, d, m)
	}
	return s.forwardEvent(p, d, m)
}

// handleDisplayRequest serves the synthetic guest wl_display.
func (s *Session) handleDisplayRequest(m *wire.Message) error {
	d, err := protocol.Display.Request(m.Opcode)
	if err != nil {
		return protocolErrf(1, "%v", err)
	}
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(1, "malformed %s: %v", d.Name, err)
	}
	switch d.Name {
	case "sync":
		return s.handleSync(vals[0].(protocol.NewID))
	case "get_registry":
		return s.handleGetRegistry(vals[0].(protocol.NewID))
	}
	return protocolErrf(1, "unhandled display request %s", d.Name)
}

// handleSync pairs a guest callback with a host callback; the
// callback hook forwards done and retires both.
func (s *Session) handleSync(id protocol.NewID) error {
	b, err := s.newPair(protocol.Callback, 1, id.ID, bindGeneric, protocol.Callback)
	if err != nil {
		return err
	}
	return s.emitHost(s.hostDisplay, "sync", protocol.NewID{ID: b.client.id})
}

// handleDisplayEvent handles the host wl_display: delete_id drives
// deferred acknowledgement, error ends the session.
func (s *Session) handleDisplayEvent(m *wire.Message) error {
	d, err := protocol.Display.Event(m.Opcode)
	if err != nil {
		return &HostError{Err: err}
	}
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	switch d.Name {
	case "delete_id":
		s.handleDeleteID(vals[0].(uint32))
		return nil
	case "error":
		return &HostError{Err: fmt.Errorf("display error on object %d: code %d: %s",
			uint32(vals[0].(protocol.ObjectID)), vals[1].(uint32), vals[2].(string))}
	}
	return nil
}

// handleDeleteID completes the destruction of a host-side proxy and,
// if a server-side twin was waiting on it, releases that twin toward
// the guest.
func (s *Session) handleDeleteID(hostID uint32) {
	s.hostObjects.remove(hostID)
	if sp, ok := s.pendingAck[hostID]; ok {
		delete(s.pendingAck, hostID)
		s.ackDelete(sp)
	}
}

// ackDelete removes a server-side proxy and, for guest-allocated ids,
// tells the guest the id is free again. Until this point the guest
// kept receiving any late events for the object.
func (s *Session) ackDelete(p *Proxy) {
	id := p.id
	s.guestObjects.remove(id)
	if id < serverIDBase {
		if err := s.emitGuest(s.guestDisplay, "delete_id", id); err != nil {
			s.log.Debug("delete_id not delivered", "id", id, "err", err)
		}
	}
}

// destroyPair runs the bookkeeping after a destructor request has
// been forwarded: the host twin is dead, and the server-side proxy
// waits for the host's confirmation. Host-allocated twins never get
// a delete_id, so they are released immediately.
func (s *Session) destroyPair(server, host *Proxy) {
	host.live = false
	server.live = false
	if host.id >= serverIDBase {
		s.hostObjects.remove(host.id)
		s.ackDelete(server)
		return
	}
	s.pendingAck[host.id] = server
}

// destroyHostOnly tears down a host-side proxy that has no guest
// twin, such as a lazily created shm pool.
func (s *Session) destroyHostOnly(p *Proxy) error {
	if !p.live {
		return nil
	}
	p.live = false
	if err := s.emitHost(p, "destroy"); err != nil {
		return err
	}
	// delete_id will drop it from the table.
	return nil
}

// newPair creates the twin proxies for a guest-created object.
// guestID was chosen by the guest and must lie in the client range.
func (s *Session) newPair(iface *protocol.Interface, version, guestID uint32, kind bindingKind, hostIface *protocol.Interface) (*Binding, error) {
	if guestID == 0 || guestID >= serverIDBase {
		return nil, protocolErrf(guestID, "client-created id out of range")
	}
	if existing := s.guestObjects.get(guestID); existing != nil {
		return nil, protocolErrf(guestID, "id already in use by %s", existing)
	}

	server := &Proxy{id: guestID, iface: iface, version: version, role: RoleServer, live: true}
	client := &Proxy{id: s.hostObjects.allocate(), iface: hostIface, version: version, role: RoleClient, live: true}
	b := &Binding{kind: kind, server: server, client: client}
	server.binding = b
	client.binding = b
	s.guestObjects.add(server)
	s.hostObjects.add(client)
	return b, nil
}

// newPairFromHost creates the twin proxies for a host-created object
// (an event carried its new id). The guest-facing id comes from the
// relay's server range.
func (s *Session) newPairFromHost(iface *protocol.Interface, version, hostID uint32, kind bindingKind, hostIface *protocol.Interface) (*Binding, error) {
	if hostID < serverIDBase {
		return nil, &HostError{Err: fmt.Errorf("host-created id %d out of server range", hostID)}
	}
	if existing := s.hostObjects.get(hostID); existing != nil {
		return nil, &HostError{Err: fmt.Errorf("host id %d already in use by %s", hostID, existing)}
	}

	server := &Proxy{id: s.guestObjects.allocate(), iface: iface, version: version, role: RoleServer, live: true}
	client := &Proxy{id: hostID, iface: hostIface, version: version, role: RoleClient, live: true}
	b := &Binding{kind: kind, server: server, client: client}
	server.binding = b
	client.binding = b
	s.guestObjects.add(server)
	s.hostObjects.add(client)
	s.initBinding(b)
	return b, nil
}

// addServerOnly registers a guest-facing proxy with no host twin,
// for objects the relay virtualizes entirely (shm pools and their
// unattached buffers).
func (s *Session) addServerOnly(iface *protocol.Interface, version, guestID uint32, data any) (*Proxy, error) {
	if guestID == 0 || guestID >= serverIDBase {
		return nil, protocolErrf(guestID, "client-created id out of range")
	}
	if existing := s.guestObjects.get(guestID); existing != nil {
		return nil, protocolErrf(guestID, "id already in use by %s", existing)
	}
	p := &Proxy{id: guestID, iface: iface, version: version, role: RoleServer, live: true, data: data}
	s.guestObjects.add(p)
	return p, nil
}

// pairExisting binds an already-registered server-side proxy to a
// freshly allocated host twin. Used when the host side materializes
// lazily, after the guest object already exists.
func (s *Session) pairExisting(server *Proxy, hostIface *protocol.Interface) *Proxy {
	client := &Proxy{id: s.hostObjects.allocate(), iface: hostIface, version: server.version, role: RoleClient, live: true}
	b := &Binding{kind: bindGeneric, server: server, client: client}
	server.binding = b
	client.binding = b
	s.hostObjects.add(client)
	return client
}

// initBinding attaches per-interface state to fresh pairs.
func (s *Session) initBinding(b *Binding) {
	switch b.server.iface {
	case protocol.Surface:
		s.initSurface(b)
	}
}

// emitGuest sends a hand-built event to the guest.
func (s *Session) emitGuest(p *Proxy, event string, vals ...any) error {
	op := p.iface.EventOpcode(event)
	d, err := p.iface.Event(op)
	if err != nil {
		return err
	}
	m, err := d.Encode(p.id, op, vals)
	if err != nil {
		return err
	}
	return s.writeGuest(m)
}

// emitHost sends a hand-built request to the host.
func (s *Session) emitHost(p *Proxy, request string, vals ...any) error {
	op := p.iface.RequestOpcode(request)
	d, err := p.iface.Request(op)
	if err != nil {
		return err
	}
	m, err := d.Encode(p.id, op, vals)
	if err != nil {
		return err
	}
	return s.writeHost(m)
}

// writeGuest sends m to the guest and closes our copies of any
// descriptors it carried; ownership went over the wire.
func (s *Session) writeGuest(m *wire.Message) error {
	err := m.CloseFilesAfter(s.guest.WriteMessage)
	if err != nil {
		return fmt.Errorf("write to client: %w", err)
	}
	return nil
}

func (s *Session) writeHost(m *wire.Message) error {
	err := m.CloseFilesAfter(s.host.WriteMessage)
	if err != nil {
		return &HostError{Err: err}
	}
	return nil
}

// connectHost performs the initial host roundtrip: bind the registry,
// then sync until the global list is complete.
func (s *Session) connectHost() error {
	reg := &Proxy{id: s.hostObjects.allocate(), iface: protocol.Registry, version: 1, role: RoleClient, live: true}
	s.hostObjects.add(reg)
	s.hostRegistry = reg
	if err := s.emitHost(s.hostDisplay, "get_registry", protocol.NewID{ID: reg.id}); err != nil {
		return err
	}

	cb := &Proxy{id: s.hostObjects.allocate(), iface: protocol.Callback, version: 1, role: RoleClient, live: true}
	s.hostObjects.add(cb)
	if err := s.emitHost(s.hostDisplay, "sync", protocol.NewID{ID: cb.id}); err != nil {
		return err
	}

	for {
		m, err := s.host.ReadMessage()
		if err != nil {
			return fmt.Errorf("host bootstrap read: %w", err)
		}
		done, err := s.bootstrapEvent(cb, m)
		m.CloseFiles()
		if err != nil {
			return err
		}
		if done {
			cb.live = false
			return nil
		}
	}
}

func (s *Session) bootstrapEvent(cb *Proxy, m *wire.Message) (bool, error) {
	switch m.Sender {
	case 1:
		d, err := protocol.Display.Event(m.Opcode)
		if err != nil {
			return false, err
		}
		vals, err := d.Decode(m)
		if err != nil {
			return false, err
		}
		if d.Name == "error" {
			return false, fmt.Errorf("host error during bootstrap: %s", vals[2].(string))
		}
		if d.Name == "delete_id" {
			s.handleDeleteID(vals[0].(uint32))
		}
		return false, nil
	case s.hostRegistry.id:
		d, err := protocol.Registry.Event(m.Opcode)
		if err != nil {
			return false, err
		}
		vals, err := d.Decode(m)
		if err != nil {
			return false, err
		}
		if d.Name == "global" {
			iface := vals[1].(string)
			s.hostGlobals[iface] = hostGlobal{name: vals[0].(uint32), version: vals[2].(uint32)}
			s.registryLog.Debug("host global", "interface", iface, "version", vals[2].(uint32))
		}
		return false, nil
	case cb.id:
		return true, nil
	}
	s.log.Debug("unexpected bootstrap event", "sender", m.Sender, "opcode", m.Opcode)
	return false, nil
}

// pingGuest queues a relay-initiated ping through the xdg_wm_base
// pong FIFO on behalf of the Xwayland hooks. The returned channel
// closes when the guest answers.
func (s *Session) pingGuest() <-chan struct{} {
	ch := make(chan struct{})
	if s.guestWmBase == nil || !s.guestWmBase.live {
		close(ch)
		return ch
	}
	s.pingSerial++
	s.pongQueue = append(s.pongQueue, func() { close(ch) })
	if err := s.emitGuest(s.guestWmBase, "ping", s.pingSerial); err != nil {
		s.xdgLog.Warn("ping not delivered", "err", err)
	}
	return ch
}
