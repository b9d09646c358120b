package relay

import (
	"github.com/bnema/virtway/internal/protocol"
	"github.com/bnema/virtway/internal/wire"
)

// globalDesc is one entry of the compile-time list of globals the
// relay is willing to advertise. hostIface names the interface bound
// on the host when it differs from the advertised one.
type globalDesc struct {
	iface     *protocol.Interface
	hostIface *protocol.Interface
	kind      bindingKind
}

// supportedGlobals is ordered: the order becomes the guest-visible
// global names. Primary-selection managers come before wl_seat; some
// clients only pick up a primary-selection manager they saw before
// the seat.
var supportedGlobals = []globalDesc{
	{iface: protocol.Compositor},
	{iface: protocol.Shm},
	{iface: protocol.DataDeviceManager},
	{iface: protocol.PrimarySelectionDeviceManager},
	{iface: protocol.GtkPrimarySelectionDeviceManager,
		hostIface: protocol.PrimarySelectionDeviceManager,
		kind:      bindGtkZwp},
	{iface: protocol.Seat},
	{iface: protocol.Output},
	{iface: protocol.XdgOutputManager},
	{iface: protocol.XdgWmBase},
}

// advert is one global actually offered to the guest: a supported
// entry that the host carries too, clamped to the common version.
type advert struct {
	desc     globalDesc
	version  uint32
	hostName uint32
}

// buildAdverts intersects the supported list with the host globals.
func (s *Session) buildAdverts() {
	if s.adverts != nil {
		return
	}
	for _, g := range supportedGlobals {
		hostName := g.iface.Name
		if g.hostIface != nil {
			hostName = g.hostIface.Name
		}
		hg, ok := s.hostGlobals[hostName]
		if !ok {
			continue
		}
		version := min(g.iface.Version, hg.version)
		s.adverts = append(s.adverts, advert{desc: g, version: version, hostName: hg.name})
	}
}

// handleGetRegistry answers the guest's wl_display.get_registry with
// a synthetic registry backed by the advert table. The registry has
// no host twin; binds go through the host registry captured at
// bootstrap.
func (s *Session) handleGetRegistry(id protocol.NewID) error {
	if id.ID == 0 || id.ID >= serverIDBase {
		return protocolErrf(id.ID, "registry id out of range")
	}
	reg := &Proxy{id: id.ID, iface: protocol.Registry, version: 1, role: RoleServer, live: true}
	s.guestObjects.add(reg)
	s.buildAdverts()

	for name, adv := range s.adverts {
		if err := s.emitGuest(reg, "global", uint32(name+1), adv.desc.iface.Name, adv.version); err != nil {
			return err
		}
	}
	return nil
}

// installRegistryHooks intercepts wl_registry.bind and drops the host
// registry churn that arrives after the bootstrap snapshot.
func (s *Session) installRegistryHooks() {
	s.onRequest(protocol.Registry, "bind", handleBind)

	ignore := func(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
		s.registryLog.Debug("ignoring post-bootstrap registry event", "event", d.Name)
		return nil
	}
	s.onEvent(protocol.Registry, "global", ignore)
	s.onEvent(protocol.Registry, "global_remove", ignore)
}

// handleBind validates a guest bind against the advert table and
// creates the pair through the host registry.
func handleBind(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed bind: %v", err)
	}
	name := vals[0].(uint32)
	id := vals[1].(protocol.NewID)

	if name == 0 || int(name) > len(s.adverts) {
		return protocolErrf(p.id, "bind to unknown global name %d", name)
	}
	adv := s.adverts[name-1]
	if id.Interface != adv.desc.iface.Name {
		return protocolErrf(p.id, "bind interface %q does not match global %q", id.Interface, adv.desc.iface.Name)
	}
	if id.Version == 0 || id.Version > adv.version {
		return protocolErrf(p.id, "bind version %d beyond advertised %d for %s", id.Version, adv.version, id.Interface)
	}

	hostIface := adv.desc.iface
	if adv.desc.hostIface != nil {
		hostIface = adv.desc.hostIface
	}
	b, err := s.newPair(adv.desc.iface, id.Version, id.ID, adv.desc.kind, hostIface)
	if err != nil {
		return err
	}
	s.bindCreated(b)
	return s.emitHost(s.hostRegistry, "bind", adv.hostName,
		protocol.NewID{ID: b.client.id, Interface: hostIface.Name, Version: id.Version})
}

// bindCreated lets components note freshly bound globals they need a
// handle on later.
func (s *Session) bindCreated(b *Binding) {
	switch b.server.iface {
	case protocol.XdgWmBase:
		s.guestWmBase = b.server
	}
}
