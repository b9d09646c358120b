package relay

import (
	"os"

	"github.com/bnema/virtway/internal/protocol"
	"github.com/bnema/virtway/internal/wire"
)

// selectionFlow groups the four interfaces of one clipboard protocol
// family on each side of the relay. The wl_data and zwp flows pair
// identical interfaces; the gtk flow pairs the legacy guest
// interfaces with zwp twins on the host.
type selectionFlow struct {
	manager *protocol.Interface
	device  *protocol.Interface
	source  *protocol.Interface
	offer   *protocol.Interface

	hostManager *protocol.Interface
	hostDevice  *protocol.Interface
	hostSource  *protocol.Interface
	hostOffer   *protocol.Interface

	kind bindingKind
}

var (
	dataDeviceFlow = &selectionFlow{
		manager: protocol.DataDeviceManager, device: protocol.DataDevice,
		source: protocol.DataSource, offer: protocol.DataOffer,
		hostManager: protocol.DataDeviceManager, hostDevice: protocol.DataDevice,
		hostSource: protocol.DataSource, hostOffer: protocol.DataOffer,
	}
	zwpPrimaryFlow = &selectionFlow{
		manager: protocol.PrimarySelectionDeviceManager, device: protocol.PrimarySelectionDevice,
		source: protocol.PrimarySelectionSource, offer: protocol.PrimarySelectionOffer,
		hostManager: protocol.PrimarySelectionDeviceManager, hostDevice: protocol.PrimarySelectionDevice,
		hostSource: protocol.PrimarySelectionSource, hostOffer: protocol.PrimarySelectionOffer,
	}
	gtkPrimaryFlow = &selectionFlow{
		manager: protocol.GtkPrimarySelectionDeviceManager, device: protocol.GtkPrimarySelectionDevice,
		source: protocol.GtkPrimarySelectionSource, offer: protocol.GtkPrimarySelectionOffer,
		hostManager: protocol.PrimarySelectionDeviceManager, hostDevice: protocol.PrimarySelectionDevice,
		hostSource: protocol.PrimarySelectionSource, hostOffer: protocol.PrimarySelectionOffer,
		kind: bindGtkZwp,
	}

	selectionFlows = []*selectionFlow{dataDeviceFlow, zwpPrimaryFlow, gtkPrimaryFlow}
)

// flowByDevice resolves the flow owning a guest-side device
// interface.
func flowByDevice(iface *protocol.Interface) *selectionFlow {
	for _, f := range selectionFlows {
		if f.device == iface {
			return f
		}
	}
	return nil
}

func flowByManager(iface *protocol.Interface) *selectionFlow {
	for _, f := range selectionFlows {
		if f.manager == iface {
			return f
		}
	}
	return nil
}

func (s *Session) installSelectionHooks() {
	for _, f := range selectionFlows {
		createReq, deviceReq := "create_source", "get_device"
		if f.manager == protocol.DataDeviceManager {
			createReq, deviceReq = "create_data_source", "get_data_device"
		}
		s.onRequest(f.manager, createReq, handleCreateSource)
		s.onRequest(f.manager, deviceReq, handleGetDevice)
		s.onRequest(f.source, "offer", handleSourceOffer)
		s.onRequest(f.offer, "receive", handleOfferReceive)
		s.onRequest(f.device, "set_selection", handleSetSelection)
	}

	// Every request on a cross-interface object must stay off the
	// generic path; route the gtk (and for symmetry zwp) destructors
	// through the flow-local twin lookup.
	for _, iface := range []*protocol.Interface{
		protocol.PrimarySelectionDeviceManager, protocol.PrimarySelectionDevice,
		protocol.PrimarySelectionSource, protocol.PrimarySelectionOffer,
		protocol.GtkPrimarySelectionDeviceManager, protocol.GtkPrimarySelectionDevice,
		protocol.GtkPrimarySelectionSource, protocol.GtkPrimarySelectionOffer,
	} {
		s.onRequest(iface, "destroy", handleSelectionDestroy)
	}

	s.onRequest(protocol.DataOffer, "accept", handleOfferAccept)

	// Host events. The zwp handlers serve both the zwp flow and the
	// gtk flow; the binding kind picks the guest-side interface.
	for _, dev := range []*protocol.Interface{protocol.DataDevice, protocol.PrimarySelectionDevice} {
		s.onEvent(dev, "data_offer", handleDeviceDataOffer)
		s.onEvent(dev, "selection", handleDeviceSelection)
	}
	s.onEvent(protocol.DataDevice, "enter", handleDragEnter)
	s.onEvent(protocol.DataDevice, "motion", handleDragMotion)

	for _, src := range []*protocol.Interface{protocol.DataSource, protocol.PrimarySelectionSource} {
		s.onEvent(src, "send", handleSourceSend)
		s.onEvent(src, "cancelled", handleSourceCancelled)
	}
	s.onEvent(protocol.DataSource, "target", handleSourceTarget)

	for _, off := range []*protocol.Interface{protocol.DataOffer, protocol.PrimarySelectionOffer} {
		s.onEvent(off, "offer", handleOfferMime)
	}
}

// handleCreateSource creates the source pair for any of the three
// flows and forwards the creation to the host manager.
func handleCreateSource(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	flow := flowByManager(p.iface)
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed create_source: %v", err)
	}
	id := vals[0].(protocol.NewID)

	hostMgr, err := crossTwin(p)
	if err != nil {
		return protocolErrf(p.id, "%v", err)
	}
	b, err := s.newPair(flow.source, p.version, id.ID, flow.kind, flow.hostSource)
	if err != nil {
		return err
	}
	return s.emitHost(hostMgr, d.Name, protocol.NewID{ID: b.client.id})
}

func handleGetDevice(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	flow := flowByManager(p.iface)
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed get_device: %v", err)
	}
	id := vals[0].(protocol.NewID)
	seatID := vals[1].(protocol.ObjectID)

	seat := s.guestObjects.get(uint32(seatID))
	if seat == nil {
		return protocolErrf(p.id, "get_device on unknown seat %d", seatID)
	}
	hostSeat, err := toHost(seat)
	if err != nil {
		return protocolErrf(p.id, "%v", err)
	}
	hostMgr, err := crossTwin(p)
	if err != nil {
		return protocolErrf(p.id, "%v", err)
	}
	b, err := s.newPair(flow.device, p.version, id.ID, flow.kind, flow.hostDevice)
	if err != nil {
		return err
	}
	return s.emitHost(hostMgr, d.Name, protocol.NewID{ID: b.client.id}, protocol.ObjectID(hostSeat.id))
}

// handleSourceOffer namespaces the advertised MIME type.
func handleSourceOffer(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed offer: %v", err)
	}
	twin, err := crossTwin(p)
	if err != nil {
		return protocolErrf(p.id, "%v", err)
	}
	return s.emitHost(twin, "offer", s.opts.Clipboard.ToHost(vals[0].(string)))
}

// handleOfferReceive namespaces the requested MIME type; the pipe
// descriptor moves to the host and our copy closes with the send.
func handleOfferReceive(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed receive: %v", err)
	}
	mime := vals[0].(string)
	fd := vals[1].(*os.File)
	twin, err := crossTwin(p)
	if err != nil {
		fd.Close()
		return protocolErrf(p.id, "%v", err)
	}
	return s.emitHost(twin, "receive", s.opts.Clipboard.ToHost(mime), fd)
}

// handleOfferAccept rewrites the accepted MIME type back into the
// host namespace. A null/empty type means "nothing acceptable" and
// passes through.
func handleOfferAccept(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed accept: %v", err)
	}
	serial := vals[0].(uint32)
	mime := vals[1].(string)
	if mime != "" {
		mime = s.opts.Clipboard.ToHost(mime)
	}
	twin, err := crossTwin(p)
	if err != nil {
		return protocolErrf(p.id, "%v", err)
	}
	return s.emitHost(twin, "accept", serial, mime)
}

func handleSetSelection(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed set_selection: %v", err)
	}
	srcID := vals[0].(protocol.ObjectID)
	serial := vals[1].(uint32)

	hostSrc := protocol.ObjectID(0)
	if srcID != 0 {
		src := s.guestObjects.get(uint32(srcID))
		if src == nil {
			return protocolErrf(p.id, "set_selection on unknown source %d", srcID)
		}
		twin, err := crossTwin(src)
		if err != nil {
			return protocolErrf(p.id, "%v", err)
		}
		hostSrc = protocol.ObjectID(twin.id)
	}
	twin, err := crossTwin(p)
	if err != nil {
		return protocolErrf(p.id, "%v", err)
	}
	return s.emitHost(twin, "set_selection", hostSrc, serial)
}

// handleSelectionDestroy is the flow-local destructor used for every
// primary-selection object, including the GTK/Zwp cross pairs the
// generic path refuses.
func handleSelectionDestroy(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	twin, err := crossTwin(p)
	if err != nil {
		return protocolErrf(p.id, "%v", err)
	}
	if err := s.emitHost(twin, "destroy"); err != nil {
		return err
	}
	s.destroyPair(p, twin)
	return nil
}

// handleDeviceDataOffer introduces a host-created offer to the guest,
// choosing the guest-side interface from the device pair's flow.
func handleDeviceDataOffer(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	guestDev, err := crossTwin(p)
	if err != nil {
		return &HostError{Err: err}
	}
	flow := flowByDevice(guestDev.iface)
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	id := vals[0].(protocol.NewID)

	b, err := s.newPairFromHost(flow.offer, guestDev.version, id.ID, flow.kind, flow.hostOffer)
	if err != nil {
		return err
	}
	return s.emitGuest(guestDev, "data_offer", protocol.NewID{ID: b.server.id})
}

// handleDeviceSelection relays the selection change. The previous
// offer's lifetime ends here on the host side; the relay tears its
// proxies down when the guest destroys its twin.
func handleDeviceSelection(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	guestDev, err := crossTwin(p)
	if err != nil {
		return &HostError{Err: err}
	}
	flow := flowByDevice(guestDev.iface)
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	offerID := vals[0].(protocol.ObjectID)

	guestOffer := protocol.ObjectID(0)
	if offerID != 0 {
		hp := s.hostObjects.get(uint32(offerID))
		if hp == nil {
			s.selLog.Warn("selection references unknown offer", "id", uint32(offerID))
			return nil
		}
		twin, err := crossTwin(hp)
		if err != nil || twin.iface != flow.offer {
			s.selLog.Warn("selection offer of unexpected type", "object", hp.String())
			return nil
		}
		guestOffer = protocol.ObjectID(twin.id)
	}
	return s.emitGuest(guestDev, "selection", guestOffer)
}

// handleDragEnter translates objects, rescales the entry point and
// tracks the serial.
func handleDragEnter(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	guestDev, err := crossTwin(p)
	if err != nil {
		return &HostError{Err: err}
	}
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	serial := vals[0].(uint32)
	s.lastSerial = serial

	surf := s.hostObjects.get(uint32(vals[1].(protocol.ObjectID)))
	if surf == nil {
		s.selLog.Warn("drag enter on unknown surface")
		return nil
	}
	guestSurf, err := toClient(surf)
	if err != nil {
		return &HostError{Err: err}
	}
	x := s.pointToClient(vals[2].(wire.Fixed))
	y := s.pointToClient(vals[3].(wire.Fixed))

	guestOffer := protocol.ObjectID(0)
	if oid := vals[4].(protocol.ObjectID); oid != 0 {
		hp := s.hostObjects.get(uint32(oid))
		if hp != nil {
			if twin, err := crossTwin(hp); err == nil {
				guestOffer = protocol.ObjectID(twin.id)
			}
		}
	}
	return s.emitGuest(guestDev, "enter", serial, protocol.ObjectID(guestSurf.id), x, y, guestOffer)
}

func handleDragMotion(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	guestDev, err := crossTwin(p)
	if err != nil {
		return &HostError{Err: err}
	}
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	return s.emitGuest(guestDev, "motion", vals[0].(uint32),
		s.pointToClient(vals[1].(wire.Fixed)), s.pointToClient(vals[2].(wire.Fixed)))
}

// handleSourceSend denamespaces the MIME type; transfers for foreign
// namespaces are dropped and their pipe closed.
func handleSourceSend(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	mime := vals[0].(string)
	fd := vals[1].(*os.File)

	stripped, ok := s.opts.Clipboard.ToClients(mime)
	if !ok {
		s.selLog.Debug("dropping send for foreign namespace", "mime", mime)
		fd.Close()
		return nil
	}
	twin, err := crossTwin(p)
	if err != nil {
		fd.Close()
		return &HostError{Err: err}
	}
	return s.emitGuest(twin, "send", stripped, fd)
}

func handleSourceCancelled(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	twin, err := crossTwin(p)
	if err != nil {
		return &HostError{Err: err}
	}
	return s.emitGuest(twin, "cancelled")
}

// handleSourceTarget strips the namespace from the target MIME type;
// a null target passes through untouched.
func handleSourceTarget(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	mime := vals[0].(string)
	if mime != "" {
		var ok bool
		mime, ok = s.opts.Clipboard.ToClients(mime)
		if !ok {
			s.selLog.Debug("dropping target for foreign namespace")
			return nil
		}
	}
	twin, err := crossTwin(p)
	if err != nil {
		return &HostError{Err: err}
	}
	return s.emitGuest(twin, "target", mime)
}

// handleOfferMime filters and denamespaces advertised MIME types;
// offers from other namespaces never reach the guest.
func handleOfferMime(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	mime := vals[0].(string)
	stripped, ok := s.opts.Clipboard.ToClients(mime)
	if !ok {
		s.selLog.Debug("filtering offer from foreign namespace", "mime", mime)
		return nil
	}
	twin, err := crossTwin(p)
	if err != nil {
		return &HostError{Err: err}
	}
	return s.emitGuest(twin, "offer", stripped)
}
