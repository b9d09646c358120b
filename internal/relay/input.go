package relay

import (
	"github.com/bnema/virtway/internal/protocol"
	"github.com/bnema/virtway/internal/wire"
	"github.com/bnema/virtway/internal/xwayland"
)

// Seat capability bits relayed to the guest. Touch is not relayed.
const (
	capPointer  uint32 = 1 << 0
	capKeyboard uint32 = 1 << 1
)

func (s *Session) installInputHooks() {
	s.onRequest(protocol.Seat, "get_touch", func(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
		return ErrUnsupported
	})

	s.onEvent(protocol.Seat, "capabilities", handleSeatCapabilities)

	s.onEvent(protocol.Pointer, "enter", handlePointerEnter)
	s.onEvent(protocol.Pointer, "leave", handlePointerLeave)
	s.onEvent(protocol.Pointer, "motion", handlePointerMotion)
	s.onEvent(protocol.Pointer, "button", handlePointerButton)

	s.onEvent(protocol.Keyboard, "enter", handleKeyboardEnter)
	s.onEvent(protocol.Keyboard, "leave", handleKeyboardLeave)
	s.onEvent(protocol.Keyboard, "key", handleKeyboardKey)
	s.onEvent(protocol.Keyboard, "modifiers", handleKeyboardModifiers)
}

// pointToClient converts a host fixed-point coordinate into the
// guest's space by the Xwayland scale.
func (s *Session) pointToClient(v wire.Fixed) wire.Fixed {
	scale := s.opts.Hooks.EffectiveScale()
	if scale == 1 {
		return v
	}
	return v.Mul(scale)
}

// handleSeatCapabilities intersects the host capability mask with
// what the relay actually forwards.
func handleSeatCapabilities(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	client, err := toClient(p)
	if err != nil {
		return &HostError{Err: err}
	}
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	caps := vals[0].(uint32) & (capPointer | capKeyboard)
	return s.emitGuest(client, "capabilities", caps)
}

// guestSurfaceFor resolves a host surface reference from an input
// event. A nil return means the surface raced its destruction and the
// event should be dropped.
func (s *Session) guestSurfaceFor(id protocol.ObjectID) *Proxy {
	hp := s.hostObjects.get(uint32(id))
	if hp == nil {
		return nil
	}
	twin, err := toClient(hp)
	if err != nil {
		return nil
	}
	return twin
}

func handlePointerEnter(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	client, err := toClient(p)
	if err != nil {
		return &HostError{Err: err}
	}
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	serial := vals[0].(uint32)
	s.lastSerial = serial
	surf := s.guestSurfaceFor(vals[1].(protocol.ObjectID))
	if surf == nil {
		s.log.Debug("pointer enter on vanished surface")
		return nil
	}
	x := s.pointToClient(vals[2].(wire.Fixed))
	y := s.pointToClient(vals[3].(wire.Fixed))

	forward := func() {
		if err := s.emitGuest(client, "enter", serial, protocol.ObjectID(surf.id), x, y); err != nil {
			s.log.Warn("pointer enter not delivered", "err", err)
		}
	}
	hooks := s.opts.Hooks
	if hooks.Active() && hooks.OnPointerEntry != nil {
		hooks.OnPointerEntry(xwayland.SurfaceHandle{ID: surf.id, OnHost: false}, forward)
		return nil
	}
	forward()
	return nil
}

func handlePointerLeave(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	client, err := toClient(p)
	if err != nil {
		return &HostError{Err: err}
	}
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	serial := vals[0].(uint32)
	s.lastSerial = serial
	surf := s.guestSurfaceFor(vals[1].(protocol.ObjectID))
	if surf == nil {
		return nil
	}
	return s.emitGuest(client, "leave", serial, protocol.ObjectID(surf.id))
}

func handlePointerMotion(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	client, err := toClient(p)
	if err != nil {
		return &HostError{Err: err}
	}
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	return s.emitGuest(client, "motion", vals[0].(uint32),
		s.pointToClient(vals[1].(wire.Fixed)), s.pointToClient(vals[2].(wire.Fixed)))
}

func handlePointerButton(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	s.lastSerial = vals[0].(uint32)
	client, err := toClient(p)
	if err != nil {
		return &HostError{Err: err}
	}
	return s.emitGuest(client, "button", vals[0].(uint32), vals[1].(uint32), vals[2].(uint32), vals[3].(uint32))
}

func handleKeyboardEnter(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	client, err := toClient(p)
	if err != nil {
		return &HostError{Err: err}
	}
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	serial := vals[0].(uint32)
	s.lastSerial = serial
	surf := s.guestSurfaceFor(vals[1].(protocol.ObjectID))
	if surf == nil {
		s.log.Debug("keyboard enter on vanished surface")
		return nil
	}
	keys := append([]byte(nil), vals[2].([]byte)...)

	forward := func() {
		if err := s.emitGuest(client, "enter", serial, protocol.ObjectID(surf.id), keys); err != nil {
			s.log.Warn("keyboard enter not delivered", "err", err)
		}
	}
	hooks := s.opts.Hooks
	if hooks.Active() && hooks.OnKeyboardEntry != nil {
		hooks.OnKeyboardEntry(xwayland.SurfaceHandle{ID: surf.id, OnHost: false}, forward)
		return nil
	}
	forward()
	return nil
}

func handleKeyboardLeave(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	client, err := toClient(p)
	if err != nil {
		return &HostError{Err: err}
	}
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	serial := vals[0].(uint32)
	s.lastSerial = serial
	surf := s.guestSurfaceFor(vals[1].(protocol.ObjectID))
	if surf == nil {
		return nil
	}
	hooks := s.opts.Hooks
	if hooks.Active() && hooks.OnKeyboardLeave != nil {
		hooks.OnKeyboardLeave(xwayland.SurfaceHandle{ID: surf.id, OnHost: false})
	}
	return s.emitGuest(client, "leave", serial, protocol.ObjectID(surf.id))
}

func handleKeyboardKey(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	s.lastSerial = vals[0].(uint32)
	client, err := toClient(p)
	if err != nil {
		return &HostError{Err: err}
	}
	return s.emitGuest(client, "key", vals[0].(uint32), vals[1].(uint32), vals[2].(uint32), vals[3].(uint32))
}

func handleKeyboardModifiers(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	s.lastSerial = vals[0].(uint32)
	client, err := toClient(p)
	if err != nil {
		return &HostError{Err: err}
	}
	return s.emitGuest(client, "modifiers", vals[0].(uint32), vals[1].(uint32),
		vals[2].(uint32), vals[3].(uint32), vals[4].(uint32))
}
