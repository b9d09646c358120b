package relay

import (
	"errors"
	"fmt"

	"github.com/bnema/virtway/internal/protocol"
	"github.com/bnema/virtway/internal/wire"
)

// forwardRequest relays a guest request to the host verbatim except
// for object-id translation. Every object argument is mapped through
// its binding; every new_id creates a fresh pair.
func (s *Session) forwardRequest(p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	host, err := toHost(p)
	if err != nil {
		if errors.Is(err, errCrossInterface) {
			return protocolErrf(p.id, "generic forward of cross-interface object %s", p)
		}
		return protocolErrf(p.id, "%v", err)
	}

	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed %s.%s: %v", p.iface.Name, d.Name, err)
	}

	tvals, created, err := s.requestValsToHost(p, d, vals)
	if err != nil {
		return err
	}

	out, err := d.Encode(host.id, m.Opcode, tvals)
	if err != nil {
		return fmt.Errorf("encode %s.%s: %w", host.iface.Name, d.Name, err)
	}
	if err := s.writeHost(out); err != nil {
		return err
	}

	// Per-interface setup may talk to the host about the new object,
	// so it must follow the creating request onto the wire.
	for _, b := range created {
		s.initBinding(b)
	}

	if d.Destructor {
		s.destroyPair(p, host)
	}
	return nil
}

// requestValsToHost translates the object-typed values of a guest
// request into host ids, creating pairs for new ids.
func (s *Session) requestValsToHost(p *Proxy, d *protocol.MessageDesc, vals []any) ([]any, []*Binding, error) {
	out := make([]any, len(vals))
	var created []*Binding
	for i, v := range vals {
		switch v := v.(type) {
		case protocol.ObjectID:
			if v == 0 {
				out[i] = v
				continue
			}
			ref := s.guestObjects.get(uint32(v))
			if ref == nil {
				return nil, nil, protocolErrf(p.id, "%s.%s references unknown object %d", p.iface.Name, d.Name, v)
			}
			twin, err := toHost(ref)
			if err != nil {
				if errors.Is(err, errCrossInterface) {
					return nil, nil, protocolErrf(p.id, "cross-interface argument %s", ref)
				}
				return nil, nil, protocolErrf(p.id, "%v", err)
			}
			out[i] = protocol.ObjectID(twin.id)
		case protocol.NewID:
			ifaceName := d.ObjectType(i)
			iface, ok := protocol.Lookup(ifaceName)
			if !ok {
				return nil, nil, protocolErrf(p.id, "%s.%s creates unknown interface %q", p.iface.Name, d.Name, ifaceName)
			}
			b, err := s.newPair(iface, p.version, v.ID, bindGeneric, iface)
			if err != nil {
				return nil, nil, err
			}
			created = append(created, b)
			out[i] = protocol.NewID{ID: b.client.id}
		default:
			out[i] = v
		}
	}
	return out, created, nil
}

// forwardEvent relays a host event to the guest with the inverse
// translation.
func (s *Session) forwardEvent(p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	client, err := toClient(p)
	if err != nil {
		if errors.Is(err, errCrossInterface) {
			return &HostError{Err: fmt.Errorf("generic forward of cross-interface object %s", p)}
		}
		// Events for host objects we never paired, such as the
		// bootstrap callback.
		s.log.Debug("event for unpaired host object", "object", p.String(), "event", d.Name)
		return nil
	}

	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: fmt.Errorf("malformed %s.%s: %w", p.iface.Name, d.Name, err)}
	}

	tvals, err := s.eventValsToClient(p, d, vals)
	if err != nil {
		return err
	}

	out, err := d.Encode(client.id, m.Opcode, tvals)
	if err != nil {
		return fmt.Errorf("encode %s.%s: %w", client.iface.Name, d.Name, err)
	}
	return s.writeGuest(out)
}

// eventValsToClient translates the object-typed values of a host
// event into guest ids, creating pairs for host-created objects.
func (s *Session) eventValsToClient(p *Proxy, d *protocol.MessageDesc, vals []any) ([]any, error) {
	out := make([]any, len(vals))
	for i, v := range vals {
		switch v := v.(type) {
		case protocol.ObjectID:
			if v == 0 {
				out[i] = v
				continue
			}
			ref := s.hostObjects.get(uint32(v))
			if ref == nil {
				return nil, &HostError{Err: fmt.Errorf("%s.%s references unknown object %d", p.iface.Name, d.Name, v)}
			}
			twin, err := toClient(ref)
			if err != nil {
				return nil, &HostError{Err: err}
			}
			out[i] = protocol.ObjectID(twin.id)
		case protocol.NewID:
			ifaceName := d.ObjectType(i)
			iface, ok := protocol.Lookup(ifaceName)
			if !ok {
				return nil, &HostError{Err: fmt.Errorf("%s.%s creates unknown interface %q", p.iface.Name, d.Name, ifaceName)}
			}
			b, err := s.newPairFromHost(iface, p.version, v.ID, bindGeneric, iface)
			if err != nil {
				return nil, err
			}
			out[i] = protocol.NewID{ID: b.server.id}
		default:
			out[i] = v
		}
	}
	return out, nil
}

// installCallbackHooks retires callback pairs once done arrives:
// the guest sees done followed by the freeing of its id, and the
// host's own delete_id cleans up the client side.
func (s *Session) installCallbackHooks() {
	s.onEvent(protocol.Callback, "done", func(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
		client, err := toClient(p)
		if err != nil {
			// Bootstrap sync callback or already-retired pair.
			return nil
		}
		vals, err := d.Decode(m)
		if err != nil {
			return &HostError{Err: err}
		}
		if err := s.emitGuest(client, "done", vals[0].(uint32)); err != nil {
			return err
		}
		p.live = false
		s.ackDelete(client)
		return nil
	})
}
