package relay

import (
	"github.com/bnema/virtway/internal/protocol"
	"github.com/bnema/virtway/internal/wire"
)

func (s *Session) installShellHooks() {
	s.onEvent(protocol.XdgWmBase, "ping", handleWmPing)
	s.onRequest(protocol.XdgWmBase, "pong", handleWmPong)
	s.onRequest(protocol.XdgToplevel, "set_title", handleSetTitle)
}

// handleWmPing forwards the liveness probe to the guest and queues
// the answer for the host. The pong queue is strict FIFO: the guest's
// next pong settles the oldest outstanding ping, whoever asked it.
func handleWmPing(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	client, err := toClient(p)
	if err != nil {
		return &HostError{Err: err}
	}
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	serial := vals[0].(uint32)

	hostWm := p
	s.pongQueue = append(s.pongQueue, func() {
		if err := s.emitHost(hostWm, "pong", serial); err != nil {
			s.xdgLog.Warn("pong not delivered to host", "err", err)
		}
	})
	return s.emitGuest(client, "ping", serial)
}

// handleWmPong pops the next queued handler. A pong with nothing
// outstanding is logged and dropped.
func handleWmPong(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed pong: %v", err)
	}
	if len(s.pongQueue) == 0 {
		s.xdgLog.Warn("stray pong", "serial", vals[0].(uint32))
		return nil
	}
	next := s.pongQueue[0]
	s.pongQueue = s.pongQueue[1:]
	next()
	return nil
}

// handleSetTitle prefixes window titles with the session tag so
// guest windows are recognizable on the host.
func handleSetTitle(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	host, err := toHost(p)
	if err != nil {
		return protocolErrf(p.id, "%v", err)
	}
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed set_title: %v", err)
	}
	return s.emitHost(host, "set_title", s.opts.Tag+vals[0].(string))
}
