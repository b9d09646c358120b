package relay

import (
	"github.com/bnema/virtway/internal/protocol"
	"github.com/bnema/virtway/internal/wire"
)

func (s *Session) installOutputHooks() {
	s.onEvent(protocol.Output, "scale", handleOutputScale)
	s.onEvent(protocol.XdgOutput, "logical_position", handleLogicalGeometry)
	s.onEvent(protocol.XdgOutput, "logical_size", handleLogicalGeometry)
}

// handleOutputScale divides the host scale factor by the Xwayland
// scale: Xwayland already renders upscaled, so advertising the full
// factor would double-scale.
func handleOutputScale(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	client, err := toClient(p)
	if err != nil {
		return &HostError{Err: err}
	}
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	factor := vals[0].(int32)
	if scale := s.opts.Hooks.EffectiveScale(); scale != 1 {
		factor /= scale
		if factor < 1 {
			factor = 1
		}
	}
	return s.emitGuest(client, "scale", factor)
}

// handleLogicalGeometry maps logical output coordinates into the
// guest's scaled space.
func handleLogicalGeometry(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	client, err := toClient(p)
	if err != nil {
		return &HostError{Err: err}
	}
	vals, err := d.Decode(m)
	if err != nil {
		return &HostError{Err: err}
	}
	scale := s.opts.Hooks.EffectiveScale()
	return s.emitGuest(client, d.Name, vals[0].(int32)*scale, vals[1].(int32)*scale)
}
