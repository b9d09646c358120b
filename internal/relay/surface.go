package relay

import (
	"github.com/bnema/virtway/internal/protocol"
	"github.com/bnema/virtway/internal/wire"
	"github.com/bnema/virtway/internal/xwayland"
)

type surfaceLifecycle int

const (
	surfaceReady surfaceLifecycle = iota
	surfaceUnconfigured
	surfaceDestroyed
)

// surfaceState is the per-surface binding payload. While the window
// manager has not yet configured an Xwayland surface, incoming
// requests queue as thunks and drain in order on configuration.
type surfaceState struct {
	s      *Session
	server *Proxy
	host   *Proxy

	lifecycle  surfaceLifecycle
	queue      []func() error
	visibility xwayland.Visibility

	// clientMem/hostMem view the currently attached buffer; commit
	// copies the former into the latter.
	clientMem []byte
	hostMem   []byte

	// userData is the extension-owned slot reachable through the
	// xwayland hook handles.
	userData any
}

// initSurface attaches state to a fresh surface pair and hands it to
// the Xwayland hooks when present.
func (s *Session) initSurface(b *Binding) {
	st := &surfaceState{s: s, server: b.server, host: b.client, visibility: xwayland.Show}
	b.server.data = st

	hooks := s.opts.Hooks
	if !hooks.Active() {
		return
	}
	st.lifecycle = surfaceUnconfigured
	if scale := hooks.EffectiveScale(); scale != 1 {
		// Compensate Xwayland's own scaling up front; unmanaged
		// surfaces revert in setConfigured.
		if err := s.emitHost(st.host, "set_buffer_scale", int32(scale)); err != nil {
			s.log.Warn("set_buffer_scale on new surface", "err", err)
		}
	}
	if hooks.OnCreateSurface != nil {
		hooks.OnCreateSurface(
			xwayland.SurfaceHandle{ID: st.host.id, OnHost: true},
			xwayland.SurfaceHandle{ID: st.server.id, OnHost: false},
			st.setConfigured,
		)
	}
}

// setConfigured is the window manager's verdict; it drains the
// deferred queue in FIFO order.
func (st *surfaceState) setConfigured(v xwayland.Visibility) {
	if st.lifecycle == surfaceDestroyed {
		return
	}
	st.visibility = v
	if v == xwayland.Unmanaged && st.s.opts.Hooks.EffectiveScale() != 1 {
		// Cursor surfaces and hidden markers must not be upscaled.
		if err := st.s.emitHost(st.host, "set_buffer_scale", int32(1)); err != nil {
			st.s.log.Warn("reverting buffer scale", "err", err)
		}
	}
	queue := st.queue
	st.queue = nil
	st.lifecycle = surfaceReady
	for _, thunk := range queue {
		if err := thunk(); err != nil {
			st.s.log.Warn("deferred surface request failed", "err", err)
		}
	}
}

// run executes or defers a surface operation depending on lifecycle.
// Operations on destroyed surfaces are dropped.
func (st *surfaceState) run(thunk func() error) error {
	switch st.lifecycle {
	case surfaceUnconfigured:
		st.queue = append(st.queue, thunk)
		return nil
	case surfaceDestroyed:
		return nil
	default:
		return thunk()
	}
}

func surfaceData(p *Proxy) (*surfaceState, error) {
	st, ok := p.data.(*surfaceState)
	if !ok {
		return nil, protocolErrf(p.id, "object %s carries no surface state", p)
	}
	return st, nil
}

func (s *Session) installSurfaceHooks() {
	s.onRequest(protocol.Surface, "attach", handleSurfaceAttach)
	s.onRequest(protocol.Surface, "commit", handleSurfaceCommit)
	s.onRequest(protocol.Surface, "damage", handleSurfaceDamage)
	s.onRequest(protocol.Surface, "damage_buffer", handleSurfaceDamageBuffer)
	s.onRequest(protocol.Surface, "frame", handleSurfaceFrame)
	s.onRequest(protocol.Surface, "set_opaque_region", handleSurfaceRegion)
	s.onRequest(protocol.Surface, "set_input_region", handleSurfaceRegion)
	s.onRequest(protocol.Surface, "set_buffer_transform", handleSurfaceVerbatim)
	s.onRequest(protocol.Surface, "set_buffer_scale", handleSurfaceVerbatim)
	s.onRequest(protocol.Surface, "offset", handleSurfaceOffset)
	s.onRequest(protocol.Surface, "destroy", handleSurfaceDestroy)
}

// hostward divides a guest coordinate by the Xwayland scale.
func (s *Session) hostward(v int32) int32 {
	return v / s.opts.Hooks.EffectiveScale()
}

func handleSurfaceAttach(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	st, err := surfaceData(p)
	if err != nil {
		return err
	}
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed attach: %v", err)
	}
	bufID := vals[0].(protocol.ObjectID)
	x := s.hostward(vals[1].(int32))
	y := s.hostward(vals[2].(int32))

	return st.run(func() error {
		if bufID == 0 {
			st.clientMem, st.hostMem = nil, nil
			return s.emitHost(st.host, "attach", protocol.ObjectID(0), x, y)
		}
		if st.visibility == xwayland.Hide {
			return nil
		}
		bp := s.guestObjects.get(uint32(bufID))
		if bp == nil {
			s.log.Warn("attach of vanished buffer", "id", uint32(bufID))
			return nil
		}

		var hostBuf *Proxy
		if buf, ok := bp.data.(*shmBuffer); ok {
			if err := s.realize(bp, buf); err != nil {
				return err
			}
			st.clientMem = buf.clientSlice
			st.hostMem = buf.hostSlice
			hostBuf = bp.binding.client
		} else {
			// Direct buffer: the host maps the guest memory itself,
			// so commit has nothing to copy.
			twin, err := toHost(bp)
			if err != nil {
				return protocolErrf(p.id, "%v", err)
			}
			hostBuf = twin
			st.clientMem, st.hostMem = nil, nil
		}
		return s.emitHost(st.host, "attach", protocol.ObjectID(hostBuf.id), x, y)
	})
}

func handleSurfaceCommit(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	st, err := surfaceData(p)
	if err != nil {
		return err
	}
	return st.run(func() error {
		// TODO: copy only the union of accumulated damage rectangles
		// instead of the whole attached slice.
		if len(st.clientMem) > 0 {
			copy(st.hostMem, st.clientMem)
		}
		return s.emitHost(st.host, "commit")
	})
}

func handleSurfaceDamage(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	st, err := surfaceData(p)
	if err != nil {
		return err
	}
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed damage: %v", err)
	}
	x, y := s.hostward(vals[0].(int32)), s.hostward(vals[1].(int32))
	w, h := s.hostward(vals[2].(int32)), s.hostward(vals[3].(int32))
	return st.run(func() error {
		return s.emitHost(st.host, "damage", x, y, w, h)
	})
}

// handleSurfaceDamageBuffer forwards buffer-space damage untouched;
// buffer coordinates are not subject to the Xwayland scale.
func handleSurfaceDamageBuffer(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	st, err := surfaceData(p)
	if err != nil {
		return err
	}
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed damage_buffer: %v", err)
	}
	x, y := vals[0].(int32), vals[1].(int32)
	w, h := vals[2].(int32), vals[3].(int32)
	return st.run(func() error {
		return s.emitHost(st.host, "damage_buffer", x, y, w, h)
	})
}

func handleSurfaceFrame(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	st, err := surfaceData(p)
	if err != nil {
		return err
	}
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed frame: %v", err)
	}
	id := vals[0].(protocol.NewID)
	b, err := s.newPair(protocol.Callback, 1, id.ID, bindGeneric, protocol.Callback)
	if err != nil {
		return err
	}
	return st.run(func() error {
		return s.emitHost(st.host, "frame", protocol.NewID{ID: b.client.id})
	})
}

func handleSurfaceRegion(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	st, err := surfaceData(p)
	if err != nil {
		return err
	}
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed %s: %v", d.Name, err)
	}
	regionID := vals[0].(protocol.ObjectID)
	name := d.Name
	return st.run(func() error {
		host := protocol.ObjectID(0)
		if regionID != 0 {
			rp := s.guestObjects.get(uint32(regionID))
			if rp == nil {
				s.log.Warn("region vanished before configure", "id", uint32(regionID))
				return nil
			}
			twin, err := toHost(rp)
			if err != nil {
				return protocolErrf(p.id, "%v", err)
			}
			host = protocol.ObjectID(twin.id)
		}
		return s.emitHost(st.host, name, host)
	})
}

func handleSurfaceVerbatim(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	st, err := surfaceData(p)
	if err != nil {
		return err
	}
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed %s: %v", d.Name, err)
	}
	v := vals[0].(int32)
	name := d.Name
	return st.run(func() error {
		return s.emitHost(st.host, name, v)
	})
}

func handleSurfaceOffset(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	st, err := surfaceData(p)
	if err != nil {
		return err
	}
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed offset: %v", err)
	}
	x, y := s.hostward(vals[0].(int32)), s.hostward(vals[1].(int32))
	return st.run(func() error {
		return s.emitHost(st.host, "offset", x, y)
	})
}

// handleSurfaceDestroy bypasses the deferred queue: pending thunks
// for a destroyed surface are dropped silently.
func handleSurfaceDestroy(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	st, err := surfaceData(p)
	if err != nil {
		return err
	}
	st.lifecycle = surfaceDestroyed
	st.queue = nil
	st.clientMem, st.hostMem = nil, nil
	hooks := s.opts.Hooks
	if hooks.Active() && hooks.OnDestroySurface != nil {
		hooks.OnDestroySurface(xwayland.SurfaceHandle{ID: st.host.id, OnHost: true})
	}
	return s.forwardRequest(p, d, m)
}
