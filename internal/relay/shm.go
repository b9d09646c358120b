package relay

import (
	"fmt"
	"os"

	"github.com/bnema/virtway/internal/protocol"
	"github.com/bnema/virtway/internal/virtgpu"
	"github.com/bnema/virtway/internal/wire"
)

// shmPool mirrors a guest shared-memory pool. The guest descriptor
// is held until the pool proxy and every buffer carved from it are
// gone; the host-visible mirror is created lazily on the first
// attach, because Xwayland creates far more pools than it ever
// attaches.
type shmPool struct {
	s       *Session
	hostShm *Proxy

	size     int32
	clientFD *os.File
	refcount int
	mapping  *poolMapping
}

// poolMapping is the realized mirror: a host pool over an allocator
// image, with both sides mapped into the relay.
type poolMapping struct {
	hostPool  *Proxy
	clientMem virtgpu.Mmap
	hostMem   virtgpu.Mmap
}

// shmBuffer is one region of a pool. Its host twin and memory slices
// materialize on first attach.
type shmBuffer struct {
	pool   *shmPool
	offset int32
	width  int32
	height int32
	stride int32
	format uint32

	realized    bool
	clientSlice []byte
	hostSlice   []byte
}

func (s *Session) installShmHooks() {
	s.onRequest(protocol.Shm, "create_pool", handleCreatePool)
	s.onRequest(protocol.ShmPool, "create_buffer", handleCreateBuffer)
	s.onRequest(protocol.ShmPool, "resize", handlePoolResize)
	s.onRequest(protocol.ShmPool, "destroy", handlePoolDestroy)
	s.onRequest(protocol.Buffer, "destroy", handleBufferDestroy)
}

// handleCreatePool virtualizes wl_shm.create_pool. In direct mode
// the guest descriptor is host-shareable and the request forwards
// untouched.
func handleCreatePool(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	if s.opts.DirectShm {
		return s.forwardRequest(p, d, m)
	}

	hostShm, err := toHost(p)
	if err != nil {
		return protocolErrf(p.id, "%v", err)
	}
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed create_pool: %v", err)
	}
	id := vals[0].(protocol.NewID)
	fd := vals[1].(*os.File)
	size := vals[2].(int32)

	if size <= 0 {
		fd.Close()
		return protocolErrf(p.id, "create_pool with size %d", size)
	}

	pool := &shmPool{s: s, hostShm: hostShm, size: size, clientFD: fd, refcount: 1}
	sp, err := s.addServerOnly(protocol.ShmPool, p.version, id.ID, pool)
	if err != nil {
		fd.Close()
		return err
	}
	sp.onDelete = pool.unref
	return nil
}

func handleCreateBuffer(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	pool, ok := p.data.(*shmPool)
	if !ok {
		return s.forwardRequest(p, d, m)
	}

	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed create_buffer: %v", err)
	}
	id := vals[0].(protocol.NewID)
	buf := &shmBuffer{
		pool:   pool,
		offset: vals[1].(int32),
		width:  vals[2].(int32),
		height: vals[3].(int32),
		stride: vals[4].(int32),
		format: vals[5].(uint32),
	}
	if buf.offset < 0 || buf.width <= 0 || buf.height <= 0 || buf.stride < buf.width {
		return protocolErrf(p.id, "create_buffer with bad geometry %dx%d stride %d offset %d",
			buf.width, buf.height, buf.stride, buf.offset)
	}

	bp, err := s.addServerOnly(protocol.Buffer, 1, id.ID, buf)
	if err != nil {
		return err
	}
	pool.refcount++
	bp.onDelete = pool.unref
	return nil
}

func handlePoolResize(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	pool, ok := p.data.(*shmPool)
	if !ok {
		return s.forwardRequest(p, d, m)
	}
	vals, err := d.Decode(m)
	if err != nil {
		return protocolErrf(p.id, "malformed resize: %v", err)
	}
	size := vals[0].(int32)
	if size == pool.size {
		return nil
	}
	if size < pool.size {
		return protocolErrf(p.id, "shrinking resize %d -> %d", pool.size, size)
	}
	pool.size = size
	// The mirror is stale at the old size; the next attach remaps.
	// Existing buffer records are not re-sliced: clients re-create
	// their buffers after a resize.
	return pool.dropMapping()
}

func handlePoolDestroy(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	if _, ok := p.data.(*shmPool); !ok {
		return s.forwardRequest(p, d, m)
	}
	// The pool has no host twin; acknowledge immediately. unref runs
	// from the proxy's delete hook.
	s.ackDelete(p)
	return nil
}

func handleBufferDestroy(s *Session, p *Proxy, d *protocol.MessageDesc, m *wire.Message) error {
	buf, ok := p.data.(*shmBuffer)
	if !ok {
		return s.forwardRequest(p, d, m)
	}
	if buf.realized {
		// A host twin exists; tear it down in order.
		return s.forwardRequest(p, d, m)
	}
	s.ackDelete(p)
	return nil
}

// ensureMapped realizes the host mirror: allocate an image of the
// pool's size, create a host wl_shm_pool over it, and map both sides
// into the relay.
func (pool *shmPool) ensureMapped() (*poolMapping, error) {
	if pool.mapping != nil {
		return pool.mapping, nil
	}
	if pool.clientFD == nil {
		return nil, fmt.Errorf("pool has no client descriptor")
	}
	s := pool.s
	if s.opts.Device == nil {
		return nil, fmt.Errorf("no allocator device configured")
	}

	size := uint64(pool.size)
	img, err := s.opts.Device.Alloc(virtgpu.Query{
		Width:     uint32(pool.size),
		Height:    1,
		DRMFormat: virtgpu.FormatR8,
	})
	if err != nil {
		return nil, fmt.Errorf("allocate host pool: %w", err)
	}

	hostMem, err := virtgpu.SafeMapFile(img.File, size, img.HostSize, img.Offset)
	if err != nil {
		img.Close()
		return nil, fmt.Errorf("map host pool: %w", err)
	}
	clientMem, err := virtgpu.SafeMapFile(pool.clientFD, size, size, 0)
	if err != nil {
		hostMem.Unmap()
		img.Close()
		return nil, fmt.Errorf("map client pool: %w", err)
	}

	hp := &Proxy{id: s.hostObjects.allocate(), iface: protocol.ShmPool, version: 1, role: RoleClient, live: true}
	s.hostObjects.add(hp)
	err = s.emitHost(pool.hostShm, "create_pool", protocol.NewID{ID: hp.id}, img.File, pool.size)
	// emitHost closed our copy of the descriptor; the mapping and the
	// host's reference keep the memory alive.
	img.File = nil
	if err != nil {
		clientMem.Unmap()
		hostMem.Unmap()
		s.hostObjects.remove(hp.id)
		return nil, err
	}

	pool.mapping = &poolMapping{hostPool: hp, clientMem: clientMem, hostMem: hostMem}
	return pool.mapping, nil
}

// dropMapping releases the mirror; the guest descriptor stays.
func (pool *shmPool) dropMapping() error {
	m := pool.mapping
	if m == nil {
		return nil
	}
	pool.mapping = nil
	m.clientMem.Unmap()
	m.hostMem.Unmap()
	return pool.s.destroyHostOnly(m.hostPool)
}

// unref runs when the pool proxy or one of its buffer proxies is
// deleted. The guest descriptor closes exactly once, when the last
// reference goes.
func (pool *shmPool) unref() {
	pool.refcount--
	if pool.refcount > 0 {
		return
	}
	if err := pool.dropMapping(); err != nil {
		pool.s.shmLog.Warn("dropping pool mapping", "err", err)
	}
	if pool.clientFD != nil {
		pool.clientFD.Close()
		pool.clientFD = nil
	}
}

// realize forces the buffer's host twin and memory slices into
// existence. Safe to call repeatedly.
func (s *Session) realize(bp *Proxy, buf *shmBuffer) error {
	if buf.realized {
		return nil
	}
	m, err := buf.pool.ensureMapped()
	if err != nil {
		return err
	}

	end := int64(buf.offset) + int64(buf.height)*int64(buf.stride)
	if end > int64(len(m.clientMem)) {
		return protocolErrf(bp.id, "buffer [%d, %d) exceeds pool size %d", buf.offset, end, len(m.clientMem))
	}

	hb := s.pairExisting(bp, protocol.Buffer)
	if err := s.emitHost(m.hostPool, "create_buffer", protocol.NewID{ID: hb.id},
		buf.offset, buf.width, buf.height, buf.stride, buf.format); err != nil {
		return err
	}

	buf.clientSlice = m.clientMem[buf.offset:end]
	buf.hostSlice = m.hostMem[buf.offset:end]
	buf.realized = true
	return nil
}
