package relay

import (
	"fmt"

	"github.com/bnema/virtway/internal/protocol"
)

// Role says which peer a proxy faces.
type Role uint8

const (
	// RoleServer proxies face the guest client: the relay plays the
	// server for them.
	RoleServer Role = iota
	// RoleClient proxies face the host compositor: the relay plays
	// the client.
	RoleClient
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// serverIDBase is the first object id in the server-allocated range.
// On the guest connection the relay allocates from it; on the host
// connection the compositor does.
const serverIDBase uint32 = 0xFF000000

// Proxy is the local handle for one Wayland object on one side of
// the relay.
type Proxy struct {
	id      uint32
	iface   *protocol.Interface
	version uint32
	role    Role
	live    bool

	binding *Binding

	// data carries per-interface state: *shmPool, *shmBuffer,
	// *surfaceState, … Extensions hang their own state off surface
	// bindings through the xwayland hook handles.
	data any

	// onDelete runs exactly once when the proxy is removed from its
	// table, after any deferred ack has completed.
	onDelete func()
}

func (p *Proxy) ID() uint32                    { return p.id }
func (p *Proxy) Interface() *protocol.Interface { return p.iface }
func (p *Proxy) Version() uint32               { return p.version }

func (p *Proxy) String() string {
	return fmt.Sprintf("%s@%d(%s)", p.iface.Name, p.id, p.role)
}

type bindingKind uint8

const (
	bindGeneric bindingKind = iota
	// bindGtkZwp pairs a gtk_primary_selection_* object on the guest
	// side with its zwp_primary_selection_* twin on the host side.
	// Excluded from the generic translation functions.
	bindGtkZwp
)

// Binding pairs the server-side and client-side proxies of one
// logical object. Both tables own their proxy; the binding itself is
// reachable from either and dies with them.
type Binding struct {
	kind   bindingKind
	server *Proxy
	client *Proxy
}

// toHost resolves the host-side twin of a server-side proxy. Both
// sides share interface and version. Absence of a binding is a
// programming error surfaced as a protocol error; a cross-interface
// binding fails with errCrossInterface.
func toHost(p *Proxy) (*Proxy, error) {
	if p.role != RoleServer {
		return nil, fmt.Errorf("toHost on %s", p)
	}
	if p.binding == nil {
		return nil, fmt.Errorf("%s has no host twin", p)
	}
	if p.binding.kind != bindGeneric {
		return nil, errCrossInterface
	}
	return p.binding.client, nil
}

// toClient is the inverse of toHost.
func toClient(p *Proxy) (*Proxy, error) {
	if p.role != RoleClient {
		return nil, fmt.Errorf("toClient on %s", p)
	}
	if p.binding == nil {
		return nil, fmt.Errorf("%s has no guest twin", p)
	}
	if p.binding.kind != bindGeneric {
		return nil, errCrossInterface
	}
	return p.binding.server, nil
}

// crossTwin resolves the other side of any binding, including the
// GTK/Zwp kind. Only the selection relay calls it.
func crossTwin(p *Proxy) (*Proxy, error) {
	if p.binding == nil {
		return nil, fmt.Errorf("%s has no twin", p)
	}
	if p.role == RoleServer {
		return p.binding.client, nil
	}
	return p.binding.server, nil
}

// objectTable maps wire ids to proxies for one connection and
// allocates ids from the range the relay owns on that connection.
type objectTable struct {
	objects map[uint32]*Proxy
	nextID  uint32
	free    []uint32
}

// newObjectTable returns a table allocating from start upward.
func newObjectTable(start uint32) *objectTable {
	return &objectTable{
		objects: make(map[uint32]*Proxy),
		nextID:  start,
	}
}

func (t *objectTable) get(id uint32) *Proxy {
	return t.objects[id]
}

func (t *objectTable) add(p *Proxy) {
	t.objects[p.id] = p
}

// remove drops the proxy and runs its onDelete hook. Relay-allocated
// ids return to the free list for reuse.
func (t *objectTable) remove(id uint32) {
	p, ok := t.objects[id]
	if !ok {
		return
	}
	delete(t.objects, id)
	p.live = false
	if id >= t.startID() && id < t.nextID {
		t.free = append(t.free, id)
	}
	if p.onDelete != nil {
		hook := p.onDelete
		p.onDelete = nil
		hook()
	}
}

func (t *objectTable) startID() uint32 {
	if t.nextID >= serverIDBase {
		return serverIDBase
	}
	return 2
}

// allocate returns a fresh id in the relay-owned range, reusing
// released ids first the way libwayland clients do.
func (t *objectTable) allocate() uint32 {
	if n := len(t.free); n > 0 {
		id := t.free[n-1]
		t.free = t.free[:n-1]
		return id
	}
	id := t.nextID
	t.nextID++
	return id
}
