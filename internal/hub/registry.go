package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/coder/websocket"
)

// Conn is one live client connection. The dispatcher owns its protocol
// state (project binding, subscriptions); the registry only tracks
// membership. All socket writes are serialized through writeMu so replies
// and broadcast pushes never interleave on the wire.
type Conn struct {
	ID   string
	sock *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	project string // bound project path, "" while unbound
	subs    map[string]bool
}

func newConn(id string, sock *websocket.Conn) *Conn {
	return &Conn{ID: id, sock: sock, subs: make(map[string]bool)}
}

// Project returns the connection's bound project path, or "" if unbound.
func (c *Conn) Project() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.project
}

// bind swaps the bound project and returns the previous binding, so the
// caller can hand off any per-project resources in one step.
func (c *Conn) bind(project string) (prev string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev = c.project
	c.project = project
	return prev
}

func (c *Conn) subscribe(list string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[list] = true
}

// Subscriptions returns the logical lists this connection asked for.
func (c *Conn) Subscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.subs))
	for l := range c.subs {
		out = append(out, l)
	}
	return out
}

func (c *Conn) send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.sock.Write(ctx, websocket.MessageText, data)
}

// Registry tracks live connections. Entries are removed synchronously when
// a connection's read loop exits, so closed sockets never appear in
// ByProject regardless of how the handler unwound.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*Conn)}
}

func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// ByProject returns every live connection bound to project by path
// equality. Unbound connections never match.
func (r *Registry) ByProject(project string) []*Conn {
	if project == "" {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Conn
	for _, c := range r.conns {
		if c.Project() == project {
			out = append(out, c)
		}
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
