package ws

import "sync"

// Registry 维护用户 id 到存活连接的权威映射。
// 任一时刻每个用户至多有一条连接在册；所有修改与 Snapshot 读取互斥。
type Registry struct {
	mu      sync.RWMutex
	clients map[uint]*Client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[uint]*Client)}
}

// Bind 登记（或覆盖）映射，返回被顶替的旧连接；由调用方决定如何处置。
func (r *Registry) Bind(userID uint, c *Client) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.clients[userID]
	r.clients[userID] = c
	if old == c {
		return nil
	}
	return old
}

// Unbind 仅当该用户仍绑在 c 上时移除映射，返回是否真的移除。
// 被顶替的旧连接在收尾时不会误删新连接的映射。
func (r *Registry) Unbind(userID uint, c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[userID] != c {
		return false
	}
	delete(r.clients, userID)
	return true
}

// Snapshot 返回某一时刻全部存活连接的副本，广播迭代期间不受并发增删影响。
func (r *Registry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// Online 返回在册连接数，供 REST 接口与指标复用。
func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
