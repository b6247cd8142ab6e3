package ws

import (
	"context"
	"sync"

	"sharednote/backend/internal/cache"
	"sharednote/backend/internal/collab"
)

// Hub 维护文档房间，并作为 collab.Notifier 把事件推送给房间内所有连接
type Hub struct {
	// 可选：Redis 实现的在线状态，多实例部署时 show_alive_members 从这里读
	presence cache.PresenceCache
	// 保护 rooms，加入/离开房间、广播时都会先加锁
	mu sync.RWMutex
	// docID -> set of connections
	rooms map[string]map[*Conn]struct{}
}

var _ collab.Notifier = (*Hub)(nil)

func NewHub(p cache.PresenceCache) *Hub {
	return &Hub{presence: p, rooms: make(map[string]map[*Conn]struct{})}
}

// Join 将连接加入指定文档房间
func (h *Hub) Join(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[docID] == nil {
		// 房间里存连接而不是 userID：一个用户可开多个标签页/设备，广播要逐连接发
		h.rooms[docID] = make(map[*Conn]struct{})
	}
	h.rooms[docID][c] = struct{}{}
}

// Leave 将连接从指定文档房间移除
func (h *Hub) Leave(docID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.rooms[docID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.rooms, docID)
		}
	}
}

func (h *Hub) RoomSize(docID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[docID])
}

// 拷贝一份连接列表，广播时不持有 h.mu
func (h *Hub) snapshot(docID string) []*Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Conn, 0, len(h.rooms[docID]))
	for c := range h.rooms[docID] {
		conns = append(conns, c)
	}
	return conns
}

// Publish 把事件广播给房间内的每个连接，提交者自己也会收到。
// 调用方持有文档锁，所以这里只入队，不做网络写。
func (h *Hub) Publish(_ context.Context, evt collab.Event) error {
	msg := ServerMessage{Type: TypeEvent, DocID: evt.DocumentID, Event: &evt}
	for _, c := range h.snapshot(evt.DocumentID) {
		c.SendMessage_Enqueue(msg)
	}
	return nil
}
