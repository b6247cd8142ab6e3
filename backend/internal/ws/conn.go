package ws

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"sharednote/backend/internal/collab"
	"sharednote/backend/internal/ot"

	"github.com/gorilla/websocket"
)

const (
	submitTimeout = 200 * time.Millisecond
	sendQueueSize = 64
	writeWait     = 10 * time.Second
)

type Conn struct {
	ws       *websocket.Conn
	hub      *Hub
	docID    string
	userID   uint64
	username string
	// 出站队列，只由 writeLoop 消费。send 从不关闭：Hub 可能仍在往里广播，
	// 连接结束通过 done 通知。
	send      chan OutboundMessage
	done      chan struct{}
	closeOnce sync.Once
	//协作引擎服务
	svc *collab.Service
	// 信号量控制
	sem *collab.SemaphoreControl
}

func NewConn(ws *websocket.Conn, hub *Hub, userID uint64, username string, svc *collab.Service, sem *collab.SemaphoreControl) *Conn {
	return &Conn{
		ws:       ws,
		hub:      hub,
		userID:   userID,
		username: username,
		send:     make(chan OutboundMessage, sendQueueSize),
		done:     make(chan struct{}),
		svc:      svc,
		sem:      sem,
	}
}

func (c *Conn) SendMessage_Enqueue(msg OutboundMessage) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- msg:
	default:
		// 如果队列满了，则丢弃消息
		log.Printf("send queue full, drop message type=%s user=%d", msg.MessageType(), c.userID)
	}
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// 消息里的 docId 优先，否则用当前房间
func (c *Conn) targetDoc(msg ClientMessage) (string, error) {
	if msg.DocID != "" {
		return msg.DocID, nil
	}
	if c.docID == "" {
		return "", fmt.Errorf("%w: no document joined", collab.ErrInvalidOperation)
	}
	return c.docID, nil
}

func (c *Conn) join(ctx context.Context, docID string) {
	if c.docID != "" && c.docID != docID {
		// 先离开旧房间
		c.leave(ctx)
	}
	c.docID = docID
	// 先进房间再 Connect，自己也能收到在线列表事件
	c.hub.Join(docID, c)
	p := c.svc.Connect(ctx, docID, c.userID, c.username)
	doc, err := c.svc.GetCurrentContent(ctx, docID)
	if err != nil {
		log.Printf("load document error (user=%d, doc=%s): %v", c.userID, docID, err)
		c.SendMessage_Enqueue(errorMessage(docID, err))
		return
	}
	c.SendMessage_Enqueue(ServerMessage{Type: TypeJoined, DocID: docID, UserID: c.userID, Token: p.ConnectionToken, Sequence: doc.LastSequence, Content: doc.Content})
}

func (c *Conn) leave(ctx context.Context) {
	if c.docID == "" {
		return
	}
	c.hub.Leave(c.docID, c)
	c.svc.Disconnect(ctx, c.docID, c.userID)
	c.docID = ""
}

func (c *Conn) handleOpSubmit(ctx context.Context, docID string, msg ClientMessage) {
	submitCtx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()

	if c.sem != nil {
		if err := c.sem.Acquire(submitCtx); err != nil {
			c.SendMessage_Enqueue(errorMessage(docID, err))
			return
		}
		defer c.sem.Release()
	}

	var (
		logged  []ot.Operation
		content string
	)
	if msg.Operation != nil {
		res, err := c.svc.SubmitOperation(ctx, collab.SubmitRequest{
			DocumentID: docID, UserID: c.userID, Operation: *msg.Operation, BaseSequence: msg.BaseSequence,
		})
		if err != nil {
			c.SendMessage_Enqueue(errorMessage(docID, err))
			return
		}
		logged, content = []ot.Operation{res.Operation}, res.Content
	} else {
		ops, err := msg.Ops.ToOperations()
		if err == nil {
			var res collab.BatchResult
			res, err = c.svc.SubmitOperations(ctx, collab.BatchRequest{
				DocumentID: docID, UserID: c.userID, Operations: ops, BaseSequence: msg.BaseSequence,
			})
			logged, content = res.Operations, res.Content
		}
		if err != nil {
			c.SendMessage_Enqueue(errorMessage(docID, err))
			return
		}
	}

	ack := OpAppliedMessage{Type: TypeOpApplied, DocID: docID, Operations: logged, Content: content, ClientID: msg.ClientID, ClientSeq: msg.ClientSeq}
	if n := len(logged); n > 0 {
		ack.Sequence = logged[n-1].SequenceNumber
	}
	c.SendMessage_Enqueue(ack)
}

func (c *Conn) aliveMembers(ctx context.Context, docID string) []PresenceMember {
	if c.hub.presence != nil {
		members, err := c.hub.presence.GetAliveMembersWithNames(ctx, docID)
		if err == nil {
			out := make([]PresenceMember, len(members))
			for i, m := range members {
				out[i] = PresenceMember{UserID: m.UserID, Username: m.Username}
			}
			return out
		}
		log.Printf("get alive members with names error: %v", err)
	}
	// Redis 不可用时退回本实例的在线状态
	members := c.svc.Members(docID)
	out := make([]PresenceMember, len(members))
	for i, m := range members {
		out[i] = PresenceMember{UserID: m.UserID, Username: m.Username}
	}
	return out
}

func (c *Conn) readLoop(ctx context.Context) {
	defer func() {
		c.leave(context.WithoutCancel(ctx))
		c.close()
	}()
	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("read json error (user=%d, doc=%s): %v", c.userID, c.docID, err)
			}
			return
		}
		c.handle(ctx, msg)
	}
}

func (c *Conn) handle(ctx context.Context, msg ClientMessage) {
	switch msg.Type {
	case TypeJoin:
		if msg.DocID == "" {
			c.SendMessage_Enqueue(ServerMessage{Type: TypeError, Code: "MISSING_DOC_ID", Content: "docId is required"})
			return
		}
		c.join(ctx, msg.DocID)
		return
	case TypeLeave:
		docID := c.docID
		c.leave(ctx)
		c.SendMessage_Enqueue(ServerMessage{Type: TypeFeedback, DocID: docID, Content: "left"})
		return
	case TypeHeartbeat:
		if c.docID == "" {
			c.SendMessage_Enqueue(ServerMessage{Type: TypeFeedback, Content: "Heartbeat received"})
			return
		}
		c.svc.Heartbeat(ctx, c.docID, c.userID, c.username)
		c.SendMessage_Enqueue(ServerMessage{Type: TypeFeedback, DocID: c.docID, Content: "Heartbeat received"})
		return
	}

	docID, err := c.targetDoc(msg)
	if err != nil && isDocMessage(msg.Type) {
		c.SendMessage_Enqueue(errorMessage("", err))
		return
	}

	switch msg.Type {
	case TypeOpSubmit:
		c.handleOpSubmit(ctx, docID, msg)

	case TypeRequestLock:
		res := c.svc.RequestLock(ctx, docID, c.userID)
		granted := res.Granted
		c.SendMessage_Enqueue(ServerMessage{Type: TypeLock, DocID: docID, UserID: res.CurrentEditorID, Granted: &granted, Lock: &res.Lock})

	case TypeReleaseLock:
		released := c.svc.ReleaseLock(ctx, docID, c.userID)
		if !released {
			c.SendMessage_Enqueue(errorMessage(docID, collab.ErrNotLockHolder))
			return
		}
		l := c.svc.LockStatus(docID)
		c.SendMessage_Enqueue(ServerMessage{Type: TypeLock, DocID: docID, Lock: &l})

	case TypeHandoffLock:
		l, err := c.svc.HandoffLock(ctx, docID, c.userID)
		if err != nil {
			c.SendMessage_Enqueue(errorMessage(docID, err))
			return
		}
		c.SendMessage_Enqueue(ServerMessage{Type: TypeLock, DocID: docID, UserID: l.CurrentEditorID, Lock: &l})

	case TypeLockStatus:
		l := c.svc.LockStatus(docID)
		c.SendMessage_Enqueue(ServerMessage{Type: TypeLock, DocID: docID, UserID: l.CurrentEditorID, Lock: &l})

	case TypeLoadContent:
		doc, err := c.svc.GetCurrentContent(ctx, docID)
		if err != nil {
			log.Printf("load document content error: %v", err)
			c.SendMessage_Enqueue(errorMessage(docID, err))
			return
		}
		c.SendMessage_Enqueue(ServerMessage{Type: TypeContent, DocID: docID, Sequence: doc.LastSequence, Content: doc.Content})

	case TypeOpsSince:
		ops, err := c.svc.OperationsSince(ctx, docID, msg.AfterSequence, msg.Limit)
		if err != nil {
			c.SendMessage_Enqueue(errorMessage(docID, err))
			return
		}
		c.SendMessage_Enqueue(ServerMessage{Type: TypeOps, DocID: docID, Sequence: msg.AfterSequence, Operations: ops})

	case TypeAliveMembers:
		c.SendMessage_Enqueue(ServerMessage{Type: TypeMembers, DocID: docID, Members: c.aliveMembers(ctx, docID)})

	default:
		// 忽略未知类型，或回一条提示
		c.SendMessage_Enqueue(ServerMessage{Type: TypeIgnored, Content: "Unknown message type"})
	}
}

func isDocMessage(t string) bool {
	switch t {
	case TypeOpSubmit, TypeRequestLock, TypeReleaseLock, TypeHandoffLock,
		TypeLockStatus, TypeLoadContent, TypeOpsSince, TypeAliveMembers:
		return true
	}
	return false
}

func (c *Conn) writeLoop() {
	// 持续消费出站队列，直到连接结束
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				log.Printf("write json error (user=%d): %v", c.userID, err)
				c.close()
				// 让阻塞在 ReadJSON 的 readLoop 退出
				_ = c.ws.Close()
				return
			}
		}
	}
}
