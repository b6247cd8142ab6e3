package ws

import (
	"sharednote/backend/internal/collab"
	"sharednote/backend/internal/lock"
	"sharednote/backend/internal/ot"
	"sharednote/backend/internal/ot/delta"
)

// 客户端消息类型
const (
	TypeJoin         = "join"
	TypeLeave        = "leave"
	TypeHeartbeat    = "heartbeat"
	TypeOpSubmit     = "op_submit"
	TypeRequestLock  = "request_lock"
	TypeReleaseLock  = "release_lock"
	TypeHandoffLock  = "handoff_lock"
	TypeLockStatus   = "lock_status"
	TypeLoadContent  = "load_content"
	TypeOpsSince     = "ops_since"
	TypeAliveMembers = "show_alive_members"
)

// 服务端消息类型
const (
	TypeWelcome   = "welcome"
	TypeJoined    = "joined"
	TypeOpApplied = "op_applied"
	TypeEvent     = "event"
	TypeLock      = "lock"
	TypeContent   = "content"
	TypeOps       = "ops"
	TypeMembers   = "members"
	TypeError     = "error"
	TypeFeedback  = "feedback"
	TypeIgnored   = "ignored"
)

type ClientMessage struct {
	Type  string `json:"type"`
	DocID string `json:"docId"`
	// 二选一：ops 是编辑器的 delta 脚本，operation 是单个定位操作
	Ops       delta.Delta   `json:"ops,omitempty"`
	Operation *ot.Operation `json:"operation,omitempty"`
	// 客户端生成本次编辑时已应用的最后一个序号
	BaseSequence  *uint64 `json:"baseSequence,omitempty"`
	AfterSequence uint64  `json:"afterSequence,omitempty"`
	Limit         int     `json:"limit,omitempty"`
	// 客户端实例标识。同一用户可有多个 clientId（多端/多标签页）。
	ClientID  string `json:"clientId,omitempty"`
	ClientSeq uint64 `json:"clientSeq,omitempty"`
}

type PresenceMember struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username,omitempty"`
}

type ServerMessage struct {
	Type       string           `json:"type"`
	UserID     uint64           `json:"userId,omitempty"`
	DocID      string           `json:"docId,omitempty"`
	Sequence   uint64           `json:"sequence,omitempty"`
	Members    []PresenceMember `json:"members,omitempty"`
	Content    string           `json:"content,omitempty"`
	Code       string           `json:"code,omitempty"`
	Token      string           `json:"token,omitempty"`
	Granted    *bool            `json:"granted,omitempty"`
	Lock       *lock.EditLock   `json:"lock,omitempty"`
	Operations []ot.Operation   `json:"operations,omitempty"`
	Event      *collab.Event    `json:"event,omitempty"`
}

// op_submit 的回执，只发给提交者；其他协作者通过 OPERATION 事件得知变更
type OpAppliedMessage struct {
	Type       string         `json:"type"` // 固定 "op_applied"
	DocID      string         `json:"docId"`
	Sequence   uint64         `json:"sequence"` // 最后一个落盘操作的序号
	Operations []ot.Operation `json:"operations"`
	Content    string         `json:"content"`
	ClientID   string         `json:"clientId,omitempty"`
	ClientSeq  uint64         `json:"clientSeq,omitempty"`
}

// 出站消息接口
type OutboundMessage interface {
	MessageType() string
}

func (m ServerMessage) MessageType() string    { return m.Type }
func (m OpAppliedMessage) MessageType() string { return m.Type }

func errorMessage(docID string, err error) ServerMessage {
	return ServerMessage{Type: TypeError, DocID: docID, Code: collab.ErrorCode(err), Content: err.Error()}
}
