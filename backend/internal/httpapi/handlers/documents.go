package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sharednote/backend/internal/cache"
	"sharednote/backend/internal/collab"
	"sharednote/backend/internal/ot"
	"sharednote/backend/internal/ot/delta"
)

type Documents struct {
	svc *collab.Service
	// 可选：Redis 在线状态，members 接口优先读它
	presence cache.PresenceCache
}

func NewDocuments(svc *collab.Service, presence cache.PresenceCache) *Documents {
	return &Documents{svc: svc, presence: presence}
}

// Register 挂载文档相关路由，调用方负责在 group 上挂鉴权中间件
func (h *Documents) Register(g *gin.RouterGroup) {
	d := g.Group("/documents/:docId")
	d.GET("", h.GetContent)
	d.POST("/operations", h.Submit)
	d.GET("/operations", h.OperationsSince)
	d.GET("/operations/:seq", h.GetOperation)
	d.GET("/lock", h.LockStatus)
	d.POST("/lock", h.RequestLock)
	d.DELETE("/lock", h.ReleaseLock)
	d.POST("/lock/handoff", h.HandoffLock)
	d.POST("/presence", h.Heartbeat)
	d.DELETE("/presence", h.Disconnect)
	d.GET("/members", h.Members)
}

// SubmitBody 三选一：operation 单个操作，operations 顺序批量，ops 编辑器 delta
type SubmitBody struct {
	Operation    *ot.Operation  `json:"operation"`
	Operations   []ot.Operation `json:"operations"`
	Ops          delta.Delta    `json:"ops"`
	BaseSequence *uint64        `json:"baseSequence"`
}

// 从gin.Context获取用户信息；gin.Context对每个请求天然隔离
func userID(c *gin.Context) (uint64, bool) {
	id := c.GetUint64("userId")
	if id == 0 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "user context missing"})
		return 0, false
	}
	return id, true
}

func (h *Documents) Submit(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	docID := c.Param("docId")
	var body SubmitBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}

	if body.Operation != nil {
		res, err := h.svc.SubmitOperation(c.Request.Context(), collab.SubmitRequest{
			DocumentID: docID, UserID: uid, Operation: *body.Operation, BaseSequence: body.BaseSequence,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"sequenceNumber": res.Operation.SequenceNumber,
			"operationId":    res.Operation.ID,
			"updatedContent": res.Content,
			"operation":      res.Operation,
		})
		return
	}

	ops := body.Operations
	if len(ops) == 0 && len(body.Ops) > 0 {
		var err error
		if ops, err = body.Ops.ToOperations(); err != nil {
			writeError(c, err)
			return
		}
	}
	res, err := h.svc.SubmitOperations(c.Request.Context(), collab.BatchRequest{
		DocumentID: docID, UserID: uid, Operations: ops, BaseSequence: body.BaseSequence,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	var last uint64
	if n := len(res.Operations); n > 0 {
		last = res.Operations[n-1].SequenceNumber
	}
	c.JSON(http.StatusOK, gin.H{
		"sequenceNumber": last,
		"updatedContent": res.Content,
		"operations":     res.Operations,
	})
}

func (h *Documents) GetContent(c *gin.Context) {
	doc, err := h.svc.GetCurrentContent(c.Request.Context(), c.Param("docId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Documents) OperationsSince(c *gin.Context) {
	since, err := strconv.ParseUint(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		badRequest(c, "since must be a sequence number")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		badRequest(c, "limit must be an integer")
		return
	}
	ops, err := h.svc.OperationsSince(c.Request.Context(), c.Param("docId"), since, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	if ops == nil {
		ops = []ot.Operation{}
	}
	c.JSON(http.StatusOK, gin.H{"operations": ops})
}

func (h *Documents) GetOperation(c *gin.Context) {
	seq, err := strconv.ParseUint(c.Param("seq"), 10, 64)
	if err != nil {
		badRequest(c, "seq must be a sequence number")
		return
	}
	op, err := h.svc.GetOperation(c.Request.Context(), c.Param("docId"), seq)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, op)
}

func (h *Documents) LockStatus(c *gin.Context) {
	l := h.svc.LockStatus(c.Param("docId"))
	body := gin.H{"documentId": l.DocumentID, "isLocked": l.IsLocked()}
	if l.IsLocked() {
		body["currentEditor"] = l.CurrentEditorID
		body["lockAcquiredAt"] = l.LockAcquiredAt
		body["lastActivityAt"] = l.LastActivityAt
	}
	if l.HasRequest() {
		body["requestedBy"] = l.RequestedByUserID
		body["requestExpiresAt"] = l.RequestExpiresAt
	}
	c.JSON(http.StatusOK, body)
}

func (h *Documents) RequestLock(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	res := h.svc.RequestLock(c.Request.Context(), c.Param("docId"), uid)
	body := gin.H{"granted": res.Granted}
	if !res.Granted {
		body["currentEditor"] = res.CurrentEditorID
	}
	c.JSON(http.StatusOK, body)
}

func (h *Documents) ReleaseLock(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	released := h.svc.ReleaseLock(c.Request.Context(), c.Param("docId"), uid)
	c.JSON(http.StatusOK, gin.H{"released": released})
}

func (h *Documents) HandoffLock(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	l, err := h.svc.HandoffLock(c.Request.Context(), c.Param("docId"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

func (h *Documents) Heartbeat(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	p := h.svc.Heartbeat(c.Request.Context(), c.Param("docId"), uid, c.GetString("username"))
	c.JSON(http.StatusOK, p)
}

func (h *Documents) Disconnect(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	disconnected := h.svc.Disconnect(c.Request.Context(), c.Param("docId"), uid)
	c.JSON(http.StatusOK, gin.H{"disconnected": disconnected})
}

func (h *Documents) Members(c *gin.Context) {
	docID := c.Param("docId")
	if h.presence != nil {
		members, err := h.presence.GetAliveMembersWithNames(c.Request.Context(), docID)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"members": members, "source": "redis"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"members": h.svc.Members(docID), "source": "local"})
}
