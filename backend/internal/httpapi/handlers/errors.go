package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"sharednote/backend/internal/collab"
)

// 错误码 -> HTTP 状态码
var statusByCode = map[string]int{
	"LOCK_DENIED":          http.StatusConflict,
	"EXPIRED_LOCK_REQUEST": http.StatusConflict,
	"NOT_LOCK_HOLDER":      http.StatusConflict,
	"NO_PENDING_REQUEST":   http.StatusConflict,
	"INVALID_OPERATION":    http.StatusBadRequest,
	"STALE_REFERENCE":      http.StatusNotFound,
}

func writeError(c *gin.Context, err error) {
	code := collab.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		log.Printf("request failed method=%s path=%s err=%v", c.Request.Method, c.FullPath(), err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"code": code, "message": "internal error"})
		return
	}
	body := gin.H{"code": code, "message": err.Error()}
	var denied *collab.LockDeniedError
	if errors.As(err, &denied) {
		body["currentEditor"] = denied.CurrentEditorID
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"code": "INVALID_OPERATION", "message": msg})
}
