// Package httpapi assembles the gin engine: access logs, panic recovery,
// CORS, identity, the document REST API and the WebSocket endpoint.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"sharednote/backend/internal/httpapi/handlers"
	"sharednote/backend/internal/ws"
)

type RouterOptions struct {
	Documents *handlers.Documents
	WS        *ws.Manager
	// Auth 写入 userId/username；为空时所有受保护路由返回 401
	Auth         gin.HandlerFunc
	AllowOrigins []string
	// AccessLog 为 false 时不挂 gin.Logger（测试里关闭）
	AccessLog bool
}

func NewRouter(opt RouterOptions) *gin.Engine {
	r := gin.New()
	// 中间件
	if opt.AccessLog {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(cors.New(corsConfig(opt.AllowOrigins)))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	auth := opt.Auth
	if auth == nil {
		auth = func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "no identity provider configured"})
		}
	}

	collab := r.Group("/collab")
	// 关键：挂鉴权中间件（从 Authorization 或 ?token= 提取 token，写入 userId/username）
	collab.Use(auth)
	if opt.WS != nil {
		collab.GET("/ws", opt.WS.WebSocketConnect)
	}
	if opt.Documents != nil {
		opt.Documents.Register(collab)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}
