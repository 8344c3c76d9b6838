package middleware

import (
	"time"

	"github.com/beego/beego/v2/server/web"
	beecontext "github.com/beego/beego/v2/server/web/context"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aihub/ai-gateway/internal/logger"
)

const (
	// HeaderRequestID 请求ID响应头
	HeaderRequestID = "X-Request-ID"

	dataRequestID    = "request_id"
	dataRequestStart = "request_start"
)

// Manager 中间件管理器
type Manager struct {
	logger *zap.Logger
	cors   *CORS
}

// NewManager 创建中间件管理器
func NewManager(allowedOrigins []string) *Manager {
	return &Manager{
		logger: logger.Named("http"),
		cors:   NewCORS(allowedOrigins),
	}
}

// Apply 在路由器上注册全局过滤器
func (m *Manager) Apply(reg *web.ControllerRegister) error {
	if err := reg.InsertFilter("/*", web.BeforeRouter, m.requestID); err != nil {
		return err
	}
	if err := reg.InsertFilter("/*", web.BeforeRouter, m.cors.Filter); err != nil {
		return err
	}
	// 控制器已输出时仍需记录访问日志
	return reg.InsertFilter("/*", web.FinishRouter, m.accessLog, web.WithReturnOnOutput(false))
}

// requestID 透传或生成请求ID
func (m *Manager) requestID(ctx *beecontext.Context) {
	id := ctx.Input.Header(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	ctx.Input.SetData(dataRequestID, id)
	ctx.Input.SetData(dataRequestStart, time.Now())
	ctx.Output.Header(HeaderRequestID, id)
}

// accessLog 请求日志
func (m *Manager) accessLog(ctx *beecontext.Context) {
	status := ctx.ResponseWriter.Status
	if status == 0 {
		status = 200
	}

	fields := []zap.Field{
		zap.String("request_id", RequestID(ctx)),
		zap.String("method", ctx.Input.Method()),
		zap.String("path", ctx.Input.URL()),
		zap.Int("status", status),
		zap.String("remote_addr", ctx.Input.IP()),
	}
	if start, ok := ctx.Input.GetData(dataRequestStart).(time.Time); ok {
		fields = append(fields, zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	}

	switch {
	case status >= 500:
		m.logger.Error("Request completed", fields...)
	case status >= 400:
		m.logger.Warn("Request completed", fields...)
	default:
		m.logger.Info("Request completed", fields...)
	}
}

// RequestID 当前请求的ID
func RequestID(ctx *beecontext.Context) string {
	id, _ := ctx.Input.GetData(dataRequestID).(string)
	return id
}
