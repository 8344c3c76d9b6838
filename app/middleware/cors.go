package middleware

import (
	"net/http"
	"strings"

	"github.com/beego/beego/v2/server/web/context"
)

const (
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsHeaders = "Content-Type, Authorization, X-Requested-With, X-Request-ID, Accept, Origin"
)

// CORS 跨域过滤器
type CORS struct {
	allowAll bool
	origins  map[string]struct{}
}

// NewCORS 创建跨域过滤器，列表包含 "*" 时允许任意来源
func NewCORS(allowedOrigins []string) *CORS {
	c := &CORS{origins: make(map[string]struct{}, len(allowedOrigins))}
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			c.allowAll = true
		}
		if o != "" {
			c.origins[o] = struct{}{}
		}
	}
	return c
}

// Allowed 来源是否在允许列表中
func (c *CORS) Allowed(origin string) bool {
	if c.allowAll {
		return true
	}
	_, ok := c.origins[origin]
	return ok
}

// Filter beego 过滤器
func (c *CORS) Filter(ctx *context.Context) {
	origin := ctx.Input.Header("Origin")

	if origin != "" && c.Allowed(origin) {
		ctx.Output.Header("Access-Control-Allow-Origin", origin)
		ctx.Output.Header("Access-Control-Allow-Methods", corsMethods)
		ctx.Output.Header("Access-Control-Allow-Headers", corsHeaders)
		ctx.Output.Header("Access-Control-Expose-Headers", HeaderRequestID)
		ctx.Output.Header("Access-Control-Allow-Credentials", "true")
		ctx.Output.Header("Access-Control-Max-Age", "3600")
		ctx.Output.Header("Vary", "Origin")
	}

	// 处理OPTIONS预检请求
	if ctx.Input.Method() == http.MethodOptions {
		ctx.Output.SetStatus(http.StatusNoContent)
		_ = ctx.Output.Body([]byte(""))
	}
}
