// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package http

import (
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"job-matching/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler      *Handler
	middleware   *middleware.Middleware
	rateLimitRPS int
}

// NewRouter 创建路由器
func NewRouter(handler *Handler, middleware *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: middleware}
}

// SetRateLimit 分发接口每秒请求上限，<=0 不限流
func (r *Router) SetRateLimit(rps int) {
	r.rateLimitRPS = rps
}

// Build 创建 Hertz 实例并注册全部路由；opts 追加在监听地址之后（如链路追踪）
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	h := server.Default(append([]config.Option{server.WithHostPorts(addr)}, opts...)...)
	h.Use(r.middleware.AccessLog())

	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)
	api.GET("/health/database", r.handler.DatabaseHealth)
	api.GET("/health/database/connections", r.handler.DatabaseConnections)

	matching := api.Group("/matching")
	matching.POST("/distribute", r.middleware.RateLimit(r.rateLimitRPS), r.handler.Distribute)
	matching.GET("/stats", r.handler.GetStats)
	matching.GET("/report", r.handler.GetReport)
	matching.GET("/distributions/:id", r.handler.GetDistribution)

	api.GET("/jobs/:id/distributions", r.handler.ListJobDistributions)
	return h
}
