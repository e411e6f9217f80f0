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
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"job-matching/internal/matching"
	"job-matching/internal/storage/dbconn"
	pkgerrors "job-matching/pkg/errors"
	"job-matching/pkg/log"
	"job-matching/pkg/metrics"
)

// Distributor 分发入口
type Distributor interface {
	Distribute(ctx context.Context, jobID string) (*matching.DistributionOutcome, error)
}

// StatsProvider 分发统计
type StatsProvider interface {
	GetStats(ctx context.Context) (*matching.Stats, error)
}

// ReportBuilder 匹配报告
type ReportBuilder interface {
	BuildReport(ctx context.Context) (*matching.Report, error)
}

// HealthChecker 数据库连接健康
type HealthChecker interface {
	Status() dbconn.Status
	Probe(ctx context.Context) []dbconn.ProbeResult
}

// Handler HTTP 处理器：薄封装，核心逻辑在 internal/matching
type Handler struct {
	distributor   Distributor
	stats         StatsProvider
	reports       ReportBuilder
	distributions matching.DistributionReader
	health        HealthChecker
	logger        *log.Logger
	startedAt     time.Time
}

// NewHandler 创建 Handler；未设置的依赖对应接口返回 503
func NewHandler(distributor Distributor, stats StatsProvider) *Handler {
	return &Handler{
		distributor: distributor,
		stats:       stats,
		logger:      log.Discard(),
		startedAt:   time.Now(),
	}
}

// SetReporter 设置匹配报告生成器
func (h *Handler) SetReporter(r ReportBuilder) { h.reports = r }

// SetDistributionReader 设置分发记录查询
func (h *Handler) SetDistributionReader(r matching.DistributionReader) { h.distributions = r }

// SetHealthChecker 设置数据库健康检查
func (h *Handler) SetHealthChecker(c HealthChecker) { h.health = c }

// SetLogger 设置日志
func (h *Handler) SetLogger(l *log.Logger) {
	if l != nil {
		h.logger = l
	}
}

// statusClientClosedRequest 调用方已断开；响应通常不会被读取
const statusClientClosedRequest = 499

// errorStatus 错误分类 -> HTTP 状态码
func errorStatus(kind string) int {
	switch kind {
	case pkgerrors.KindCanceled:
		return statusClientClosedRequest
	case pkgerrors.KindNotFound:
		return consts.StatusNotFound
	case pkgerrors.KindInvalidArg:
		return consts.StatusBadRequest
	case pkgerrors.KindInvalidState, pkgerrors.KindTransactionConflict:
		return consts.StatusConflict
	case pkgerrors.KindConnectionFailure:
		return consts.StatusServiceUnavailable
	default:
		return consts.StatusInternalServerError
	}
}

// writeError 统一错误响应 {"error": msg, "code": kind}；5xx 不暴露内部细节
func (h *Handler) writeError(ctx *app.RequestContext, err error) {
	kind := pkgerrors.KindOf(err)
	status := errorStatus(kind)
	msg := err.Error()
	switch status {
	case statusClientClosedRequest:
		h.logger.Info("请求已被调用方取消", "path", string(ctx.Path()), "error", err)
	case consts.StatusInternalServerError:
		h.logger.Error("请求处理失败", "path", string(ctx.Path()), "error", err)
		msg = "internal error"
	case consts.StatusServiceUnavailable:
		h.logger.Warn("数据库不可用", "path", string(ctx.Path()), "error", err)
		msg = "database unavailable"
	}
	ctx.JSON(status, map[string]string{
		"error": msg,
		"code":  kind,
	})
}

func unavailable(ctx *app.RequestContext, what string) {
	ctx.JSON(consts.StatusServiceUnavailable, map[string]string{
		"error": what + " not configured",
		"code":  pkgerrors.KindInternal,
	})
}

// HealthCheck 存活检查
// GET /api/health
func (h *Handler) HealthCheck(c context.Context, ctx *app.RequestContext) {
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
	})
}

type distributeRequest struct {
	JobID string `json:"jobId"`
}

// Distribute 分发 Job
// POST /api/matching/distribute {"jobId": "..."}
func (h *Handler) Distribute(c context.Context, ctx *app.RequestContext) {
	if h.distributor == nil {
		unavailable(ctx, "distribution engine")
		return
	}
	var req distributeRequest
	if err := ctx.BindJSON(&req); err != nil {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "invalid request body",
			"code":  pkgerrors.KindInvalidArg,
		})
		return
	}
	jobID := strings.TrimSpace(req.JobID)
	if jobID == "" {
		ctx.JSON(consts.StatusBadRequest, map[string]string{
			"error": "jobId is required",
			"code":  pkgerrors.KindInvalidArg,
		})
		return
	}

	outcome, err := h.distributor.Distribute(c, jobID)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, outcome)
}

// GetStats 分发统计
// GET /api/matching/stats
func (h *Handler) GetStats(c context.Context, ctx *app.RequestContext) {
	if h.stats == nil {
		unavailable(ctx, "stats")
		return
	}
	stats, err := h.stats.GetStats(c)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, stats)
}

// GetReport 所有 OPEN Job 的匹配报告
// GET /api/matching/report
func (h *Handler) GetReport(c context.Context, ctx *app.RequestContext) {
	if h.reports == nil {
		unavailable(ctx, "report")
		return
	}
	report, err := h.reports.BuildReport(c)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, report)
}

// GetDistribution 分发记录详情
// GET /api/matching/distributions/:id
func (h *Handler) GetDistribution(c context.Context, ctx *app.RequestContext) {
	if h.distributions == nil {
		unavailable(ctx, "distribution store")
		return
	}
	id := ctx.Param("id")
	detail, err := h.distributions.GetDistribution(c, id)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	if detail == nil {
		h.writeError(ctx, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "distribution %s", id))
		return
	}
	ctx.JSON(consts.StatusOK, detail)
}

// ListJobDistributions Job 的全部分发记录
// GET /api/jobs/:id/distributions
func (h *Handler) ListJobDistributions(c context.Context, ctx *app.RequestContext) {
	if h.distributions == nil {
		unavailable(ctx, "distribution store")
		return
	}
	jobID := ctx.Param("id")
	records, err := h.distributions.ListDistributionsByJob(c, jobID)
	if err != nil {
		h.writeError(ctx, err)
		return
	}
	ctx.JSON(consts.StatusOK, map[string]interface{}{
		"jobId":         jobID,
		"distributions": records,
	})
}

// DatabaseHealth 实时探测读写连接
// GET /api/health/database
func (h *Handler) DatabaseHealth(c context.Context, ctx *app.RequestContext) {
	if h.health == nil {
		unavailable(ctx, "database manager")
		return
	}
	probes := h.health.Probe(c)
	healthy := len(probes) > 0
	for _, p := range probes {
		healthy = healthy && p.OK
	}
	status := consts.StatusOK
	state := "healthy"
	if !healthy {
		status = consts.StatusServiceUnavailable
		state = "unhealthy"
	}
	ctx.JSON(status, map[string]interface{}{
		"status":      state,
		"timestamp":   time.Now().UTC(),
		"probes":      probes,
		"connections": h.health.Status(),
	})
}

// DatabaseConnections 最近一次记录的连接状态，不访问数据库
// GET /api/health/database/connections
func (h *Handler) DatabaseConnections(c context.Context, ctx *app.RequestContext) {
	if h.health == nil {
		unavailable(ctx, "database manager")
		return
	}
	ctx.JSON(consts.StatusOK, h.health.Status())
}

// Metrics Prometheus 文本格式
// GET /metrics
func (h *Handler) Metrics(c context.Context, ctx *app.RequestContext) {
	ctx.Response.Header.SetContentType("text/plain; version=0.0.4; charset=utf-8")
	if err := metrics.WritePrometheus(ctx); err != nil {
		h.writeError(ctx, pkgerrors.Wrap(err, "write metrics"))
		return
	}
	ctx.SetStatusCode(consts.StatusOK)
}
