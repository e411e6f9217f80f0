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

package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"job-matching/internal/api/http"
	"job-matching/internal/api/http/middleware"
	"job-matching/internal/app"
	"job-matching/internal/matching"
	"job-matching/pkg/config"
	"job-matching/pkg/log"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用（装配 Store、Engine、HTTP Router）
type App struct {
	config       *app.Bootstrap
	engine       *matching.Engine
	router       *http.Router
	hertz        *server.Hertz
	otelProvider otelProviderShutdown
}

// NewApp 创建 API 应用（由 cmd/api 调用）；数据库连接由 Start 建立
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	if bootstrap == nil || bootstrap.Config == nil {
		return nil, fmt.Errorf("bootstrap 未初始化")
	}
	cfg := bootstrap.Config
	logger := bootstrap.Logger

	store := matching.NewPgStore(bootstrap.DB)
	engine := matching.NewEngine(store, store, store, matching.EngineConfig{
		Limit:   cfg.Matching.DistributeLimit,
		Timeout: config.ParseDuration(cfg.Matching.DistributeTimeout, matching.DefaultDistributeTimeout),
	}, logger.With("component", "engine"))

	stats := matching.NewStatsService(store, bootstrap.Cache,
		config.ParseDuration(cfg.Matching.StatsTTL, 30*time.Second), logger.With("component", "stats"))
	engine.SetStatsInvalidator(stats)

	handler := http.NewHandler(engine, stats)
	handler.SetReporter(matching.NewReporter(store, store, cfg.Matching.ReportLimit))
	handler.SetDistributionReader(store)
	handler.SetHealthChecker(bootstrap.DB)
	handler.SetLogger(logger.With("component", "http"))

	router := http.NewRouter(handler, middleware.NewMiddleware(logger))
	router.SetRateLimit(cfg.API.RateLimitRPS)

	return &App{
		config: bootstrap,
		engine: engine,
		router: router,
	}, nil
}

// Start 连接读写数据库并启动心跳；连接失败时以降级模式继续，由心跳恢复
func (a *App) Start(ctx context.Context) {
	if err := a.config.DB.Open(ctx); err != nil {
		a.config.Logger.Warn("数据库连接未完全建立，降级运行", "error", err)
	}
	a.config.DB.StartHeartbeat()
}

// Run 启动 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	cfg := a.config.Config
	a.config.Logger.Info("API 服务启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 配置对齐
	var output io.Writer = os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))

	// 可选：启用链路追踪（OpenTelemetry）
	a.hertz = nil
	if tracing := cfg.Monitoring.Tracing; tracing.Enable {
		serviceName := tracing.ServiceName
		if serviceName == "" {
			serviceName = "job-matching-api"
		}
		exportEndpoint := tracing.ExportEndpoint
		if exportEndpoint == "" {
			exportEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if exportEndpoint != "" {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if tracing.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
			tracerOpt, tracerCfg := hertztracing.NewServerTracer()
			a.hertz = a.router.Build(addr, tracerOpt)
			a.hertz.Use(hertztracing.ServerMiddleware(tracerCfg))
			a.config.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
		}
	}
	if a.hertz == nil {
		a.hertz = a.router.Build(addr)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	if a.hertz != nil {
		shutdownErr = a.hertz.Shutdown(ctx)
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	a.config.Close()
	return shutdownErr
}
