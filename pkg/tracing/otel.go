// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "job-matching"

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer
func InitTracer(config OTelConfig) (*sdktrace.TracerProvider, error) {
	ctx := context.Background()

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartDistributeSpan 开始 job 分发 span
func StartDistributeSpan(ctx context.Context, jobID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "matching.distribute",
		trace.WithAttributes(attribute.String("job.id", jobID)),
	)
}

// StartSelectSpan 开始候选 Agent 筛选 span
func StartSelectSpan(ctx context.Context, jobID string, category string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "matching.select_candidates",
		trace.WithAttributes(
			attribute.String("job.id", jobID),
			attribute.String("job.category", category),
		),
	)
}

// StartConnectSpan 开始数据库连接 span
func StartConnectSpan(ctx context.Context, role string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "db.connect",
		trace.WithAttributes(attribute.String("db.role", role)),
	)
}

// EndSpan 记录错误（如有）并结束 span
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
