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

// warmup 在 serverless 冷启动时唤醒读写数据库：按重试预算连接、探测并输出状态，不健康时退出码为 1
package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"job-matching/internal/app"
	"job-matching/internal/storage/dbconn"
	"job-matching/pkg/config"
	"job-matching/pkg/tracing"
)

func main() {
	os.Exit(run())
}

// run 返回退出码；所有 defer（关闭连接池、刷新 span）在返回前执行
func run() int {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		log.Printf("加载配置失败: %v", err)
		return 1
	}

	if t := cfg.Monitoring.Tracing; t.Enable && t.ExportEndpoint != "" {
		tp, err := tracing.InitTracer(tracing.OTelConfig{
			ServiceName:    "job-matching-warmup",
			ExportEndpoint: t.ExportEndpoint,
			Insecure:       t.Insecure,
		})
		if err != nil {
			log.Printf("初始化 tracer 失败: %v", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = tp.Shutdown(ctx)
			}()
		}
	}

	bootstrap, err := app.NewBootstrap(cfg)
	if err != nil {
		log.Printf("初始化失败: %v", err)
		return 1
	}
	defer bootstrap.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	return warmup(ctx, bootstrap.DB, json.NewEncoder(os.Stdout))
}

type warmupReport struct {
	Status  dbconn.Status        `json:"status"`
	Probes  []dbconn.ProbeResult `json:"probes"`
	Healthy bool                 `json:"healthy"`
	Error   string               `json:"error,omitempty"`
}

func warmup(ctx context.Context, manager *dbconn.Manager, enc *json.Encoder) int {
	report := warmupReport{}
	if err := manager.Open(ctx); err != nil {
		report.Error = err.Error()
	}
	report.Probes = manager.Probe(ctx)
	report.Status = manager.Status()
	report.Healthy = report.Status.OverallHealthy
	for _, p := range report.Probes {
		report.Healthy = report.Healthy && p.OK
	}

	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
	if !report.Healthy {
		return 1
	}
	return 0
}
