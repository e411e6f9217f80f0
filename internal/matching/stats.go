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

package matching

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"job-matching/internal/storage/cache"
	"job-matching/pkg/log"
)

const statsCacheKey = "stats:distributions"

// Stats 分发统计
type Stats struct {
	TotalDistributions       int64   `json:"totalDistributions"`
	SuccessfulDistributions  int64   `json:"successfulDistributions"`
	FailedDistributions      int64   `json:"failedDistributions"`
	AverageAgentsPerJob      float64 `json:"averageAgentsPerJob"`
	Last24HoursDistributions int64   `json:"last24HoursDistributions"`
	SuccessRate              float64 `json:"successRate"`
}

// StatsService 基于分发记录计算统计；结果按 ttl 缓存，缓存故障只记日志
type StatsService struct {
	reader StatsReader
	cache  cache.Store
	ttl    time.Duration
	logger *log.Logger
	now    func() time.Time

	// 每次 Invalidate 递增；读取聚合期间若发生变化，本次结果不留在缓存中
	generation atomic.Uint64
}

// NewStatsService 创建统计服务；store 为 nil 或 ttl<=0 时不缓存
func NewStatsService(reader StatsReader, store cache.Store, ttl time.Duration, logger *log.Logger) *StatsService {
	if logger == nil {
		logger = log.Discard()
	}
	return &StatsService{reader: reader, cache: store, ttl: ttl, logger: logger, now: time.Now}
}

func (s *StatsService) cacheEnabled() bool {
	return s.cache != nil && s.ttl > 0
}

// GetStats 返回分发统计
func (s *StatsService) GetStats(ctx context.Context) (*Stats, error) {
	if s.cacheEnabled() {
		var cached Stats
		err := s.cache.Get(ctx, statsCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("读取统计缓存失败", "error", err)
		}
	}

	gen := s.generation.Load()
	agg, err := s.reader.DistributionAggregates(ctx, s.now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	stats := computeStats(agg)

	if s.cacheEnabled() && s.generation.Load() == gen {
		if err := s.cache.Set(ctx, statsCacheKey, stats, s.ttl); err != nil {
			s.logger.Warn("写入统计缓存失败", "error", err)
		}
		// Set 与并发的 Invalidate 交错时撤销本次写入
		if s.generation.Load() != gen {
			s.deleteCached(ctx)
		}
	}
	return stats, nil
}

// Invalidate 删除统计缓存；进行中的 GetStats 不会再写回旧结果
func (s *StatsService) Invalidate(ctx context.Context) {
	s.generation.Add(1)
	if !s.cacheEnabled() {
		return
	}
	s.deleteCached(ctx)
}

func (s *StatsService) deleteCached(ctx context.Context) {
	if err := s.cache.Delete(ctx, statsCacheKey); err != nil {
		s.logger.Warn("删除统计缓存失败", "error", err)
	}
}

func computeStats(agg *DistributionAggregates) *Stats {
	stats := &Stats{
		TotalDistributions:       agg.Total,
		SuccessfulDistributions:  agg.Successful,
		FailedDistributions:      agg.Total - agg.Successful,
		Last24HoursDistributions: agg.Since,
	}
	if agg.Total > 0 {
		stats.AverageAgentsPerJob = round2(float64(agg.AssignedTotal) / float64(agg.Total))
		stats.SuccessRate = round2(float64(agg.Successful) / float64(agg.Total) * 100)
	}
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
