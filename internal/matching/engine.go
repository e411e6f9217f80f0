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
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "job-matching/pkg/errors"
	"job-matching/pkg/log"
	"job-matching/pkg/metrics"
	"job-matching/pkg/tracing"
)

// DefaultDistributeTimeout 单次分发的默认超时
const DefaultDistributeTimeout = 30 * time.Second

// EngineConfig 分发引擎配置
type EngineConfig struct {
	Limit   int           // 候选上限，<=0 使用 DefaultCandidateLimit
	Timeout time.Duration // 叠加在调用方 ctx 上的超时，<=0 使用 DefaultDistributeTimeout
}

// StatsInvalidator 分发提交后使统计缓存失效
type StatsInvalidator interface {
	Invalidate(ctx context.Context)
}

// Engine 分发引擎：读库取 Job、选择候选，写库单事务落分发记录、关联行与 Job 状态
type Engine struct {
	jobs     JobReader
	selector *Selector
	tx       TxRunner
	config   EngineConfig
	logger   *log.Logger
	stats    StatsInvalidator

	now   func() time.Time
	newID func() string
}

// NewEngine 创建分发引擎
func NewEngine(jobs JobReader, agents AgentReader, tx TxRunner, config EngineConfig, logger *log.Logger) *Engine {
	if config.Limit <= 0 {
		config.Limit = DefaultCandidateLimit
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultDistributeTimeout
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Engine{
		jobs:     jobs,
		selector: NewSelector(agents),
		tx:       tx,
		config:   config,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// SetStatsInvalidator 设置统计缓存失效回调
func (e *Engine) SetStatsInvalidator(s StatsInvalidator) {
	e.stats = s
}

// Distribute 将 OPEN 状态的 Job 分发给排名前 N 的 Agent。
// 错误：Job 不存在 ErrNotFound；非 OPEN ErrInvalidState；并发分发落败 ErrTransactionConflict；
// 连接问题 ErrConnectionFailure。事务失败时不留下任何记录，也不在内部重试。
func (e *Engine) Distribute(ctx context.Context, jobID string) (*DistributionOutcome, error) {
	start := time.Now()
	ctx, span := tracing.StartDistributeSpan(ctx, jobID)
	outcome, err := e.distribute(ctx, jobID)
	tracing.EndSpan(span, err)

	metrics.DistributionDuration.Observe(time.Since(start).Seconds())
	switch {
	case err != nil:
		metrics.DistributionTotal.WithLabelValues(pkgerrors.KindOf(err)).Inc()
	case outcome.AgentsCount == 0:
		metrics.DistributionTotal.WithLabelValues("empty").Inc()
		metrics.DistributionAgents.Observe(0)
	default:
		metrics.DistributionTotal.WithLabelValues("success").Inc()
		metrics.DistributionAgents.Observe(float64(outcome.AgentsCount))
	}
	return outcome, err
}

func (e *Engine) distribute(ctx context.Context, jobID string) (*DistributionOutcome, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, fmt.Errorf("job id is required: %w", pkgerrors.ErrInvalidArg)
	}
	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	e.logger.Info("开始分发 Job", "job_id", jobID)

	job, err := e.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "get job %s", jobID)
	}
	if job == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, pkgerrors.ErrNotFound)
	}
	if job.Status != JobStatusOpen {
		return nil, fmt.Errorf("job %s is %s, not %s: %w", jobID, job.Status, JobStatusOpen, pkgerrors.ErrInvalidState)
	}

	candidates, err := e.selector.SelectCandidates(ctx, job, e.config.Limit)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "select candidates for job %s", jobID)
	}
	e.logger.Debug("候选 Agent 已选出", "job_id", jobID, "candidates", len(candidates))

	record, assignments, err := e.buildDistribution(job, candidates)
	if err != nil {
		return nil, err
	}

	err = e.tx.WithinTx(ctx, func(uow UnitOfWork) error {
		if err := uow.InsertDistribution(ctx, record); err != nil {
			return err
		}
		for _, a := range assignments {
			if err := uow.InsertAssignment(ctx, a); err != nil {
				return err
			}
		}
		ok, err := uow.MarkJobDistributed(ctx, job.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("job %s is no longer %s: %w", job.ID, JobStatusOpen, pkgerrors.ErrTransactionConflict)
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("分发事务失败，已回滚", "job_id", jobID, "error", err)
		return nil, pkgerrors.Wrapf(err, "distribute job %s", jobID)
	}

	if e.stats != nil {
		e.stats.Invalidate(ctx)
	}

	outcome := &DistributionOutcome{
		Success:        true,
		DistributionID: record.ID,
		JobID:          job.ID,
		AgentsCount:    len(candidates),
		Agents:         make([]AgentRef, 0, len(candidates)),
		DistributedAt:  record.CreatedAt,
	}
	for _, c := range candidates {
		outcome.Agents = append(outcome.Agents, AgentRef{ID: c.AgentID, Name: c.AgentName})
	}
	if record.AssignedAgentID != "" {
		outcome.AssignedAgent = &AgentRef{ID: record.AssignedAgentID, Name: record.AssignedAgentName}
	}
	e.logger.Info("Job 分发完成", "job_id", jobID, "distribution_id", record.ID, "agents", len(candidates))
	return outcome, nil
}

// buildDistribution 构造分发记录与关联行；autoAssign 时记录排名第一的 Agent
func (e *Engine) buildDistribution(job *Job, candidates []MatchResult) (*DistributionRecord, []*DistributionAgent, error) {
	tags := job.Tags
	if tags == nil {
		tags = []string{}
	}
	criteria, err := json.Marshal(MatchCriteria{
		Category:   job.Category,
		Tags:       tags,
		SkillLevel: job.SkillLevel,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal match criteria: %w", err)
	}

	now := e.now()
	record := &DistributionRecord{
		ID:            e.newID(),
		JobID:         job.ID,
		JobName:       job.Title,
		MatchCriteria: criteria,
		TotalAgents:   len(candidates),
		AssignedCount: len(candidates),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if job.AutoAssign && len(candidates) > 0 {
		record.AssignedAgentID = candidates[0].AgentID
		record.AssignedAgentName = candidates[0].AgentName
	}

	assignments := make([]*DistributionAgent, 0, len(candidates))
	for _, c := range candidates {
		assignments = append(assignments, &DistributionAgent{
			ID:             e.newID(),
			DistributionID: record.ID,
			AgentID:        c.AgentID,
			WorkStatus:     WorkStatusAssigned,
			AssignedAt:     now,
		})
	}
	return record, assignments, nil
}
