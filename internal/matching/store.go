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
	"time"
)

// AgentFilter 读库预筛选条件：活跃且自动接单，并且分类在 Classifications 中或标签与 Tags 有（子串）重叠。
// 预筛选只保证不比打分更严格，最终是否入选由 Score 决定。
type AgentFilter struct {
	Classifications []string
	Tags            []string
}

// FilterFor 按 Job 构造预筛选条件
func FilterFor(job *Job) AgentFilter {
	return AgentFilter{
		Classifications: EligibleClassifications(job.Category),
		Tags:            job.Tags,
	}
}

// Accepts 与 SQL 预筛选语义一致的内存实现
func (f AgentFilter) Accepts(a *Agent) bool {
	if !a.Eligible() {
		return false
	}
	for _, c := range f.Classifications {
		if a.Classification == c {
			return true
		}
	}
	return len(MatchedTags(f.Tags, a.Tags)) > 0
}

// JobReader 读库查询 Job
type JobReader interface {
	// GetJob 不存在时返回 nil, nil
	GetJob(ctx context.Context, jobID string) (*Job, error)
	// ListOpenJobs 全部 OPEN 状态的 Job，按创建时间升序
	ListOpenJobs(ctx context.Context) ([]*Job, error)
}

// AgentReader 读库查询候选 Agent，按 reputation、success rate、完成数降序，id 升序
type AgentReader interface {
	ListEligibleAgents(ctx context.Context, filter AgentFilter) ([]*Agent, error)
}

// UnitOfWork 一次分发事务内的写操作
type UnitOfWork interface {
	InsertDistribution(ctx context.Context, record *DistributionRecord) error
	InsertAssignment(ctx context.Context, assignment *DistributionAgent) error
	// MarkJobDistributed 条件更新 OPEN -> DISTRIBUTED；Job 已不是 OPEN（或不存在）时返回 false
	MarkJobDistributed(ctx context.Context, jobID string) (bool, error)
}

// TxRunner 在写库单个事务中执行 fn；fn 返回错误时整体回滚
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(UnitOfWork) error) error
}

// DistributionAggregates 分发记录聚合值
type DistributionAggregates struct {
	Total         int64
	Successful    int64 // assigned_count > 0
	AssignedTotal int64
	Since         int64 // created_at >= since
}

// StatsReader 读库统计
type StatsReader interface {
	DistributionAggregates(ctx context.Context, since time.Time) (*DistributionAggregates, error)
}

// DistributionReader 分发记录审计查询
type DistributionReader interface {
	// GetDistribution 不存在时返回 nil, nil
	GetDistribution(ctx context.Context, id string) (*DistributionDetail, error)
	// ListDistributionsByJob 按创建时间降序
	ListDistributionsByJob(ctx context.Context, jobID string) ([]*DistributionRecord, error)
}

// Store 全部持久化能力；MemoryStore 与 PgStore 均实现
type Store interface {
	JobReader
	AgentReader
	TxRunner
	StatsReader
	DistributionReader
}
