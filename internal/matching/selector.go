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
	"sort"

	"job-matching/pkg/tracing"
)

// DefaultCandidateLimit 分发与报告默认候选上限
const DefaultCandidateLimit = 5

// Selector 从读库取预筛选后的 Agent，打分、排序并截断
type Selector struct {
	agents AgentReader
}

// NewSelector 创建 Selector
func NewSelector(agents AgentReader) *Selector {
	return &Selector{agents: agents}
}

// SelectCandidates 返回 job 的前 limit 个候选（limit<=0 时取 DefaultCandidateLimit）；无候选时返回空切片
func (s *Selector) SelectCandidates(ctx context.Context, job *Job, limit int) ([]MatchResult, error) {
	ctx, span := tracing.StartSelectSpan(ctx, job.ID, job.Category)
	agents, err := s.agents.ListEligibleAgents(ctx, FilterFor(job))
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	return Rank(job, agents, limit), nil
}

// Rank 对 agents 打分，去掉 0 分与不可用的 Agent，按
// score 降序、reputation 降序、success rate 降序、完成数降序、id 升序排序后截断到 limit（<=0 不截断）
func Rank(job *Job, agents []*Agent, limit int) []MatchResult {
	results := make([]MatchResult, 0, len(agents))
	for _, a := range agents {
		if !a.Eligible() {
			continue
		}
		score, reasons := Score(job.Category, job.Tags, a.Classification, a.Tags)
		if score <= 0 {
			continue
		}
		results = append(results, MatchResult{
			AgentID:            a.ID,
			AgentName:          a.Name,
			Classification:     a.Classification,
			Tags:               a.Tags,
			Score:              score,
			Reasons:            reasons,
			Reputation:         a.Reputation,
			SuccessRate:        a.SuccessRate,
			TotalJobsCompleted: a.TotalJobsCompleted,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return rankBefore(&results[i], &results[j])
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func rankBefore(a, b *MatchResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Reputation != b.Reputation {
		return a.Reputation > b.Reputation
	}
	if a.SuccessRate != b.SuccessRate {
		return a.SuccessRate > b.SuccessRate
	}
	if a.TotalJobsCompleted != b.TotalJobsCompleted {
		return a.TotalJobsCompleted > b.TotalJobsCompleted
	}
	return a.AgentID < b.AgentID
}

// agentOrderBefore 读库返回顺序（不含分数）
func agentOrderBefore(a, b *Agent) bool {
	if a.Reputation != b.Reputation {
		return a.Reputation > b.Reputation
	}
	if a.SuccessRate != b.SuccessRate {
		return a.SuccessRate > b.SuccessRate
	}
	if a.TotalJobsCompleted != b.TotalJobsCompleted {
		return a.TotalJobsCompleted > b.TotalJobsCompleted
	}
	return a.ID < b.ID
}
