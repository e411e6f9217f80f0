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

// JobMatches 单个 Job 的候选列表
type JobMatches struct {
	JobID    string        `json:"jobId"`
	Title    string        `json:"title"`
	Category string        `json:"category"`
	Tags     []string      `json:"tags"`
	Matches  []MatchResult `json:"matches"`
}

// ReportSummary 匹配报告汇总
type ReportSummary struct {
	TotalJobs            int            `json:"totalJobs"`
	JobsWithMatches      int            `json:"jobsWithMatches"`
	JobsWithoutMatches   int            `json:"jobsWithoutMatches"`
	TotalMatches         int            `json:"totalMatches"`
	AverageMatchesPerJob float64        `json:"averageMatchesPerJob"`
	MatchesByCategory    map[string]int `json:"matchesByCategory"`
}

// Report 所有 OPEN Job 的匹配报告，只读
type Report struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	Jobs        []JobMatches  `json:"jobs"`
	Summary     ReportSummary `json:"summary"`
}

// Reporter 生成匹配报告，不写库
type Reporter struct {
	jobs     JobReader
	selector *Selector
	limit    int
	now      func() time.Time
}

// NewReporter limit<=0 时使用 DefaultCandidateLimit
func NewReporter(jobs JobReader, agents AgentReader, limit int) *Reporter {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}
	return &Reporter{jobs: jobs, selector: NewSelector(agents), limit: limit, now: time.Now}
}

// BuildReport 对每个 OPEN Job 计算前 limit 个候选
func (r *Reporter) BuildReport(ctx context.Context) (*Report, error) {
	jobs, err := r.jobs.ListOpenJobs(ctx)
	if err != nil {
		return nil, err
	}
	report := &Report{
		GeneratedAt: r.now(),
		Jobs:        make([]JobMatches, 0, len(jobs)),
		Summary:     ReportSummary{MatchesByCategory: make(map[string]int)},
	}
	for _, job := range jobs {
		matches, err := r.selector.SelectCandidates(ctx, job, r.limit)
		if err != nil {
			return nil, err
		}
		report.Jobs = append(report.Jobs, JobMatches{
			JobID:    job.ID,
			Title:    job.Title,
			Category: job.Category,
			Tags:     job.Tags,
			Matches:  matches,
		})
		report.Summary.TotalMatches += len(matches)
		report.Summary.MatchesByCategory[job.Category] += len(matches)
		if len(matches) > 0 {
			report.Summary.JobsWithMatches++
		} else {
			report.Summary.JobsWithoutMatches++
		}
	}
	report.Summary.TotalJobs = len(jobs)
	if len(jobs) > 0 {
		report.Summary.AverageMatchesPerJob = round2(float64(report.Summary.TotalMatches) / float64(len(jobs)))
	}
	return report, nil
}
