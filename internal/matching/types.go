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

// Package matching 实现 Job 与 Agent 的匹配打分、候选排序以及事务化的任务分发
package matching

import (
	"encoding/json"
	"time"
)

// JobStatus Job 生命周期状态；分发只处理 OPEN -> DISTRIBUTED
type JobStatus string

const (
	JobStatusOpen        JobStatus = "OPEN"
	JobStatusDistributed JobStatus = "DISTRIBUTED"
	JobStatusInProgress  JobStatus = "IN_PROGRESS"
	JobStatusCompleted   JobStatus = "COMPLETED"
	JobStatusCancelled   JobStatus = "CANCELLED"
)

// WorkStatus 单个 Agent 在一次分发中的工作状态
type WorkStatus string

const (
	WorkStatusAssigned  WorkStatus = "ASSIGNED"
	WorkStatusAccepted  WorkStatus = "ACCEPTED"
	WorkStatusRejected  WorkStatus = "REJECTED"
	WorkStatusCompleted WorkStatus = "COMPLETED"
)

// Budget 固定金额（Amount）或区间（Min/Max）
type Budget struct {
	Amount   float64 `json:"amount,omitempty"`
	Min      float64 `json:"min,omitempty"`
	Max      float64 `json:"max,omitempty"`
	Currency string  `json:"currency,omitempty"`
}

// Job 待执行的工作
type Job struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags"`
	SkillLevel  string    `json:"skillLevel,omitempty"`
	Budget      Budget    `json:"budget"`
	Deadline    time.Time `json:"deadline,omitzero"`
	Status      JobStatus `json:"status"`

	AutoAssign             bool `json:"autoAssign"`
	AllowBidding           bool `json:"allowBidding"`
	AllowParallelExecution bool `json:"allowParallelExecution"`
	EscrowEnabled          bool `json:"escrowEnabled"`
	IsPublic               bool `json:"isPublic"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Agent 可接单的执行者；只读
type Agent struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	Classification     string   `json:"classification"`
	Tags               []string `json:"tags"`
	IsActive           bool     `json:"isActive"`
	AutoAcceptJobs     bool     `json:"autoAcceptJobs"`
	Reputation         float64  `json:"reputation"`
	SuccessRate        float64  `json:"successRate"`
	TotalJobsCompleted int      `json:"totalJobsCompleted"`
}

// Eligible 只有活跃且自动接单的 Agent 参与分发
func (a *Agent) Eligible() bool {
	return a.IsActive && a.AutoAcceptJobs
}

// MatchResult 一对 (Job, Agent) 的打分结果，不单独持久化
type MatchResult struct {
	AgentID            string   `json:"agentId"`
	AgentName          string   `json:"agentName"`
	Classification     string   `json:"classification"`
	Tags               []string `json:"tags"`
	Score              int      `json:"score"`
	Reasons            []string `json:"reasons"`
	Reputation         float64  `json:"reputation"`
	SuccessRate        float64  `json:"successRate"`
	TotalJobsCompleted int      `json:"totalJobsCompleted"`
}

// MatchCriteria 分发时的匹配条件快照，写入后不再修改
type MatchCriteria struct {
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	SkillLevel string   `json:"skillLevel"`
}

// DistributionRecord 一次分发尝试的持久化记录。
// MatchCriteria 按写入时的字节原样保存与读回。
type DistributionRecord struct {
	ID                string          `json:"id"`
	JobID             string          `json:"jobId"`
	JobName           string          `json:"jobName"`
	MatchCriteria     json.RawMessage `json:"matchCriteria"`
	TotalAgents       int             `json:"totalAgents"`
	AssignedCount     int             `json:"assignedCount"`
	ResponseCount     int             `json:"responseCount"`
	AssignedAgentID   string          `json:"assignedAgentId,omitempty"`
	AssignedAgentName string          `json:"assignedAgentName,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// DistributionAgent 分发记录与 Agent 的关联行
type DistributionAgent struct {
	ID             string     `json:"id"`
	DistributionID string     `json:"distributionId"`
	AgentID        string     `json:"agentId"`
	WorkStatus     WorkStatus `json:"workStatus"`
	AssignedAt     time.Time  `json:"assignedAt"`
}

// DistributionDetail 分发记录及其全部关联行
type DistributionDetail struct {
	DistributionRecord
	Agents []DistributionAgent `json:"agents"`
}

// AgentRef Agent 的 id 与名称
type AgentRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DistributionOutcome Distribute 成功提交后的返回值
type DistributionOutcome struct {
	Success        bool       `json:"success"`
	DistributionID string     `json:"distributionId"`
	JobID          string     `json:"jobId"`
	AgentsCount    int        `json:"agentsCount"`
	Agents         []AgentRef `json:"agents"`
	AssignedAgent  *AgentRef  `json:"assignedAgent,omitempty"`
	DistributedAt  time.Time  `json:"distributedAt"`
}
