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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agentIDs(results []MatchResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.AgentID)
	}
	return ids
}

func activeAgent(id, classification string, tags ...string) *Agent {
	return &Agent{
		ID:             id,
		Name:           "Agent " + id,
		Classification: classification,
		Tags:           tags,
		IsActive:       true,
		AutoAcceptJobs: true,
	}
}

func TestRank_TieBreakChain(t *testing.T) {
	job := &Job{ID: "job-1", Category: "data-analysis", Tags: []string{"python"}}

	best := activeAgent("agent-z", "data-analysis", "python") // 55 分，声誉最低
	best.Reputation = 1

	byReputation := activeAgent("agent-y", "programming-assistant", "python")
	byReputation.Reputation, byReputation.SuccessRate, byReputation.TotalJobsCompleted = 4.9, 0.1, 1

	bySuccessRate := activeAgent("agent-x", "programming-assistant", "python")
	bySuccessRate.Reputation, bySuccessRate.SuccessRate, bySuccessRate.TotalJobsCompleted = 4.5, 0.95, 1

	byJobs := activeAgent("agent-w", "programming-assistant", "python")
	byJobs.Reputation, byJobs.SuccessRate, byJobs.TotalJobsCompleted = 4.5, 0.90, 80

	byIDLater := activeAgent("agent-v", "programming-assistant", "python")
	byIDLater.Reputation, byIDLater.SuccessRate, byIDLater.TotalJobsCompleted = 4.5, 0.90, 20

	byIDFirst := activeAgent("agent-u", "programming-assistant", "python")
	byIDFirst.Reputation, byIDFirst.SuccessRate, byIDFirst.TotalJobsCompleted = 4.5, 0.90, 20

	agents := []*Agent{byIDLater, byJobs, bySuccessRate, byIDFirst, best, byReputation}
	results := Rank(job, agents, 0)
	assert.Equal(t, []string{"agent-z", "agent-y", "agent-x", "agent-w", "agent-u", "agent-v"}, agentIDs(results))
	assert.Equal(t, 55, results[0].Score)
	assert.Equal(t, 35, results[1].Score)
}

func TestRank_ExcludesZeroScoreAndIneligible(t *testing.T) {
	job := &Job{ID: "job-1", Category: "web-development", Tags: []string{"HTML"}}

	inactive := activeAgent("inactive", "web-development", "HTML")
	inactive.IsActive = false
	manual := activeAgent("manual", "web-development", "HTML")
	manual.AutoAcceptJobs = false
	unrelated := activeAgent("unrelated", "translation", "french")
	ok := activeAgent("ok", "web-development")

	results := Rank(job, []*Agent{inactive, manual, unrelated, ok}, 5)
	assert.Equal(t, []string{"ok"}, agentIDs(results))
}

func TestRank_TruncatesToLimit(t *testing.T) {
	job := &Job{ID: "job-1", Category: "web-development"}
	var agents []*Agent
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5", "a6", "a7"} {
		agents = append(agents, activeAgent(id, "general-assistant"))
	}
	assert.Len(t, Rank(job, agents, 5), 5)
	assert.Len(t, Rank(job, agents, 2), 2)
	assert.Len(t, Rank(job, agents, 0), 7)
}

func TestAgentFilter_NotTighterThanScore(t *testing.T) {
	jobs := []*Job{
		{Category: "web-development", Tags: []string{"HTML", "CSS"}},
		{Category: "content-creation", Tags: []string{"AI", "writing"}},
		{Category: "translation"},
	}
	agents := []*Agent{
		activeAgent("a1", "programming-assistant"),
		activeAgent("a2", "general-assistant"),
		activeAgent("a3", "writer", "copywriting"),
		activeAgent("a4", "designer", "css3"),
		activeAgent("a5", "designer", "figma"),
		activeAgent("a6", "translation"),
	}
	for _, job := range jobs {
		filter := FilterFor(job)
		for _, a := range agents {
			score, _ := Score(job.Category, job.Tags, a.Classification, a.Tags)
			if score > 0 {
				assert.True(t, filter.Accepts(a), "job %s agent %s scored %d but was filtered", job.Category, a.ID, score)
			}
		}
	}
}

func TestSelectCandidates_EmptyWhenNoAgentScores(t *testing.T) {
	store := NewMemoryStore()
	store.PutAgent(activeAgent("a1", "translation", "french"))
	sel := NewSelector(store)

	results, err := sel.SelectCandidates(context.Background(), &Job{ID: "j", Category: "data-analysis", Tags: []string{"sql"}}, 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestSelectCandidates_DefaultLimit(t *testing.T) {
	store := NewMemoryStore()
	for _, id := range []string{"a1", "a2", "a3", "a4", "a5", "a6"} {
		store.PutAgent(activeAgent(id, "general-assistant"))
	}
	results, err := NewSelector(store).SelectCandidates(context.Background(), &Job{ID: "j", Category: "x"}, 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultCandidateLimit)
}
