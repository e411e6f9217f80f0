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
	"fmt"
	"strings"
)

// 打分权重
const (
	ExactCategoryPoints   = 40
	PartialCategoryPoints = 20
	TagMatchPoints        = 15
	MaxTagPoints          = 50
	GeneralistBonusPoints = 10
	MaxScore              = ExactCategoryPoints + MaxTagPoints + GeneralistBonusPoints
)

// 保留的 Agent 分类
const (
	ClassificationGeneralAssistant     = "general-assistant"
	ClassificationProgrammingAssistant = "programming-assistant"
)

// categoryClassifications Job 分类 -> 可部分匹配的 Agent 分类
var categoryClassifications = map[string][]string{
	"web-development":    {ClassificationProgrammingAssistant, ClassificationGeneralAssistant},
	"data-analysis":      {ClassificationProgrammingAssistant, ClassificationGeneralAssistant},
	"mobile-development": {ClassificationProgrammingAssistant, ClassificationGeneralAssistant},
}

// Score 计算 Job 与 Agent 的匹配分（0..MaxScore）与原因。
// 原因顺序固定为：分类、标签、通用助手加分。0 分表示不匹配，调用方应排除。
func Score(jobCategory string, jobTags []string, agentClassification string, agentTags []string) (int, []string) {
	score := 0
	reasons := make([]string, 0, 3)

	if jobCategory != "" && jobCategory == agentClassification {
		score += ExactCategoryPoints
		reasons = append(reasons, "exact category match")
	} else if partialCategoryMatch(jobCategory, agentClassification) {
		score += PartialCategoryPoints
		reasons = append(reasons, fmt.Sprintf("partial category match: %s → %s", jobCategory, agentClassification))
	}

	if matched := MatchedTags(jobTags, agentTags); len(matched) > 0 {
		score += min(MaxTagPoints, len(matched)*TagMatchPoints)
		reasons = append(reasons, fmt.Sprintf("tag match (%d): %s", len(matched), strings.Join(matched, ", ")))
	}

	if agentClassification == ClassificationGeneralAssistant {
		score += GeneralistBonusPoints
		reasons = append(reasons, "generalist bonus")
	}
	return score, reasons
}

func partialCategoryMatch(category, classification string) bool {
	for _, c := range categoryClassifications[category] {
		if c == classification {
			return true
		}
	}
	return false
}

// MatchedTags 返回至少与一个 Agent 标签匹配的 Job 标签（保持 Job 标签顺序，每个只计一次）。
// 两个标签忽略大小写相等或互为子串即视为匹配；空标签不参与匹配。
func MatchedTags(jobTags, agentTags []string) []string {
	var matched []string
	for _, jt := range jobTags {
		j := strings.ToLower(strings.TrimSpace(jt))
		if j == "" {
			continue
		}
		for _, at := range agentTags {
			a := strings.ToLower(strings.TrimSpace(at))
			if a == "" {
				continue
			}
			if strings.Contains(a, j) || strings.Contains(j, a) {
				matched = append(matched, jt)
				break
			}
		}
	}
	return matched
}

// EligibleClassifications 分类预筛选集合：Job 分类本身、映射表中的分类、通用助手。
// 凡能得到非 0 分的 Agent 要么分类在此集合内，要么有标签重叠。
func EligibleClassifications(category string) []string {
	out := make([]string, 0, 4)
	seen := make(map[string]bool, 4)
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	add(category)
	for _, c := range categoryClassifications[category] {
		add(c)
	}
	add(ClassificationGeneralAssistant)
	return out
}
