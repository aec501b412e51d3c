package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// Outcome 是单个文件在本次运行中的最终结果。
type Outcome string

const (
	OutcomeRetained Outcome = "retained"
	OutcomeMoved    Outcome = "moved"
	OutcomeCopied   Outcome = "copied"
	OutcomeDeleted  Outcome = "deleted"
	OutcomeFailed   Outcome = "failed"
)

// AuditRecord 是一次运行唯一的持久化输出（report.json / duplicates_tree.txt 的来源）。
//
// 约束：每次运行创建一次，运行结束时关闭，关闭后不再修改。
type AuditRecord struct {
	RunID  string   `json:"run_id" yaml:"run_id"`
	Roots  []string `json:"roots" yaml:"roots"`
	Mode   Mode     `json:"mode" yaml:"mode"`
	Dest   string   `json:"destination,omitempty" yaml:"destination,omitempty"`
	DryRun bool     `json:"dry_run" yaml:"dry_run"`

	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	Summary AuditSummary  `json:"summary" yaml:"summary"`
	Groups  []GroupRecord `json:"groups" yaml:"groups"`
	Entries []AuditEntry  `json:"entries" yaml:"entries"`
}

type AuditSummary struct {
	Groups   int `json:"groups" yaml:"groups"`
	Retained int `json:"retained" yaml:"retained"`
	Moved    int `json:"moved" yaml:"moved"`
	Copied   int `json:"copied" yaml:"copied"`
	Deleted  int `json:"deleted" yaml:"deleted"`
	Failed   int `json:"failed" yaml:"failed"`
}

// GroupRecord 记录一个重复组及其保留策略。GroupID 为 0 的条目不属于任何组（例如指纹阶段失败）。
type GroupRecord struct {
	ID       int      `json:"id" yaml:"id"`
	KeyType  KeyType  `json:"key_type" yaml:"key_type"`
	Key      string   `json:"key" yaml:"key"`
	Strategy Strategy `json:"strategy" yaml:"strategy"`
	Members  []string `json:"members" yaml:"members"`
}

// AuditEntry 是 (groupId, path, outcome) 三元组，外加目标路径与原因。
type AuditEntry struct {
	GroupID     int     `json:"group_id" yaml:"group_id"`
	Path        string  `json:"path" yaml:"path"`
	Outcome     Outcome `json:"outcome" yaml:"outcome"`
	Destination string  `json:"destination,omitempty" yaml:"destination,omitempty"`
	Code        string  `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Reason      string  `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) groups 按 ID 稳定排序（entries 保持追加顺序，不重排）
// 3) summary 由 entries 计算得出
func (r *AuditRecord) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Groups, func(i, j int) bool { return r.Groups[i].ID < r.Groups[j].ID })
	if r.Groups == nil {
		r.Groups = []GroupRecord{}
	}
	if r.Entries == nil {
		r.Entries = []AuditEntry{}
	}

	s := AuditSummary{Groups: len(r.Groups)}
	for _, e := range r.Entries {
		switch e.Outcome {
		case OutcomeRetained:
			s.Retained++
		case OutcomeMoved:
			s.Moved++
		case OutcomeCopied:
			s.Copied++
		case OutcomeDeleted:
			s.Deleted++
		case OutcomeFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r AuditRecord) MarshalJSON() ([]byte, error) {
	type Alias AuditRecord
	return json.Marshal(Alias(r))
}
