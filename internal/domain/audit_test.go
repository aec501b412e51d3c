package domain

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"
)

func TestAuditRecord_Finalize_SortAndSummaryAndUTC(t *testing.T) {
	r := AuditRecord{
		Roots:      []string{"/abs/path"},
		Mode:       ModeMove,
		StartedAt:  time.Date(2026, 2, 9, 10, 0, 0, 0, time.FixedZone("X", 8*3600)),
		FinishedAt: time.Date(2026, 2, 9, 10, 0, 1, 0, time.FixedZone("X", 8*3600)),
		Groups: []GroupRecord{
			{ID: 2, KeyType: KeyApprox},
			{ID: 1, KeyType: KeyExact},
		},
		Entries: []AuditEntry{
			{GroupID: 1, Path: "/a", Outcome: OutcomeRetained},
			{GroupID: 1, Path: "/b", Outcome: OutcomeMoved, Destination: "/dup/b"},
			{GroupID: 2, Path: "/c", Outcome: OutcomeDeleted},
			{GroupID: 0, Path: "/d", Outcome: OutcomeFailed, Code: ErrCodeIO},
		},
	}

	r.Finalize()

	if r.Groups[0].ID != 1 || r.Groups[1].ID != 2 {
		t.Fatalf("groups 排序不符合契约：%+v", r.Groups)
	}
	// entries 是追加顺序，Finalize 不得重排。
	if r.Entries[0].Path != "/a" || r.Entries[3].Path != "/d" {
		t.Fatalf("entries 顺序被改变：%+v", r.Entries)
	}
	want := AuditSummary{Groups: 2, Retained: 1, Moved: 1, Deleted: 1, Failed: 1}
	if r.Summary != want {
		t.Fatalf("summary 统计不正确：%+v", r.Summary)
	}

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte("\"started_at\":\"2026-02-09T02:00:00Z\"")) {
		t.Fatalf("started_at 不是 UTC RFC3339：%s", string(b))
	}
}

func TestAuditRecord_Finalize_EmptySlicesNotNull(t *testing.T) {
	var r AuditRecord
	r.Finalize()

	b, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("json.Marshal 失败：%v", err)
	}
	if !bytes.Contains(b, []byte(`"groups":[]`)) || !bytes.Contains(b, []byte(`"entries":[]`)) {
		t.Fatalf("空集合应输出 []：%s", string(b))
	}
}

func TestNewRetentionDecision_RejectsEmptyAndForeign(t *testing.T) {
	g := DuplicateGroup{ID: 7, KeyType: KeyExact, Members: []FileEntry{{Path: "/a"}, {Path: "/b"}}}

	if _, err := NewRetentionDecision(g, StrategyOldest, nil); Code(err) != ErrCodePolicyViolation {
		t.Fatalf("空保留集合应为 policy_violation，实际：%v", err)
	}
	if _, err := NewRetentionDecision(g, StrategyManual, []string{"/x"}); Code(err) != ErrCodePolicyViolation {
		t.Fatalf("非成员路径应为 policy_violation，实际：%v", err)
	}

	d, err := NewRetentionDecision(g, StrategyOldest, []string{"/a"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(d.Retained) != 1 || len(d.Act) != 1 || d.Act[0].Path != "/b" {
		t.Fatalf("划分不正确：%+v", d)
	}
}

func TestSortMembers_CreatedThenPath(t *testing.T) {
	day := func(n int) time.Time { return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC) }
	ms := []FileEntry{
		{Path: "/z", CreatedAt: day(1)},
		{Path: "/b", CreatedAt: day(2)},
		{Path: "/a", CreatedAt: day(1)},
	}
	SortMembers(ms)
	if ms[0].Path != "/a" || ms[1].Path != "/z" || ms[2].Path != "/b" {
		t.Fatalf("排序不正确：%v", []string{ms[0].Path, ms[1].Path, ms[2].Path})
	}
}
