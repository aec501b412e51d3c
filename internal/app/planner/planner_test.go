package planner

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/John-Robertt/dupfind/internal/domain"
	"github.com/John-Robertt/dupfind/internal/infra/fsx"
)

func write(t *testing.T, fsys afero.Fs, path, content string) domain.FileEntry {
	t.Helper()
	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
	return domain.FileEntry{Path: path, Size: int64(len(content)), CreatedAt: time.Unix(int64(len(path)), 0)}
}

func decision(t *testing.T, id int, keep string, members ...domain.FileEntry) domain.RetentionDecision {
	t.Helper()
	d, err := domain.NewRetentionDecision(domain.DuplicateGroup{ID: id, KeyType: domain.KeyExact, Members: members}, domain.StrategyOldest, []string{keep})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	return d
}

func TestReadDestState(t *testing.T) {
	fsys := afero.NewMemMapFs()

	st, err := ReadDestState(fsys, "/dup")
	if err != nil {
		t.Fatalf("目录不存在不应报错：%v", err)
	}
	if len(st.ExistingNames) != 0 || st.Dir != "/dup" {
		t.Fatalf("期望空状态：%+v", st)
	}

	write(t, fsys, "/dup/a.jpg", "x")
	st, err = ReadDestState(fsys, "/dup")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !st.Has("a.jpg") {
		t.Fatalf("期望已有 a.jpg：%+v", st)
	}

	write(t, fsys, "/file", "x")
	if _, err := ReadDestState(fsys, "/file"); !fsx.IsPathTypeConflict(err) {
		t.Fatalf("期望 PathTypeConflict，实际：%v", err)
	}
}

func TestPlanGroup_MoveToDestination(t *testing.T) {
	fsys := afero.NewMemMapFs()
	a := write(t, fsys, "/r/A", "same")
	b := write(t, fsys, "/r/B", "same")

	st, _ := ReadDestState(fsys, "/r/dup")
	gp := New(fsys, domain.ModeMove, st, 0).PlanGroup(decision(t, 1, "/r/A", a, b))

	if len(gp.Actions) != 2 {
		t.Fatalf("期望 2 条动作，实际 %d", len(gp.Actions))
	}
	if gp.Actions[0].Kind != domain.ActionRetain {
		t.Fatalf("A 应保留：%+v", gp.Actions[0])
	}
	if gp.Actions[1].Kind != domain.ActionMove || gp.Actions[1].Dst != filepath.Join("/r/dup", "B") {
		t.Fatalf("B 应移动到 dup/B：%+v", gp.Actions[1])
	}
}

func TestPlanGroup_IdenticalAtDestinationIsRetained(t *testing.T) {
	fsys := afero.NewMemMapFs()
	a := write(t, fsys, "/r/A", "same")
	b := write(t, fsys, "/r/x/B", "same")
	write(t, fsys, "/dup/B", "same")

	st, _ := ReadDestState(fsys, "/dup")
	gp := New(fsys, domain.ModeMove, st, 0).PlanGroup(decision(t, 1, "/r/A", a, b))

	act := gp.Actions[1]
	if act.Kind != domain.ActionRetain || act.Note == "" {
		t.Fatalf("目标已有相同内容时应 retain：%+v", act)
	}
}

func TestPlanGroup_DifferentAtDestinationGetsSuffix(t *testing.T) {
	fsys := afero.NewMemMapFs()
	a := write(t, fsys, "/r/A.jpg", "same")
	b := write(t, fsys, "/r/x/B.jpg", "same")
	write(t, fsys, "/dup/B.jpg", "other")
	write(t, fsys, "/dup/B (1).jpg", "other")

	st, _ := ReadDestState(fsys, "/dup")
	gp := New(fsys, domain.ModeCopy, st, 0).PlanGroup(decision(t, 1, "/r/A.jpg", a, b))

	act := gp.Actions[1]
	want := filepath.Join("/dup", "B (2).jpg")
	if act.Kind != domain.ActionCopy || act.Dst != want {
		t.Fatalf("期望 copy 到 %q，实际：%+v", want, act)
	}
}

func TestPlanGroup_SameNameWithinRunComparesPendingSource(t *testing.T) {
	fsys := afero.NewMemMapFs()
	a := write(t, fsys, "/r/keep/x.bin", "same")
	b := write(t, fsys, "/r/b/x.bin", "same")
	c := write(t, fsys, "/r/c/x.bin", "same")
	d := write(t, fsys, "/s/p/y.bin", "one")
	e := write(t, fsys, "/s/q/y.bin", "two")

	p := New(fsys, domain.ModeMove, domain.DestState{Dir: "/dup"}, 0)

	g1 := p.PlanGroup(decision(t, 1, "/r/keep/x.bin", a, b, c))
	if g1.Actions[1].Kind != domain.ActionMove || g1.Actions[1].Dst != "/dup/x.bin" {
		t.Fatalf("第一个同名文件应占用原名：%+v", g1.Actions[1])
	}
	if g1.Actions[2].Kind != domain.ActionRetain {
		t.Fatalf("内容相同的第二个同名文件不应再制造副本：%+v", g1.Actions[2])
	}
	if g1.Actions[2].Note != "本次运行已有相同内容的文件放入目标目录" {
		t.Fatalf("占用者来自本次运行时说明不正确：%q", g1.Actions[2].Note)
	}

	// 不同组、同名不同内容：第二个改名。
	g2 := p.PlanGroup(decision(t, 2, "/s/p/y.bin", d, write(t, fsys, "/s/p2/y.bin", "one")))
	g3 := p.PlanGroup(decision(t, 3, "/s/q/y.bin", e, write(t, fsys, "/s/q2/y.bin", "two")))
	if g2.Actions[1].Dst != "/dup/y.bin" || g3.Actions[1].Dst != "/dup/y (1).bin" {
		t.Fatalf("跨组同名不同内容应改名：%q %q", g2.Actions[1].Dst, g3.Actions[1].Dst)
	}
}

func TestPlanGroup_ReservedNameIsNeverTaken(t *testing.T) {
	fsys := afero.NewMemMapFs()
	a := write(t, fsys, "/r/x/audit.json", "{}")
	b := write(t, fsys, "/r/y/audit.json", "{}")
	// 上一次运行留下的同名报告，内容恰好相同也不能据此 retain。
	write(t, fsys, "/dup/audit.json", "{}")

	st, _ := ReadDestState(fsys, "/dup")
	p := New(fsys, domain.ModeMove, st, 0)
	p.ReserveNames("audit.json", "duplicates_tree.txt")
	gp := p.PlanGroup(decision(t, 1, "/r/x/audit.json", a, b))

	act := gp.Actions[1]
	if act.Kind != domain.ActionMove || act.Dst != filepath.Join("/dup", "audit (1).json") {
		t.Fatalf("预留名应改名避让：%+v", act)
	}
}

func TestPlanGroup_DeleteMode(t *testing.T) {
	fsys := afero.NewMemMapFs()
	a := write(t, fsys, "/a", "z")
	b := write(t, fsys, "/b", "z")

	gp := New(fsys, domain.ModeDelete, domain.DestState{}, 0).PlanGroup(decision(t, 1, "/a", a, b))
	if gp.Actions[1].Kind != domain.ActionDelete || gp.Actions[1].Dst != "" {
		t.Fatalf("delete 模式不应有目标：%+v", gp.Actions[1])
	}
}

func TestPlanGroup_ProbeExhaustedFails(t *testing.T) {
	fsys := afero.NewMemMapFs()
	a := write(t, fsys, "/r/A", "same")
	b := write(t, fsys, "/r/x/f.txt", "same")
	write(t, fsys, "/dup/f.txt", "other")
	write(t, fsys, "/dup/f (1).txt", "other")
	write(t, fsys, "/dup/f (2).txt", "other")

	st, _ := ReadDestState(fsys, "/dup")
	p := New(fsys, domain.ModeMove, st, 0)
	p.MaxProbe = 2
	act := p.PlanGroup(decision(t, 1, "/r/A", a, b)).Actions[1]
	if act.Kind != domain.ActionFail || act.Code != domain.ErrCodeIO {
		t.Fatalf("探测耗尽应记为 io_error 失败：%+v", act)
	}
}

func TestAllocName(t *testing.T) {
	st := domain.DestState{ExistingNames: map[string]struct{}{"a.tar.gz": {}, "noext": {}}}
	if got, _ := allocName("a.tar.gz", st, 5); got != "a.tar (1).gz" {
		t.Fatalf("实际：%q", got)
	}
	if got, _ := allocName("noext", st, 5); got != "noext (1)" {
		t.Fatalf("实际：%q", got)
	}
	if got, _ := allocName("free.jpg", st, 5); got != "free.jpg" {
		t.Fatalf("实际：%q", got)
	}
}
