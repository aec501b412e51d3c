package app

import (
	"testing"
	"time"

	"github.com/John-Robertt/dupfind/internal/domain"
)

func day(n int) time.Time { return time.Date(2024, 1, n, 0, 0, 0, 0, time.UTC) }

func fp(path string, size int64, created time.Time, exact, approx domain.Digest) domain.Fingerprinted {
	return domain.Fingerprinted{
		Entry: domain.FileEntry{Path: path, Size: size, CreatedAt: created},
		Key:   domain.FingerprintKey{Size: size, Exact: exact, Approx: approx},
	}
}

func TestSizeCandidates_DropsUniqueSizes(t *testing.T) {
	files := []domain.FileEntry{
		{Path: "/a", Size: 100},
		{Path: "/b", Size: 7},
		{Path: "/c", Size: 100},
		{Path: "/d", Size: 0},
	}
	got := SizeCandidates(files)
	if len(got) != 2 || got[0].Path != "/a" || got[1].Path != "/c" {
		t.Fatalf("size 预筛结果不正确：%+v", got)
	}
}

// A、B 内容相同，C 大小相同但内容不同：只形成 {A,B}。
func TestGroup_ABCScenario(t *testing.T) {
	dAB := domain.Digest{0xaa}
	dC := domain.Digest{0xcc}
	fps := []domain.Fingerprinted{
		fp("/r/C", 100, day(3), dC, nil),
		fp("/r/B", 100, day(2), dAB, nil),
		fp("/r/A", 100, day(1), dAB, nil),
	}

	groups := Group(fps, false)
	if len(groups) != 1 {
		t.Fatalf("期望 1 个组，实际 %d", len(groups))
	}
	g := groups[0]
	if g.ID != 1 || g.KeyType != domain.KeyExact {
		t.Fatalf("组元数据不正确：%+v", g)
	}
	if len(g.Members) != 2 || g.Members[0].Path != "/r/A" || g.Members[1].Path != "/r/B" {
		t.Fatalf("成员或顺序不正确：%+v", g.Members)
	}
	if g.Contains("/r/C") {
		t.Fatalf("C 不应入组")
	}
}

func TestGroup_DifferentSizeSameDigestNeverMerged(t *testing.T) {
	d := domain.Digest{0x01}
	groups := Group([]domain.Fingerprinted{
		fp("/a", 1, day(1), d, nil),
		fp("/b", 2, day(1), d, nil),
	}, false)
	if len(groups) != 0 {
		t.Fatalf("不同 size 不得合并：%+v", groups)
	}
}

func TestGroup_ApproxIsIndependentAxis(t *testing.T) {
	same := domain.Digest{0x11}
	look := domain.Digest{0x22}
	fps := []domain.Fingerprinted{
		fp("/x/a.jpg", 10, day(1), same, look),
		fp("/x/b.jpg", 10, day(2), same, nil),
		fp("/x/c.png", 99, day(3), domain.Digest{0x33}, look),
	}

	groups := Group(fps, true)
	if len(groups) != 2 {
		t.Fatalf("期望 exact + approx 两个组，实际 %d：%+v", len(groups), groups)
	}
	if groups[0].KeyType != domain.KeyExact || groups[1].KeyType != domain.KeyApprox {
		t.Fatalf("exact 组应排在 approx 组之前：%+v", groups)
	}
	if groups[0].ID != 1 || groups[1].ID != 2 {
		t.Fatalf("ID 应连续编号：%d %d", groups[0].ID, groups[1].ID)
	}
	// a.jpg 同时出现在两个不同类型的组中。
	if !groups[0].Contains("/x/a.jpg") || !groups[1].Contains("/x/a.jpg") || !groups[1].Contains("/x/c.png") {
		t.Fatalf("approx 轴成员不正确：%+v", groups)
	}

	if got := Group(fps, false); len(got) != 1 {
		t.Fatalf("关闭 approx 时只应有 exact 组，实际 %d", len(got))
	}
}

func TestGroup_IdempotentAcrossInputOrder(t *testing.T) {
	d1, d2 := domain.Digest{1}, domain.Digest{2}
	fps := []domain.Fingerprinted{
		fp("/q", 5, day(1), d2, nil),
		fp("/b", 5, day(1), d1, nil),
		fp("/a", 5, day(1), d1, nil),
		fp("/p", 5, day(1), d2, nil),
	}
	first := Group(fps, true)

	rev := make([]domain.Fingerprinted, len(fps))
	for i := range fps {
		rev[len(fps)-1-i] = fps[i]
	}
	second := Group(rev, true)

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("组数不一致：%d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Key != second[i].Key || first[i].ID != second[i].ID {
			t.Fatalf("分组结果与输入顺序相关：%+v vs %+v", first[i], second[i])
		}
		for j := range first[i].Members {
			if first[i].Members[j].Path != second[i].Members[j].Path {
				t.Fatalf("成员顺序与输入顺序相关")
			}
		}
	}
	if first[0].Members[0].Path != "/a" {
		t.Fatalf("组应按最小成员路径排序，实际首组首成员 %q", first[0].Members[0].Path)
	}
}

func TestGroup_MissingExactDigestSkipped(t *testing.T) {
	groups := Group([]domain.Fingerprinted{
		fp("/a", 5, day(1), nil, nil),
		fp("/b", 5, day(1), nil, nil),
	}, true)
	if len(groups) != 0 {
		t.Fatalf("没有摘要的文件不应成组：%+v", groups)
	}
}
