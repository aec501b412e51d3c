package app

import (
	"fmt"
	"sort"

	"github.com/John-Robertt/dupfind/internal/domain"
)

// SizeCandidates 按 size 分区并丢弃单例分区，返回需要计算 exact 摘要的文件（保持输入顺序）。
//
// 这是廉价预筛：大小唯一的文件不可能重复，永远不读其内容。
func SizeCandidates(files []domain.FileEntry) []domain.FileEntry {
	count := make(map[int64]int, len(files))
	for _, f := range files {
		count[f.Size]++
	}
	out := make([]domain.FileEntry, 0, len(files))
	for _, f := range files {
		if count[f.Size] > 1 {
			out = append(out, f)
		}
	}
	return out
}

// Group 把已完成指纹计算的文件划分为重复组（成员数 >= 2）。
//
// 规则（固定）：
// - exact 轴：先按 size 分区，再在分区内按 exact 摘要分区；没有 exact 摘要的文件不参与
// - approx 轴（withApprox=true 时）：按 approx 摘要分区，与 exact 轴相互独立
// - 单例分区一律丢弃
// - 组内成员按（创建时间，路径）排序
// - 组的顺序：exact 在前、approx 在后；同类型内按最小成员路径排序；ID 从 1 连续编号
//
// 输出只由输入内容决定，与 worker 完成顺序无关。
func Group(fps []domain.Fingerprinted, withApprox bool) []domain.DuplicateGroup {
	exact := partition(fps, domain.KeyExact, func(k domain.FingerprintKey) (string, bool) {
		if len(k.Exact) == 0 {
			return "", false
		}
		return fmt.Sprintf("%d-%s", k.Size, k.Exact), true
	})

	var approx []domain.DuplicateGroup
	if withApprox {
		approx = partition(fps, domain.KeyApprox, func(k domain.FingerprintKey) (string, bool) {
			if len(k.Approx) == 0 {
				return "", false
			}
			return k.Approx.String(), true
		})
	}

	groups := append(exact, approx...)
	for i := range groups {
		groups[i].ID = i + 1
	}
	return groups
}

func partition(fps []domain.Fingerprinted, kt domain.KeyType, keyOf func(domain.FingerprintKey) (string, bool)) []domain.DuplicateGroup {
	buckets := make(map[string][]domain.FileEntry, len(fps))
	for _, fp := range fps {
		k, ok := keyOf(fp.Key)
		if !ok {
			continue
		}
		buckets[k] = append(buckets[k], fp.Entry)
	}

	groups := make([]domain.DuplicateGroup, 0, len(buckets))
	for k, members := range buckets {
		if len(members) < 2 {
			continue
		}
		domain.SortMembers(members)
		groups = append(groups, domain.DuplicateGroup{KeyType: kt, Key: k, Members: members})
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := minPath(groups[i].Members), minPath(groups[j].Members)
		if a != b {
			return a < b
		}
		return groups[i].Key < groups[j].Key
	})
	return groups
}

func minPath(members []domain.FileEntry) string {
	m := members[0].Path
	for _, f := range members[1:] {
		if f.Path < m {
			m = f.Path
		}
	}
	return m
}
