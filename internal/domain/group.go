package domain

import (
	"fmt"
	"path/filepath"
	"sort"
)

// KeyType 标记分组所用的键。
type KeyType string

const (
	KeyExact  KeyType = "exact"
	KeyApprox KeyType = "approx"
)

// DuplicateGroup 是共享同一指纹键的一组文件（成员数 >= 2）。
//
// 不变量：
// - Members 按 CreatedAt 升序，时间相同再按 Path 字典序（默认保留策略依赖该顺序）
// - 同一 KeyType 下，一个 FileEntry 只属于一个组
type DuplicateGroup struct {
	ID      int
	KeyType KeyType
	Key     string // 十六进制摘要；exact 组前缀带 size，便于报告追溯
	Members []FileEntry
}

// Contains 判断 path 是否为组成员。
func (g DuplicateGroup) Contains(path string) bool {
	for _, m := range g.Members {
		if m.Path == path {
			return true
		}
	}
	return false
}

// SortMembers 按（创建时间，路径）稳定排序。
func SortMembers(members []FileEntry) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Path < b.Path
	})
}

// Strategy 是单个组的保留策略。
type Strategy string

const (
	StrategyOldest   Strategy = "oldest"
	StrategyShortest Strategy = "shortest"
	StrategySkip     Strategy = "skip"
	// StrategyManual 仅出现在结果中：表示保留集合来自用户覆盖，而非计算得出。
	StrategyManual Strategy = "manual"
)

// RetentionDecision 是对某个组的保留决定。
//
// 不变量：Retained 永不为空，且 Retained ∪ Act == Group.Members。
// 只能通过 NewRetentionDecision 构造，空保留集合会返回 PolicyViolation。
type RetentionDecision struct {
	Group    DuplicateGroup
	Strategy Strategy
	Retained []FileEntry
	Act      []FileEntry
}

// NewRetentionDecision 根据保留路径集合划分成员。
// retained 中的每个路径都必须属于 g；集合为空或含非成员路径都视为 PolicyViolation。
func NewRetentionDecision(g DuplicateGroup, strategy Strategy, retained []string) (RetentionDecision, error) {
	if len(retained) == 0 {
		return RetentionDecision{}, &Error{Code: ErrCodePolicyViolation, Err: fmt.Errorf("组 %d 的保留集合为空", g.ID)}
	}
	keep := make(map[string]struct{}, len(retained))
	for _, p := range retained {
		p = filepath.Clean(p)
		if !g.Contains(p) {
			return RetentionDecision{}, &Error{Code: ErrCodePolicyViolation, Path: p, Err: fmt.Errorf("路径不属于组 %d", g.ID)}
		}
		keep[p] = struct{}{}
	}

	d := RetentionDecision{
		Group:    g,
		Strategy: strategy,
		Retained: make([]FileEntry, 0, len(keep)),
		Act:      make([]FileEntry, 0, len(g.Members)-len(keep)),
	}
	for _, m := range g.Members {
		if _, ok := keep[m.Path]; ok {
			d.Retained = append(d.Retained, m)
			continue
		}
		d.Act = append(d.Act, m)
	}
	return d, nil
}

// IsRetained 判断 path 是否在保留集合中。
func (d RetentionDecision) IsRetained(path string) bool {
	for _, m := range d.Retained {
		if m.Path == path {
			return true
		}
	}
	return false
}
