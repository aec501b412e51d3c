// Package policy 决定每个重复组保留哪些成员。
package policy

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/John-Robertt/dupfind/internal/domain"
)

// DefaultStrategy 返回键类型对应的默认策略：exact → oldest，approx → shortest。
func DefaultStrategy(kt domain.KeyType) domain.Strategy {
	if kt == domain.KeyApprox {
		return domain.StrategyShortest
	}
	return domain.StrategyOldest
}

// ParseStrategy 解析配置/CLI 中的策略名（大小写不敏感）。manual 只能来自覆盖文件，不能直接选择。
func ParseStrategy(s string) (domain.Strategy, error) {
	switch domain.Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case domain.StrategyOldest, "oldest-wins":
		return domain.StrategyOldest, nil
	case domain.StrategyShortest, "shortest-name", "shortest-name-wins":
		return domain.StrategyShortest, nil
	case domain.StrategySkip:
		return domain.StrategySkip, nil
	default:
		return "", fmt.Errorf("未知保留策略 %q（可选：oldest|shortest|skip）", s)
	}
}

// Resolve 计算组的保留决定。
//
// - override 非 nil：原样采用（策略记为 manual），不重新计算；空集合或非成员路径返回 policy_violation
// - oldest：保留（创建时间，路径）最小的唯一成员
// - shortest：保留文件名长度（按字符计）等于最小值的全部成员
// - skip：全部保留，不产生任何动作
//
// 结果只由 group 内容决定，不依赖成员的输入顺序；永远不会返回空的保留集合。
func Resolve(g domain.DuplicateGroup, strategy domain.Strategy, override []string) (domain.RetentionDecision, error) {
	if override != nil {
		return domain.NewRetentionDecision(g, domain.StrategyManual, override)
	}

	var keep []string
	switch strategy {
	case domain.StrategyOldest:
		if m, ok := oldest(g.Members); ok {
			keep = []string{m.Path}
		}
	case domain.StrategyShortest:
		keep = shortest(g.Members)
	case domain.StrategySkip:
		for _, m := range g.Members {
			keep = append(keep, m.Path)
		}
	default:
		return domain.RetentionDecision{}, &domain.Error{
			Code: domain.ErrCodePolicyViolation,
			Err:  fmt.Errorf("组 %d 使用了未知策略 %q", g.ID, strategy),
		}
	}
	return domain.NewRetentionDecision(g, strategy, keep)
}

func oldest(members []domain.FileEntry) (domain.FileEntry, bool) {
	if len(members) == 0 {
		return domain.FileEntry{}, false
	}
	best := members[0]
	for _, m := range members[1:] {
		if m.CreatedAt.Before(best.CreatedAt) || (m.CreatedAt.Equal(best.CreatedAt) && m.Path < best.Path) {
			best = m
		}
	}
	return best, true
}

func shortest(members []domain.FileEntry) []string {
	minLen := -1
	for _, m := range members {
		if n := nameLen(m.Path); minLen < 0 || n < minLen {
			minLen = n
		}
	}
	out := make([]string, 0, 1)
	for _, m := range members {
		if nameLen(m.Path) == minLen {
			out = append(out, m.Path)
		}
	}
	return out
}

func nameLen(path string) int { return utf8.RuneCountInString(filepath.Base(path)) }
