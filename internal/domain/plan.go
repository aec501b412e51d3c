package domain

import (
	"fmt"
	"strings"
)

// Mode 是对非保留成员执行的动作。
type Mode string

const (
	ModeMove   Mode = "move"
	ModeDelete Mode = "delete"
	ModeCopy   Mode = "copy"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMove:
		return ModeMove, nil
	case ModeDelete, "del":
		return ModeDelete, nil
	case ModeCopy:
		return ModeCopy, nil
	default:
		return "", fmt.Errorf("mode 只能是 move|delete|copy，实际是 %q", s)
	}
}

// NeedsDestination 判断该模式是否需要目标目录。
func (m Mode) NeedsDestination() bool { return m == ModeMove || m == ModeCopy }

// ActionKind 是规划后单个文件的处理方式。
type ActionKind string

const (
	ActionRetain ActionKind = "retain"
	ActionMove   ActionKind = "move"
	ActionCopy   ActionKind = "copy"
	ActionDelete ActionKind = "delete"
	// ActionFail 表示规划阶段已确定失败（例如改名探测耗尽），执行阶段只负责记录。
	ActionFail ActionKind = "fail"
)

// ActionPlan 规划一次文件动作（只描述；真正执行由 executor 完成）。
type ActionPlan struct {
	GroupID int
	Entry   FileEntry
	Kind    ActionKind
	Dst     string

	// Note 解释 retain/fail 的原因（例如目标已有相同内容）。
	Note string
	Code string
}

// GroupPlan 是对一个组的完整执行计划：保留成员在前，其余按成员顺序。
type GroupPlan struct {
	Decision RetentionDecision
	Actions  []ActionPlan
}
