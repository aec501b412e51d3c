package run

import (
	"time"

	"github.com/John-Robertt/dupfind/internal/config"
	"github.com/John-Robertt/dupfind/internal/domain"
)

// Observer 用于把“运行进度/阶段/组结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（stdout 留给报告）。
// - Observer 的实现必须并发安全：调用方可能在其他 goroutine 轮询进度。
type Observer interface {
	// OnStart 在 ExecuteWithObserver 开始时调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig)
	// OnPhaseDone 在阶段结束时调用：scan / fingerprint / group / resolve / plan / execute。
	OnPhaseDone(name string, fields map[string]any, dur time.Duration)
	// OnProgress 在指纹阶段每跨过一个里程碑时调用（每 progress_step%，以及 100%）。
	OnProgress(p domain.ScanProgress)
	// OnGroupDone 在某个重复组的全部动作完成时调用。
	OnGroupDone(idx, total int, g domain.DuplicateGroup, entries []domain.AuditEntry)
}

// nopObserver 让 run 内部不必到处判空。
type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig)                                  {}
func (nopObserver) OnPhaseDone(string, map[string]any, time.Duration)               {}
func (nopObserver) OnProgress(domain.ScanProgress)                                  {}
func (nopObserver) OnGroupDone(int, int, domain.DuplicateGroup, []domain.AuditEntry) {}
