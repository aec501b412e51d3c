// Package executor 按计划执行文件动作，并把每个结果追加到审计记录。
package executor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/John-Robertt/dupfind/internal/audit"
	"github.com/John-Robertt/dupfind/internal/domain"
	"github.com/John-Robertt/dupfind/internal/infra/fsx"
	"github.com/John-Robertt/dupfind/internal/logging"
)

// Executor 执行一次运行的全部 GroupPlan（单线程、按组顺序）。
//
// 安全约束（硬约束）：
// - 只对非保留成员动手；保留集合由 RetentionDecision 保证非空
// - 被任意组保留的路径，不会被其他组移动/删除（记为 retained）
// - 同一路径在本次运行中只会被处理一次；再次出现记为 stale_entry
// - 动手前重新 stat 源文件：已消失或 size/mtime 变化记为 stale_entry
// - 目标已存在时绝不覆盖
// - 单个文件失败只记录 failed，不影响其他文件
type Executor struct {
	fs     afero.Fs
	rec    *audit.Recorder
	dryRun bool

	protected map[string]int
	acted     map[string]int
	ensured   map[string]error

	// OnGroupDone 可选；每个组的全部动作完成后调用一次（entries 为该组刚追加的条目）。
	OnGroupDone func(idx, total int, gp domain.GroupPlan, entries []domain.AuditEntry)
}

func New(fsys afero.Fs, rec *audit.Recorder, dryRun bool) *Executor {
	return &Executor{
		fs:        fsys,
		rec:       rec,
		dryRun:    dryRun,
		protected: map[string]int{},
		acted:     map[string]int{},
		ensured:   map[string]error{},
	}
}

// Execute 执行全部计划。返回的 error 只可能是致命错误（例如审计记录已关闭）；
// 单文件失败只体现在审计记录中。
func (x *Executor) Execute(plans []domain.GroupPlan) error {
	// 先登记全部保留路径，再开始任何动作：保护不依赖组的执行顺序。
	for _, gp := range plans {
		for _, m := range gp.Decision.Retained {
			if _, ok := x.protected[m.Path]; !ok {
				x.protected[m.Path] = gp.Decision.Group.ID
			}
		}
	}

	for i, gp := range plans {
		if err := x.rec.AddGroup(gp.Decision); err != nil {
			return err
		}
		entries := make([]domain.AuditEntry, 0, len(gp.Actions))
		for _, ap := range gp.Actions {
			e := x.apply(ap)
			if err := x.rec.Append(e); err != nil {
				return err
			}
			entries = append(entries, e)
		}
		if x.OnGroupDone != nil {
			x.OnGroupDone(i+1, len(plans), gp, entries)
		}
	}
	return nil
}

func (x *Executor) apply(ap domain.ActionPlan) domain.AuditEntry {
	logger := logging.GetLogger("executor")
	e := domain.AuditEntry{GroupID: ap.GroupID, Path: ap.Entry.Path}

	switch ap.Kind {
	case domain.ActionRetain:
		e.Outcome = domain.OutcomeRetained
		e.Destination = ap.Dst
		e.Reason = ap.Note
		return e
	case domain.ActionFail:
		return audit.Failed(ap.GroupID, ap.Entry.Path, ap.Code, errors.New(ap.Note))
	}

	if owner, ok := x.protected[ap.Entry.Path]; ok {
		e.Outcome = domain.OutcomeRetained
		e.Reason = fmt.Sprintf("已被重复组 %d 保留", owner)
		return e
	}
	if by, ok := x.acted[ap.Entry.Path]; ok {
		return audit.Failed(ap.GroupID, ap.Entry.Path, domain.ErrCodeStale, fmt.Errorf("已在重复组 %d 中处理", by))
	}
	if err := x.checkFresh(ap.Entry); err != nil {
		return audit.Failed(ap.GroupID, ap.Entry.Path, domain.Code(err), err)
	}

	var (
		outcome domain.Outcome
		err     error
	)
	switch ap.Kind {
	case domain.ActionMove:
		outcome, err = domain.OutcomeMoved, x.move(ap)
	case domain.ActionCopy:
		outcome, err = domain.OutcomeCopied, x.copy(ap)
	case domain.ActionDelete:
		outcome, err = domain.OutcomeDeleted, x.remove(ap)
	default:
		err = fmt.Errorf("未知动作 %q", ap.Kind)
	}
	if err != nil {
		code := domain.ErrCodeIO
		if fsx.IsCrossDevice(err) {
			code = domain.ErrCodeCrossDevice
		} else if c := domain.Code(err); c != "" {
			code = c
		}
		logger.Warn().Err(err).Int("group", ap.GroupID).Str("path", ap.Entry.Path).Msg("文件动作失败")
		return audit.Failed(ap.GroupID, ap.Entry.Path, code, err)
	}

	x.acted[ap.Entry.Path] = ap.GroupID
	e.Outcome = outcome
	e.Destination = ap.Dst
	logger.Info().Int("group", ap.GroupID).Str("path", ap.Entry.Path).Str("outcome", string(outcome)).Bool("dry_run", x.dryRun).Msg("文件已处理")
	return e
}

// checkFresh 确认源文件仍与扫描时的快照一致。
func (x *Executor) checkFresh(e domain.FileEntry) error {
	fi, err := x.fs.Stat(e.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &domain.Error{Code: domain.ErrCodeStale, Path: e.Path, Err: errors.New("扫描后文件已消失")}
		}
		return &domain.Error{Code: domain.ErrCodeIO, Path: e.Path, Err: err}
	}
	if fi.Size() != e.Size || !fi.ModTime().Equal(e.ModTime) {
		return &domain.Error{Code: domain.ErrCodeStale, Path: e.Path, Err: errors.New("扫描后文件已被修改")}
	}
	return nil
}

func (x *Executor) move(ap domain.ActionPlan) error {
	if x.dryRun {
		return nil
	}
	if err := x.prepareDst(ap.Dst); err != nil {
		return err
	}
	return fsx.Rename(x.fs, ap.Entry.Path, ap.Dst)
}

func (x *Executor) copy(ap domain.ActionPlan) error {
	if x.dryRun {
		return nil
	}
	if err := x.prepareDst(ap.Dst); err != nil {
		return err
	}
	return fsx.CopyFile(x.fs, ap.Entry.Path, ap.Dst)
}

func (x *Executor) remove(ap domain.ActionPlan) error {
	if x.dryRun {
		return nil
	}
	return x.fs.Remove(ap.Entry.Path)
}

// prepareDst 确保目标目录存在，且目标路径此刻仍空闲（规划之后可能被外部占用）。
func (x *Executor) prepareDst(dst string) error {
	dir := filepath.Dir(dst)
	err, ok := x.ensured[dir]
	if !ok {
		err = fsx.EnsureDir(x.fs, dir)
		x.ensured[dir] = err
	}
	if err != nil {
		return err
	}
	exists, err := fsx.Exists(x.fs, dst)
	if err != nil {
		return err
	}
	if exists {
		return &domain.Error{Code: domain.ErrCodeIO, Path: dst, Err: fmt.Errorf("%s：目标在规划后被占用，拒绝覆盖", domain.ErrCodeDestinationCollision)}
	}
	return nil
}
