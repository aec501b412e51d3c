// Package run 把各阶段串成一次完整运行：scan → fingerprint → group → resolve → plan → execute。
// 每个阶段都是完整屏障，下一阶段只在上一阶段全部完成后开始。
package run

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/John-Robertt/dupfind/internal/app"
	"github.com/John-Robertt/dupfind/internal/app/executor"
	"github.com/John-Robertt/dupfind/internal/app/planner"
	"github.com/John-Robertt/dupfind/internal/app/policy"
	"github.com/John-Robertt/dupfind/internal/app/scheduler"
	"github.com/John-Robertt/dupfind/internal/audit"
	"github.com/John-Robertt/dupfind/internal/config"
	"github.com/John-Robertt/dupfind/internal/domain"
	"github.com/John-Robertt/dupfind/internal/fingerprint"
	"github.com/John-Robertt/dupfind/internal/infra/cache"
	"github.com/John-Robertt/dupfind/internal/logging"
	"github.com/John-Robertt/dupfind/internal/scan"
)

// Result 是一次运行的全部产出。
type Result struct {
	// Record 是已关闭的审计记录；dry-run 下同样完整。
	Record domain.AuditRecord
	Groups []domain.DuplicateGroup

	// Reports 是 apply 模式下写出的报告路径；ReportErr 非空表示写报告失败（记录本身仍有效）。
	Reports   []string
	ReportErr error
}

// Failed 返回审计记录中 failed 条目的数量。
func (r Result) Failed() int { return r.Record.Summary.Failed }

// Execute 执行一次运行（dry-run/apply）。
func Execute(ctx context.Context, fsys afero.Fs, eff config.EffectiveConfig) (Result, error) {
	return ExecuteWithObserver(ctx, fsys, eff, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
//
// 返回 error 只代表致命错误：扫描根目录不可用、取消、policy_violation、audit_closed。
// 单文件失败只体现在 Result.Record 中。
func ExecuteWithObserver(ctx context.Context, fsys afero.Fs, eff config.EffectiveConfig, obs Observer) (Result, error) {
	if obs == nil {
		obs = nopObserver{}
	}
	logger := logging.GetLogger("run")
	done := logging.LogOperationStart(logger, "run")
	defer done()

	obs.OnStart(eff)

	rec := audit.NewRecorder(audit.Meta{
		Roots:     eff.Roots,
		Mode:      eff.Mode,
		Dest:      destFor(eff),
		DryRun:    !eff.Apply,
		StartedAt: time.Now().UTC(),
	})
	logger.Info().Str("run_id", rec.RunID()).Strs("roots", eff.Roots).Bool("apply", eff.Apply).Msg("开始运行")

	progress := &domain.Progress{}

	// scan
	started := time.Now()
	files, err := scan.Files(ctx, fsys, eff.Roots, scan.Options{
		IncludeSubdirs: eff.IncludeSubdirs,
		ExcludeDirs:    eff.ExcludeDirs,
		Destination:    eff.Destination,
		MinSize:        eff.MinSize,
		ImageExts:      eff.ImageExts,
		Progress:       progress,
	})
	if err != nil {
		return Result{}, err
	}
	obs.OnPhaseDone("scan", map[string]any{"files": len(files)}, time.Since(started))

	// fingerprint
	started = time.Now()
	var digester fingerprint.Digester = fingerprint.New(fsys, eff.ChunkSize)
	var store *cache.Store
	if eff.Cache {
		// dry-run 只读缓存，不落盘。
		store, err = cache.Open(fsys, eff.CacheFile, !eff.Apply)
		if err != nil {
			logger.Warn().Err(err).Str("path", eff.CacheFile).Msg("打开摘要缓存失败，本次不使用缓存")
			store = nil
		} else {
			digester = fingerprint.Cached{Next: digester, Store: store}
		}
	}
	sched := scheduler.New(digester, scheduler.Options{
		Concurrency:  eff.Concurrency,
		Approx:       eff.Approx,
		ProgressStep: eff.ProgressStep,
		OnProgress:   obs.OnProgress,
	}, progress)
	fp, err := sched.Run(ctx, files)
	if err != nil {
		return Result{}, err
	}
	for _, f := range fp.Failures {
		if err := rec.Append(audit.Failed(0, f.Path, f.Code, errors.New(f.Reason))); err != nil {
			return Result{}, err
		}
	}
	fields := map[string]any{
		"tasks":       sched.Snapshot().TasksTotal,
		"failed":      len(fp.Failures),
		"unsupported": fp.Unsupported,
	}
	if store != nil {
		fields["cached"] = store.Len()
	}
	obs.OnPhaseDone("fingerprint", fields, time.Since(started))

	// group
	started = time.Now()
	groups := app.Group(fp.Fingerprinted, eff.Approx)
	var exact, approx int
	for _, g := range groups {
		if g.KeyType == domain.KeyExact {
			exact++
		} else {
			approx++
		}
	}
	obs.OnPhaseDone("group", map[string]any{"exact": exact, "approx": approx}, time.Since(started))

	// resolve
	started = time.Now()
	decisions, err := resolveAll(groups, eff)
	if err != nil {
		return Result{}, err
	}
	var manual int
	for _, d := range decisions {
		if d.Strategy == domain.StrategyManual {
			manual++
		}
	}
	obs.OnPhaseDone("resolve", map[string]any{"groups": len(decisions), "manual": manual}, time.Since(started))

	// plan
	started = time.Now()
	plans := planAll(fsys, eff, decisions)
	obs.OnPhaseDone("plan", map[string]any{"groups": len(plans)}, time.Since(started))

	// execute
	started = time.Now()
	x := executor.New(fsys, rec, !eff.Apply)
	x.OnGroupDone = func(idx, total int, gp domain.GroupPlan, entries []domain.AuditEntry) {
		obs.OnGroupDone(idx, total, gp.Decision.Group, entries)
	}
	if err := x.Execute(plans); err != nil {
		return Result{}, err
	}
	record, err := rec.Close(time.Now().UTC())
	if err != nil {
		return Result{}, err
	}
	obs.OnPhaseDone("execute", map[string]any{
		"retained": record.Summary.Retained,
		"moved":    record.Summary.Moved,
		"copied":   record.Summary.Copied,
		"deleted":  record.Summary.Deleted,
		"failed":   record.Summary.Failed,
	}, time.Since(started))

	res := Result{Record: record, Groups: groups}

	if store != nil && eff.Apply {
		if err := store.Save(); err != nil {
			logger.Warn().Err(err).Str("path", eff.CacheFile).Msg("保存摘要缓存失败")
		}
	}

	// 报告只在 apply 时落盘；dry-run 由调用方决定如何展示。
	if eff.Apply && len(eff.Reports) > 0 {
		res.Reports, res.ReportErr = audit.WriteFiles(fsys, eff.ReportDir, record, eff.Reports)
		if res.ReportErr != nil {
			logger.Error().Err(res.ReportErr).Str("dir", eff.ReportDir).Msg("写入报告失败")
		}
	}

	logger.Info().
		Str("run_id", record.RunID).
		Int("groups", record.Summary.Groups).
		Int("failed", record.Summary.Failed).
		Msg("运行结束")
	return res, nil
}

// resolveAll 为每个组生成保留决定。覆盖文件按组号匹配；未匹配的组号只记日志。
func resolveAll(groups []domain.DuplicateGroup, eff config.EffectiveConfig) ([]domain.RetentionDecision, error) {
	logger := logging.GetLogger("run")
	seen := make(map[int]struct{}, len(groups))
	out := make([]domain.RetentionDecision, 0, len(groups))
	for _, g := range groups {
		seen[g.ID] = struct{}{}
		strategy := eff.ExactPolicy
		if g.KeyType == domain.KeyApprox {
			strategy = eff.ApproxPolicy
		}
		override, ok := eff.Overrides[g.ID]
		if ok && override == nil {
			override = []string{}
		}
		d, err := policy.Resolve(g, strategy, override)
		if err != nil {
			return nil, fmt.Errorf("重复组 %d：%w", g.ID, err)
		}
		out = append(out, d)
	}
	for id := range eff.Overrides {
		if _, ok := seen[id]; !ok {
			logger.Warn().Int("group", id).Msg("覆盖文件中的组号在本次运行中不存在，已忽略")
		}
	}
	return out, nil
}

// planAll 规划全部组。目标目录不可用时仍然规划，动作会在执行阶段逐个失败并被记录。
func planAll(fsys afero.Fs, eff config.EffectiveConfig, decisions []domain.RetentionDecision) []domain.GroupPlan {
	var st domain.DestState
	if eff.Mode.NeedsDestination() {
		s, err := planner.ReadDestState(fsys, eff.Destination)
		if err != nil {
			logger := logging.GetLogger("run")
			logger.Warn().Err(err).Str("dir", eff.Destination).Msg("读取目标目录失败")
			s = domain.DestState{Dir: eff.Destination}
		}
		st = s
	}
	p := planner.New(fsys, eff.Mode, st, eff.ChunkSize)
	// 报告与目标目录重合时，报告文件名不能分配给被移动/复制的文件，否则写报告会覆盖它们。
	// dry-run 同样预留，保证预览与真实执行一致。
	if eff.Mode.NeedsDestination() && filepath.Clean(eff.ReportDir) == filepath.Clean(eff.Destination) {
		for _, f := range eff.Reports {
			p.ReserveNames(audit.FileName(f))
		}
	}
	plans := make([]domain.GroupPlan, 0, len(decisions))
	for _, d := range decisions {
		plans = append(plans, p.PlanGroup(d))
	}
	return plans
}

func destFor(eff config.EffectiveConfig) string {
	if eff.Mode.NeedsDestination() {
		return eff.Destination
	}
	return ""
}
