// Package scheduler 在有界 worker pool 上并发计算指纹，并把结果汇总到唯一的聚合点。
package scheduler

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/dupfind/internal/app"
	"github.com/John-Robertt/dupfind/internal/domain"
	"github.com/John-Robertt/dupfind/internal/fingerprint"
	"github.com/John-Robertt/dupfind/internal/logging"
)

const (
	DefaultConcurrency  = 4
	MaxConcurrency      = 32
	DefaultProgressStep = 10
)

// Options 控制一次指纹阶段。
type Options struct {
	Concurrency int
	// Approx=true 时，图片文件额外计算 approx 摘要（与 size 预筛无关）。
	Approx bool
	// ProgressStep 是里程碑间隔（百分比，1..100）。
	ProgressStep int
	// OnProgress 在每个里程碑调用一次（包括 100%）；只从聚合 goroutine 调用，不会并发。
	OnProgress func(domain.ScanProgress)
}

// Result 是指纹阶段的完整结果。取消的运行不会返回 Result。
type Result struct {
	// Fingerprinted 保持输入顺序，与 worker 完成顺序无关。
	Fingerprinted []domain.Fingerprinted
	Failures      []domain.FileFailure
	// Unsupported 是扩展名像图片但无法解码的文件数（分类结果，不是失败）。
	Unsupported int
}

// Scheduler 是一次运行的扫描上下文：持有 Digester、进度计数与选项，不依赖任何全局状态。
type Scheduler struct {
	d        fingerprint.Digester
	opt      Options
	progress *domain.Progress
}

// New 创建 Scheduler；progress 为 nil 时内部新建一个（仍可通过 Snapshot 轮询）。
func New(d fingerprint.Digester, opt Options, progress *domain.Progress) *Scheduler {
	if opt.Concurrency < 1 {
		opt.Concurrency = 1
	}
	if opt.Concurrency > MaxConcurrency {
		opt.Concurrency = MaxConcurrency
	}
	if opt.ProgressStep < 1 || opt.ProgressStep > 100 {
		opt.ProgressStep = DefaultProgressStep
	}
	if progress == nil {
		progress = &domain.Progress{}
	}
	return &Scheduler{d: d, opt: opt, progress: progress}
}

// Snapshot 返回当前进度（调用方可在任意 goroutine 轮询）。
func (s *Scheduler) Snapshot() domain.ScanProgress { return s.progress.Snapshot() }

type task struct {
	idx   int
	entry domain.FileEntry
	exact bool
	appr  bool
}

type taskResult struct {
	idx         int
	key         domain.FingerprintKey
	failure     *domain.FileFailure
	unsupported bool
}

// Run 对 files 计算指纹。
//
// 规则（硬约束）：
// - 只有 size 分区非单例的文件才计算 exact 摘要（大小唯一的文件不读内容）
// - Approx=true 时所有图片计算 approx 摘要
// - 两者都不需要的文件不产生任务，也不出现在结果中
// - 结果只经由一个 channel 汇总到调用 goroutine（唯一的可变聚合点）
// - 取消：不再提交新任务，进行中的 worker 完成当前文件后退出，已算出的结果全部丢弃
// - 单文件 IO 失败只记录到 Failures，不影响其他文件
func (s *Scheduler) Run(ctx context.Context, files []domain.FileEntry) (Result, error) {
	logger := logging.GetLogger("scheduler")
	tasks := s.buildTasks(files)
	total := int64(len(tasks))
	s.progress.SetTotal(total)
	logger.Debug().Int("files", len(files)).Int64("tasks", total).Int("workers", s.opt.Concurrency).Msg("指纹任务已就绪")

	results := make(chan taskResult, s.opt.Concurrency)

	go func() {
		g := new(errgroup.Group)
		g.SetLimit(s.opt.Concurrency)
		for _, t := range tasks {
			if ctx.Err() != nil {
				break
			}
			g.Go(func() error {
				// 取消后排队中的任务直接放弃；已开始的文件会读完。
				if ctx.Err() != nil {
					return nil
				}
				results <- s.fingerprintOne(t)
				return nil
			})
		}
		_ = g.Wait()
		close(results)
	}()

	keys := make([]*taskResult, len(tasks))
	ms := newMilestones(total, s.opt.ProgressStep)
	var done int64
	for r := range results {
		keys[r.idx] = &r
		done++
		s.progress.AddFingerprinted(1)
		if s.opt.OnProgress != nil && ms.reached(done) {
			s.opt.OnProgress(s.progress.Snapshot())
		}
	}
	if total == 0 && s.opt.OnProgress != nil {
		s.opt.OnProgress(s.progress.Snapshot())
	}

	if err := ctx.Err(); err != nil {
		logger.Info().Int64("done", done).Int64("tasks", total).Msg("指纹阶段已取消，丢弃部分结果")
		return Result{}, &domain.Error{Code: domain.ErrCodeCanceled, Err: err}
	}

	res := Result{
		Fingerprinted: make([]domain.Fingerprinted, 0, len(tasks)),
		Failures:      make([]domain.FileFailure, 0),
	}
	for i, t := range tasks {
		r := keys[i]
		if r == nil {
			// 未取消时每个任务都必须有结果。
			return Result{}, errors.New("scheduler: 任务结果缺失")
		}
		if r.failure != nil {
			res.Failures = append(res.Failures, *r.failure)
			continue
		}
		if r.unsupported {
			res.Unsupported++
		}
		res.Fingerprinted = append(res.Fingerprinted, domain.Fingerprinted{Entry: t.entry, Key: r.key})
	}
	return res, nil
}

func (s *Scheduler) buildTasks(files []domain.FileEntry) []task {
	needExact := make(map[string]struct{}, len(files))
	for _, f := range app.SizeCandidates(files) {
		needExact[f.Path] = struct{}{}
	}
	tasks := make([]task, 0, len(files))
	for _, f := range files {
		_, ex := needExact[f.Path]
		ap := s.opt.Approx && f.Image
		if !ex && !ap {
			continue
		}
		tasks = append(tasks, task{idx: len(tasks), entry: f, exact: ex, appr: ap})
	}
	return tasks
}

func (s *Scheduler) fingerprintOne(t task) taskResult {
	r := taskResult{idx: t.idx, key: domain.FingerprintKey{Size: t.entry.Size}}
	if t.exact {
		d, err := s.d.Exact(t.entry)
		if err != nil {
			r.failure = failureOf(t.entry.Path, err)
			return r
		}
		r.key.Exact = d
	}
	if t.appr {
		d, err := s.d.Approx(t.entry)
		switch {
		case errors.Is(err, fingerprint.ErrUnsupportedFormat):
			r.unsupported = true
		case err != nil:
			r.failure = failureOf(t.entry.Path, err)
			return r
		default:
			r.key.Approx = d
		}
	}
	return r
}

func failureOf(path string, err error) *domain.FileFailure {
	code := domain.Code(err)
	if code == "" {
		code = domain.ErrCodeIO
	}
	logger := logging.GetLogger("scheduler")
	logger.Warn().Err(err).Str("path", path).Msg("指纹计算失败，本次运行排除该文件")
	return &domain.FileFailure{Path: path, Code: code, Reason: err.Error()}
}

// milestones 把进度压缩为粗粒度里程碑（每 step%，以及 100%）。
type milestones struct {
	total int64
	step  int
	last  int
	full  bool
}

func newMilestones(total int64, step int) *milestones {
	return &milestones{total: total, step: step}
}

// reached 报告 done 是否越过了新的里程碑；每个里程碑只报告一次。
func (m *milestones) reached(done int64) bool {
	if m.total <= 0 {
		return false
	}
	if done >= m.total {
		if m.full {
			return false
		}
		m.full = true
		return true
	}
	bucket := int(done*100/m.total) / m.step
	if bucket <= m.last {
		return false
	}
	m.last = bucket
	return true
}
