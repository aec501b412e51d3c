package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/John-Robertt/dupfind/internal/app/run"
	"github.com/John-Robertt/dupfind/internal/config"
	"github.com/John-Robertt/dupfind/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出：阶段摘要逐行打印，指纹阶段用进度条。
//
// - 所有过程信息写到 stderr，不污染 stdout 的报告
// - 事件驱动：run 层只发事件，CLI 决定如何展示
type progressUI struct {
	w io.Writer

	mu        sync.Mutex
	startedAt time.Time
	bar       *pterm.ProgressbarPrinter
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{w: w}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.startedAt = now

	mode := "dry-run"
	hint := "（不移动/不删除/不写入）"
	if eff.Apply {
		mode = "apply"
		hint = ""
	}
	fmt.Fprintf(p.w, "[%s] dupfind (%s)%s\n", now.Format("15:04:05"), mode, hint)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  roots: %s\n", strings.Join(eff.Roots, ", "))
	fmt.Fprintf(p.w, "  mode: %s\n", eff.Mode)
	if eff.Mode.NeedsDestination() {
		fmt.Fprintf(p.w, "  destination: %s\n", eff.Destination)
	}
	fmt.Fprintf(p.w, "  policy: exact=%s approx=%s (approx %s)\n", eff.ExactPolicy, eff.ApproxPolicy, onOff(eff.Approx))
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	if len(eff.ExcludeDirs) > 0 {
		fmt.Fprintf(p.w, "  exclude_dirs: %s\n", strings.Join(eff.ExcludeDirs, ", "))
	}
	if eff.OverridesFile != "" {
		fmt.Fprintf(p.w, "  overrides: %s (%d 组)\n", eff.OverridesFile, len(eff.Overrides))
	}
	fmt.Fprintln(p.w)
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name == "fingerprint" {
		p.stopBar()
	}
	switch name {
	case "scan":
		fmt.Fprintf(p.w, "扫描: files=%d (%s)\n", intField(fields, "files"), formatShortDuration(dur))
	case "fingerprint":
		fmt.Fprintf(p.w, "指纹: tasks=%d failed=%d unsupported=%d (%s)\n",
			intField(fields, "tasks"), intField(fields, "failed"), intField(fields, "unsupported"), formatShortDuration(dur),
		)
	case "group":
		fmt.Fprintf(p.w, "分组: exact=%d approx=%d (%s)\n",
			intField(fields, "exact"), intField(fields, "approx"), formatShortDuration(dur),
		)
	case "resolve":
		fmt.Fprintf(p.w, "决策: groups=%d manual=%d (%s)\n",
			intField(fields, "groups"), intField(fields, "manual"), formatShortDuration(dur),
		)
	case "plan":
		fmt.Fprintf(p.w, "规划: groups=%d (%s)\n\n", intField(fields, "groups"), formatShortDuration(dur))
	case "execute":
		fmt.Fprintf(p.w, "\n执行: retained=%d moved=%d copied=%d deleted=%d failed=%d (%s, 总计 %s)\n",
			intField(fields, "retained"),
			intField(fields, "moved"),
			intField(fields, "copied"),
			intField(fields, "deleted"),
			intField(fields, "failed"),
			formatShortDuration(dur),
			formatElapsed(time.Since(p.startedAt)),
		)
	default:
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}
}

// OnProgress 只在里程碑上触发；进度条按已完成的任务数前进。
func (p *progressUI) OnProgress(s domain.ScanProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.TasksTotal <= 0 {
		return
	}
	if p.bar == nil {
		bar, err := pterm.DefaultProgressbar.
			WithTotal(int(s.TasksTotal)).
			WithTitle("指纹").
			WithWriter(p.w).
			WithShowElapsedTime(false).
			Start()
		if err != nil {
			fmt.Fprintf(p.w, "进度: %3d%% (%d/%d)\n", s.Percent(), s.FilesFingerprinted, s.TasksTotal)
			return
		}
		p.bar = bar
	}
	if d := int(s.FilesFingerprinted) - p.bar.Current; d > 0 {
		// 到达 Total 时 pterm 会自动 Stop。
		p.bar.Add(d)
	}
}

func (p *progressUI) stopBar() {
	if p.bar == nil {
		return
	}
	if p.bar.IsActive {
		_, _ = p.bar.Stop()
	}
	p.bar = nil
}

func (p *progressUI) OnGroupDone(idx, total int, g domain.DuplicateGroup, entries []domain.AuditEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var acted, retained, failed int
	for _, e := range entries {
		switch e.Outcome {
		case domain.OutcomeRetained:
			retained++
		case domain.OutcomeFailed:
			failed++
		default:
			acted++
		}
	}
	status := "OK"
	if failed > 0 {
		status = "FAIL"
	}
	fmt.Fprintf(p.w, "[%d/%d] 重复组 %d %s %s members=%d retained=%d acted=%d failed=%d\n",
		idx, total, g.ID, g.KeyType, status, len(g.Members), retained, acted, failed,
	)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	switch x := fields[key].(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}
