package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/John-Robertt/dupfind/internal/domain"
)

// renderer 输出运行摘要。color=false 时退化为纯文本（非终端、NO_COLOR）。
type renderer struct {
	w io.Writer

	title lipgloss.Style
	good  lipgloss.Style
	bad   lipgloss.Style
	dim   lipgloss.Style
}

func newRenderer(w io.Writer, color bool) *renderer {
	profile := termenv.Ascii
	if color {
		profile = termenv.EnvColorProfile()
	}
	lr := lipgloss.NewRenderer(w, termenv.WithProfile(profile))
	return &renderer{
		w:     w,
		title: lr.NewStyle().Bold(true),
		good:  lr.NewStyle().Foreground(lipgloss.Color("2")),
		bad:   lr.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		dim:   lr.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

func (r *renderer) summary(rec domain.AuditRecord) {
	s := rec.Summary
	mode := "apply"
	if rec.DryRun {
		mode = "dry-run"
	}
	failed := r.good.Render(fmt.Sprintf("failed=%d", s.Failed))
	if s.Failed > 0 {
		failed = r.bad.Render(fmt.Sprintf("failed=%d", s.Failed))
	}
	fmt.Fprintf(r.w, "%s groups=%d retained=%d moved=%d copied=%d deleted=%d %s %s\n",
		r.title.Render("完成"),
		s.Groups, s.Retained, s.Moved, s.Copied, s.Deleted,
		failed,
		r.dim.Render("("+mode+", run "+rec.RunID+")"),
	)
}

// failures 逐行列出 failed 条目：路径、错误码、原因。
func (r *renderer) failures(rec domain.AuditRecord) {
	for _, e := range rec.Entries {
		if e.Outcome != domain.OutcomeFailed {
			continue
		}
		group := "-"
		if e.GroupID > 0 {
			group = fmt.Sprintf("%d", e.GroupID)
		}
		fmt.Fprintf(r.w, "  %s [%s] %s: %s\n", r.bad.Render("FAIL"), group, e.Path, r.dim.Render(e.Code+" "+e.Reason))
	}
}
