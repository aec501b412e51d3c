package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/dupfind/internal/app/run"
	"github.com/John-Robertt/dupfind/internal/audit"
	"github.com/John-Robertt/dupfind/internal/config"
	"github.com/John-Robertt/dupfind/internal/domain"
)

func newScanCmd(c *cli) *cobra.Command {
	var (
		configPath string
		format     string
	)
	cmd := &cobra.Command{
		Use:   "scan [root...]",
		Short: "只查找并预演（永不修改文件），把结果输出到 stdout",
		RunE: func(cmd *cobra.Command, roots []string) error {
			args, err := cliArgs(cmd, roots, configPath)
			if err != nil {
				return err
			}
			f, err := audit.ParseFormat(format)
			if err != nil {
				return usageError(err)
			}
			args.Flags["apply"] = false

			eff, err := loadConfig(c, args)
			if err != nil {
				return err
			}
			res, err := run.ExecuteWithObserver(cmd.Context(), c.fs, eff, c.observer())
			if err != nil {
				return fatalError(err)
			}
			if err := writeRecord(c, res.Record, f); err != nil {
				return fatalError(err)
			}
			c.renderer().summary(res.Record)
			return exitFor(res.Record)
		},
	}
	addEngineFlags(cmd, &configPath)
	cmd.Flags().StringVarP(&format, "format", "f", string(audit.FormatText), "stdout 输出格式：text|json|yaml")
	return cmd
}

func newRunCmd(c *cli) *cobra.Command {
	var (
		configPath string
		yes        bool
	)
	cmd := &cobra.Command{
		Use:   "run [root...]",
		Short: "查找并处理重复文件（未指定 --apply 时为 dry-run）",
		RunE: func(cmd *cobra.Command, roots []string) error {
			args, err := cliArgs(cmd, roots, configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("apply") {
				apply, _ := cmd.Flags().GetBool("apply")
				args.Flags["apply"] = apply
			}
			eff, err := loadConfig(c, args)
			if err != nil {
				return err
			}

			if eff.Apply && !yes {
				ok, err := c.gate(cmd, eff)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
			}

			res, err := run.ExecuteWithObserver(cmd.Context(), c.fs, eff, c.observer())
			if err != nil {
				return fatalError(err)
			}
			r := c.renderer()
			r.summary(res.Record)
			r.failures(res.Record)
			for _, p := range res.Reports {
				fmt.Fprintf(c.stderr, "report: %s\n", p)
			}
			if res.ReportErr != nil {
				return fatalError(res.ReportErr)
			}
			if !eff.Apply {
				// dry-run 不落盘，把树形清单打印出来供确认。
				if err := audit.WriteTree(c.stdout, res.Record); err != nil {
					return fatalError(err)
				}
			}
			return exitFor(res.Record)
		},
	}
	addEngineFlags(cmd, &configPath)
	cmd.Flags().Bool("apply", false, "真正执行动作（默认 dry-run）；--apply=false 可覆盖配置文件中的 apply=true")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "跳过执行前确认")
	return cmd
}

func newConfigCmd(c *cli) *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "config [root...]",
		Short: "输出合并后的最终配置（TOML）",
		RunE: func(cmd *cobra.Command, roots []string) error {
			args, err := cliArgs(cmd, roots, configPath)
			if err != nil {
				return err
			}
			eff, err := loadConfig(c, args)
			if err != nil {
				return err
			}
			b, err := config.RenderTOML(eff)
			if err != nil {
				return fatalError(err)
			}
			for _, s := range eff.Sources {
				fmt.Fprintf(c.stdout, "# source: %s\n", s)
			}
			_, err = c.stdout.Write(b)
			return err
		},
	}
	addEngineFlags(cmd, &configPath)
	return cmd
}

// gate 是执行前的 Y/N 确认：先 dry-run 一遍展示将要处理的文件。
// 返回 false 表示不继续（提示已输出）；非交互终端没有 --yes 时直接拒绝。
func (c *cli) gate(cmd *cobra.Command, eff config.EffectiveConfig) (bool, error) {
	if !c.interactive {
		return false, usageError(errors.New("非交互终端执行 apply 需要 --yes"))
	}
	preview := eff
	preview.Apply = false
	res, err := run.ExecuteWithObserver(cmd.Context(), c.fs, preview, c.observer())
	if err != nil {
		return false, fatalError(err)
	}
	if len(res.Groups) == 0 {
		fmt.Fprintln(c.stderr, "没有发现重复文件。")
		return false, nil
	}
	if err := audit.WriteTree(c.stdout, res.Record); err != nil {
		return false, fatalError(err)
	}

	var acting int
	for _, e := range res.Record.Entries {
		if e.GroupID > 0 && e.Outcome != domain.OutcomeRetained && e.Outcome != domain.OutcomeFailed {
			acting++
		}
	}
	if acting == 0 {
		fmt.Fprintln(c.stderr, "所有重复组都无需处理。")
		return false, nil
	}
	ok, err := c.confirm(fmt.Sprintf("共 %d 个重复组，将对 %d 个文件执行 %s，继续？", len(res.Groups), acting, eff.Mode))
	if err != nil {
		return false, fatalError(err)
	}
	if !ok {
		fmt.Fprintln(c.stderr, "已取消，没有修改任何文件。")
	}
	return ok, nil
}

func (c *cli) observer() run.Observer {
	if !c.interactive {
		return nil
	}
	return newProgressUI(c.stderr)
}

func (c *cli) renderer() *renderer { return newRenderer(c.stderr, c.color) }

func writeRecord(c *cli, rec domain.AuditRecord, f audit.Format) error {
	if f == audit.FormatText {
		return audit.WriteTree(c.stdout, rec)
	}
	b, err := audit.Encode(rec, f)
	if err != nil {
		return err
	}
	_, err = c.stdout.Write(b)
	return err
}

func exitFor(rec domain.AuditRecord) error {
	if rec.Summary.Failed > 0 {
		return &exitError{code: exitFailed}
	}
	return nil
}
