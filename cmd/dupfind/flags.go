package main

import (
	"github.com/spf13/cobra"

	"github.com/John-Robertt/dupfind/internal/config"
)

type flagKind int

const (
	kindString flagKind = iota
	kindBool
	kindInt
	kindInt64
	kindStrings
)

// engineFlag 把一个 CLI flag 映射到配置键。只有用户显式指定的 flag 才会进入 CLIArgs.Flags。
type engineFlag struct {
	name  string
	key   string
	kind  flagKind
	usage string
}

var engineFlags = []engineFlag{
	{"mode", "mode", kindString, "对非保留成员的动作：move|delete|copy"},
	{"dest", "destination", kindString, "move/copy 的目标目录（相对路径相对第一个根目录）"},
	{"concurrency", "concurrency", kindInt, "指纹计算并发数（1..32）"},
	{"include-subdirs", "include_subdirs", kindBool, "递归扫描子目录"},
	{"approx", "approx", kindBool, "额外按图片感知摘要分组"},
	{"exact-policy", "exact_policy", kindString, "exact 组保留策略：oldest|shortest|skip"},
	{"approx-policy", "approx_policy", kindString, "approx 组保留策略：oldest|shortest|skip"},
	{"exclude", "exclude_dirs", kindStrings, "排除的目录（可重复；相对路径相对每个根目录）"},
	{"min-size", "min_size", kindInt64, "忽略小于该字节数的文件"},
	{"image-ext", "image_exts", kindStrings, "按扩展名归类为图片（可重复，例如 .heic）"},
	{"chunk-size", "chunk_size", kindInt, "读取块大小（字节）"},
	{"cache", "cache", kindBool, "启用摘要缓存"},
	{"cache-file", "cache_file", kindString, "摘要缓存文件路径"},
	{"progress-step", "progress_step", kindInt, "进度里程碑间隔（百分比）"},
	{"reports", "reports", kindStrings, "apply 时写出的报告：text|json|yaml（可重复）"},
	{"report-dir", "report_dir", kindString, "报告目录（默认同目标目录）"},
	{"overrides", "overrides", kindString, "手工保留覆盖文件（YAML）"},
}

// addEngineFlags 注册扫描/处理相关的 flag；默认值只用于帮助文本，真实默认值来自配置层。
func addEngineFlags(cmd *cobra.Command, configPath *string) {
	f := cmd.Flags()
	f.StringVarP(configPath, "config", "c", "", "配置文件（.toml/.yaml）；默认读取 <第一个根目录>/dupfind.toml")
	for _, ef := range engineFlags {
		switch ef.kind {
		case kindString:
			f.String(ef.name, "", ef.usage)
		case kindBool:
			f.Bool(ef.name, false, ef.usage)
		case kindInt:
			f.Int(ef.name, 0, ef.usage)
		case kindInt64:
			f.Int64(ef.name, 0, ef.usage)
		case kindStrings:
			f.StringSlice(ef.name, nil, ef.usage)
		}
	}
}

// cliArgs 收集位置参数与显式指定的 flag。
func cliArgs(cmd *cobra.Command, roots []string, configPath string) (config.CLIArgs, error) {
	f := cmd.Flags()
	flags := map[string]any{}
	for _, ef := range engineFlags {
		if !f.Changed(ef.name) {
			continue
		}
		var (
			v   any
			err error
		)
		switch ef.kind {
		case kindString:
			v, err = f.GetString(ef.name)
		case kindBool:
			v, err = f.GetBool(ef.name)
		case kindInt:
			v, err = f.GetInt(ef.name)
		case kindInt64:
			v, err = f.GetInt64(ef.name)
		case kindStrings:
			v, err = f.GetStringSlice(ef.name)
		}
		if err != nil {
			return config.CLIArgs{}, usageError(err)
		}
		flags[ef.key] = v
	}
	return config.CLIArgs{Roots: roots, ConfigPath: configPath, Flags: flags}, nil
}

// loadConfig 合并配置；配置错误统一映射为用法错误。
func loadConfig(c *cli, args config.CLIArgs) (config.EffectiveConfig, error) {
	cwd, err := c.cwd()
	if err != nil {
		return config.EffectiveConfig{}, fatalError(err)
	}
	eff, err := config.LoadEffective(cwd, args)
	if err != nil {
		return config.EffectiveConfig{}, fatalError(err)
	}
	return eff, nil
}
