package config

import (
	"github.com/pelletier/go-toml/v2"
)

// tomlView 是 EffectiveConfig 的可打印视图（键名与配置文件一致，可直接回填到 dupfind.toml）。
type tomlView struct {
	Roots          []string `toml:"roots"`
	Concurrency    int      `toml:"concurrency"`
	IncludeSubdirs bool     `toml:"include_subdirs"`
	Mode           string   `toml:"mode"`
	Destination    string   `toml:"destination"`
	Apply          bool     `toml:"apply"`
	Approx         bool     `toml:"approx"`
	ExactPolicy    string   `toml:"exact_policy"`
	ApproxPolicy   string   `toml:"approx_policy"`
	ExcludeDirs    []string `toml:"exclude_dirs"`
	MinSize        int64    `toml:"min_size"`
	ImageExts      []string `toml:"image_exts"`
	ChunkSize      int      `toml:"chunk_size"`
	Cache          bool     `toml:"cache"`
	CacheFile      string   `toml:"cache_file"`
	ProgressStep   int      `toml:"progress_step"`
	Reports        []string `toml:"reports"`
	ReportDir      string   `toml:"report_dir"`
	Overrides      string   `toml:"overrides,omitempty"`
}

// RenderTOML 把最终配置渲染为 TOML。
func RenderTOML(eff EffectiveConfig) ([]byte, error) {
	reports := make([]string, 0, len(eff.Reports))
	for _, r := range eff.Reports {
		reports = append(reports, string(r))
	}
	v := tomlView{
		Roots:          eff.Roots,
		Concurrency:    eff.Concurrency,
		IncludeSubdirs: eff.IncludeSubdirs,
		Mode:           string(eff.Mode),
		Destination:    eff.Destination,
		Apply:          eff.Apply,
		Approx:         eff.Approx,
		ExactPolicy:    string(eff.ExactPolicy),
		ApproxPolicy:   string(eff.ApproxPolicy),
		ExcludeDirs:    nonNil(eff.ExcludeDirs),
		MinSize:        eff.MinSize,
		ImageExts:      nonNil(eff.ImageExts),
		ChunkSize:      eff.ChunkSize,
		Cache:          eff.Cache,
		CacheFile:      eff.CacheFile,
		ProgressStep:   eff.ProgressStep,
		Reports:        reports,
		ReportDir:      eff.ReportDir,
		Overrides:      eff.OverridesFile,
	}
	return toml.Marshal(v)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
