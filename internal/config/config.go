package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/John-Robertt/dupfind/internal/app/policy"
	"github.com/John-Robertt/dupfind/internal/app/scheduler"
	"github.com/John-Robertt/dupfind/internal/audit"
	"github.com/John-Robertt/dupfind/internal/domain"
	"github.com/John-Robertt/dupfind/internal/fingerprint"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingRoots 表示 CLI 与配置文件都没有给出扫描根目录。
	ErrCodeMissingRoots = "config_missing_roots"
)

const (
	// RootConfigName 是根目录下的可选配置文件名。
	RootConfigName = "dupfind.toml"
	// DefaultDestName 是默认目标目录名（位于第一个根目录下）。
	DefaultDestName = "待处理重复文件"
	// EnvPrefix 是环境变量前缀：DUPFIND_MODE=delete 对应键 mode。
	EnvPrefix = "DUPFIND_"
)

// CLIArgs 是 CLI 入口参数。Flags 只包含用户显式指定的 flag（键名同配置键），
// 这样 --apply=false 才能覆盖配置文件中的 apply=true。
type CLIArgs struct {
	Roots      []string
	ConfigPath string
	Flags      map[string]any
}

// fileConfig 是 koanf 合并后的原始结构（字段名即配置键）。
type fileConfig struct {
	Roots          []string `koanf:"roots"`
	Concurrency    int      `koanf:"concurrency"`
	IncludeSubdirs bool     `koanf:"include_subdirs"`
	Mode           string   `koanf:"mode"`
	Destination    string   `koanf:"destination"`
	Apply          bool     `koanf:"apply"`
	Approx         bool     `koanf:"approx"`
	ExactPolicy    string   `koanf:"exact_policy"`
	ApproxPolicy   string   `koanf:"approx_policy"`
	ExcludeDirs    []string `koanf:"exclude_dirs"`
	MinSize        int64    `koanf:"min_size"`
	ImageExts      []string `koanf:"image_exts"`
	ChunkSize      int      `koanf:"chunk_size"`
	Cache          bool     `koanf:"cache"`
	CacheFile      string   `koanf:"cache_file"`
	ProgressStep   int      `koanf:"progress_step"`
	Reports        []string `koanf:"reports"`
	ReportDir      string   `koanf:"report_dir"`
	Overrides      string   `koanf:"overrides"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Roots []string

	Concurrency    int
	IncludeSubdirs bool
	Mode           domain.Mode
	Destination    string
	Apply          bool

	Approx       bool
	ExactPolicy  domain.Strategy
	ApproxPolicy domain.Strategy

	ExcludeDirs []string
	MinSize     int64
	ImageExts   []string
	ChunkSize   int

	Cache     bool
	CacheFile string

	ProgressStep int
	Reports      []audit.Format
	ReportDir    string

	// Overrides 是手工保留集合：groupId → 路径列表（原样采用）。
	OverridesFile string
	Overrides     map[int][]string

	// Sources 记录实际加载的配置文件（按加载顺序），用于诊断输出。
	Sources []string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingRoots:
		return fmt.Sprintf("%s：没有指定扫描根目录（命令行参数或配置键 roots）", e.Code)
	case ErrCodeInvalid:
		if e.Path != "" && e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func defaults() map[string]any {
	return map[string]any{
		"concurrency":     scheduler.DefaultConcurrency,
		"include_subdirs": true,
		"mode":            string(domain.ModeMove),
		"destination":     "",
		"apply":           false,
		"approx":          false,
		"exact_policy":    string(policy.DefaultStrategy(domain.KeyExact)),
		"approx_policy":   string(policy.DefaultStrategy(domain.KeyApprox)),
		"exclude_dirs":    []string{},
		"min_size":        0,
		"image_exts":      []string{},
		"chunk_size":      fingerprint.DefaultChunkSize,
		"cache":           false,
		"cache_file":      "",
		"progress_step":   scheduler.DefaultProgressStep,
		"reports":         []string{string(audit.FormatText), string(audit.FormatJSON)},
		"report_dir":      "",
		"overrides":       "",
	}
}

// UserConfigPath 返回 $XDG_CONFIG_HOME/dupfind/config.toml。
func UserConfigPath() string {
	xdg.Reload()
	return filepath.Join(xdg.ConfigHome, "dupfind", "config.toml")
}

// DefaultCacheFile 返回 $XDG_CACHE_HOME/dupfind/digests.json。
func DefaultCacheFile() string {
	xdg.Reload()
	return filepath.Join(xdg.CacheHome, "dupfind", "digests.json")
}

// LoadEffective 按约定发现并读取配置，然后与 CLI 参数合并为最终配置。
//
// 覆盖优先级（固定，后者覆盖前者）：
// 1) 内置默认值
// 2) 用户配置 $XDG_CONFIG_HOME/dupfind/config.toml（可选）
// 3) --config 指定的文件（必须存在），否则 <第一个根目录>/dupfind.toml（可选）
// 4) 环境变量 DUPFIND_*
// 5) CLI 显式指定的 flag
//
// 根目录：CLI 位置参数 > 配置键 roots；两者都没有时返回 config_missing_roots。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: err}
	}

	var sources []string
	if p := UserConfigPath(); fileExists(p) {
		if err := loadFile(k, p); err != nil {
			return EffectiveConfig{}, err
		}
		sources = append(sources, p)
	}

	explicit := strings.TrimSpace(cli.ConfigPath)
	if explicit != "" {
		p := absCleanFrom(cwdAbs, explicit)
		if !fileExists(p) {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: p, Err: os.ErrNotExist}
		}
		if err := loadFile(k, p); err != nil {
			return EffectiveConfig{}, err
		}
		sources = append(sources, p)
	}

	// 根目录决定了根目录配置文件的位置，因此要在加载它之前确定。
	rawRoots := cli.Roots
	if len(rawRoots) == 0 {
		rawRoots = k.Strings("roots")
	}
	if len(rawRoots) == 0 {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingRoots}
	}
	roots := make([]string, 0, len(rawRoots))
	for _, r := range rawRoots {
		if strings.TrimSpace(r) == "" {
			continue
		}
		roots = append(roots, absCleanFrom(cwdAbs, r))
	}
	if len(roots) == 0 {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingRoots}
	}

	if explicit == "" {
		if p := filepath.Join(roots[0], RootConfigName); fileExists(p) {
			if err := loadFile(k, p); err != nil {
				return EffectiveConfig{}, err
			}
			sources = append(sources, p)
		}
	}

	err = k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: fmt.Errorf("读取环境变量失败：%w", err)}
	}

	if len(cli.Flags) > 0 {
		if err := k.Load(confmap.Provider(cli.Flags, "."), nil); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: err}
		}
	}

	var fc fileConfig
	uc := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &fc,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &fc, uc); err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Err: err}
	}

	eff, err := normalize(cwdAbs, roots, fc)
	if err != nil {
		return EffectiveConfig{}, err
	}
	eff.Sources = sources
	return eff, nil
}

func normalize(cwd string, roots []string, fc fileConfig) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Err: fmt.Errorf(format, args...)}
	}

	mode, err := domain.ParseMode(fc.Mode)
	if err != nil {
		return EffectiveConfig{}, invalid("%v", err)
	}
	exactPolicy, err := policy.ParseStrategy(fc.ExactPolicy)
	if err != nil {
		return EffectiveConfig{}, invalid("exact_policy：%v", err)
	}
	approxPolicy, err := policy.ParseStrategy(fc.ApproxPolicy)
	if err != nil {
		return EffectiveConfig{}, invalid("approx_policy：%v", err)
	}
	if fc.MinSize < 0 {
		return EffectiveConfig{}, invalid("min_size 不能为负数：%d", fc.MinSize)
	}

	// 约定范围 [1, 32]；超出截断。
	concurrency := fc.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > scheduler.MaxConcurrency {
		concurrency = scheduler.MaxConcurrency
	}

	chunk := fc.ChunkSize
	if chunk < fingerprint.MinChunkSize {
		chunk = fingerprint.MinChunkSize
	}
	if chunk > fingerprint.MaxChunkSize {
		chunk = fingerprint.MaxChunkSize
	}

	step := fc.ProgressStep
	if step < 1 || step > 100 {
		return EffectiveConfig{}, invalid("progress_step 必须在 [1, 100]：%d", step)
	}

	reports := make([]audit.Format, 0, len(fc.Reports))
	seen := map[audit.Format]struct{}{}
	for _, r := range fc.Reports {
		if strings.TrimSpace(r) == "" {
			continue
		}
		f, err := audit.ParseFormat(r)
		if err != nil {
			return EffectiveConfig{}, invalid("reports：%v", err)
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		reports = append(reports, f)
	}

	dest := strings.TrimSpace(fc.Destination)
	if dest == "" {
		dest = filepath.Join(roots[0], DefaultDestName)
	} else {
		dest = absCleanFrom(roots[0], dest)
	}
	reportDir := strings.TrimSpace(fc.ReportDir)
	if reportDir == "" {
		reportDir = dest
	} else {
		reportDir = absCleanFrom(cwd, reportDir)
	}
	cacheFile := strings.TrimSpace(fc.CacheFile)
	if cacheFile == "" {
		cacheFile = DefaultCacheFile()
	} else {
		cacheFile = absCleanFrom(cwd, cacheFile)
	}

	exts := make([]string, 0, len(fc.ImageExts))
	for _, e := range fc.ImageExts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}

	eff := EffectiveConfig{
		Roots:          roots,
		Concurrency:    concurrency,
		IncludeSubdirs: fc.IncludeSubdirs,
		Mode:           mode,
		Destination:    dest,
		Apply:          fc.Apply,
		Approx:         fc.Approx,
		ExactPolicy:    exactPolicy,
		ApproxPolicy:   approxPolicy,
		ExcludeDirs:    append([]string(nil), fc.ExcludeDirs...),
		MinSize:        fc.MinSize,
		ImageExts:      exts,
		ChunkSize:      chunk,
		Cache:          fc.Cache,
		CacheFile:      cacheFile,
		ProgressStep:   step,
		Reports:        reports,
		ReportDir:      reportDir,
	}

	if p := strings.TrimSpace(fc.Overrides); p != "" {
		eff.OverridesFile = absCleanFrom(cwd, p)
		ov, err := LoadOverrides(eff.OverridesFile)
		if err != nil {
			return EffectiveConfig{}, err
		}
		eff.Overrides = ov
	}
	return eff, nil
}

// loadFile 按扩展名选择解析器（.toml / .yaml / .yml）。
func loadFile(k *koanf.Koanf, path string) error {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		parser = toml.Parser()
	case ".yaml", ".yml":
		parser = yaml.Parser()
	default:
		return &Error{Code: ErrCodeInvalid, Path: path, Err: fmt.Errorf("不支持的配置文件格式（只支持 .toml/.yaml）")}
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}
	return nil
}

func fileExists(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
