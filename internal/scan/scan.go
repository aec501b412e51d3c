package scan

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/John-Robertt/dupfind/internal/domain"
	"github.com/John-Robertt/dupfind/internal/infra/imgx"
	"github.com/John-Robertt/dupfind/internal/logging"
)

// Options 控制枚举范围。零值表示：只扫根目录本层、不排除、不限大小、默认图片扩展名。
type Options struct {
	IncludeSubdirs bool

	// ExcludeDirs 中的相对路径相对每个 root 解析；绝对路径按原样排除。
	ExcludeDirs []string
	// Destination 是动作目标目录，永远不参与扫描（否则上一轮移走的文件会被再次分组）。
	Destination string

	MinSize   int64
	ImageExts []string

	// Progress 可选；每发现一个文件计数一次。
	Progress *domain.Progress
}

// Walk 依次枚举 roots 下的普通文件，每个文件调用一次 fn（惰性、有限、不可重启）。
//
// 规则（硬约束）：
// - 只做 stat，不读内容
// - 只产出普通文件；符号链接、设备文件等一律跳过
// - 多个 root 互相嵌套时，同一路径只产出一次
// - root 本身不可访问时返回错误；子目录不可读只记日志并跳过
// - fn 返回错误或 ctx 取消时立即停止
func Walk(ctx context.Context, fsys afero.Fs, roots []string, opt Options, fn func(domain.FileEntry) error) error {
	logger := logging.GetLogger("scan")
	seen := make(map[string]struct{}, 256)

	for _, r := range roots {
		root, err := absClean(r)
		if err != nil {
			return err
		}
		fi, err := fsys.Stat(root)
		if err != nil {
			return fmt.Errorf("扫描根目录不可访问：%q：%w", root, err)
		}
		if !fi.IsDir() {
			return fmt.Errorf("扫描根目录不是目录：%q", root)
		}
		excluded := buildExcluded(root, opt.Destination, opt.ExcludeDirs)

		err = afero.Walk(fsys, root, func(path string, info os.FileInfo, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if walkErr != nil {
				if path == root {
					return walkErr
				}
				logger.Warn().Err(walkErr).Str("path", path).Msg("跳过不可读路径")
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}

			if isExcluded(path, excluded) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				if path != root && !opt.IncludeSubdirs {
					return filepath.SkipDir
				}
				return nil
			}
			if !info.Mode().IsRegular() || info.Size() < opt.MinSize {
				return nil
			}

			path = filepath.Clean(path)
			if _, dup := seen[path]; dup {
				return nil
			}
			seen[path] = struct{}{}

			if opt.Progress != nil {
				opt.Progress.AddDiscovered(1)
			}
			return fn(domain.FileEntry{
				Path:      path,
				Size:      info.Size(),
				CreatedAt: createdAt(path, info),
				ModTime:   info.ModTime(),
				Image:     imgx.IsImageExt(path, opt.ImageExts),
			})
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Files 收集 Walk 的全部结果，并按 Path 排序（保证输出稳定）。
func Files(ctx context.Context, fsys afero.Fs, roots []string, opt Options) ([]domain.FileEntry, error) {
	files := make([]domain.FileEntry, 0, 128)
	err := Walk(ctx, fsys, roots, opt, func(e domain.FileEntry) error {
		files = append(files, e)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.Error{Code: domain.ErrCodeCanceled, Err: err}
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func absClean(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("扫描根目录不能为空")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

func buildExcluded(root, dest string, excludeDirs []string) []string {
	excluded := make([]string, 0, 1+len(excludeDirs))
	if dest = strings.TrimSpace(dest); dest != "" {
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(root, dest)
		}
		excluded = append(excluded, filepath.Clean(dest))
	}
	for _, x := range excludeDirs {
		x = strings.TrimSpace(x)
		if x == "" {
			continue
		}
		if filepath.IsAbs(x) {
			excluded = append(excluded, filepath.Clean(x))
			continue
		}
		excluded = append(excluded, filepath.Clean(filepath.Join(root, x)))
	}
	sort.Strings(excluded)
	return excluded
}

func isExcluded(path string, excluded []string) bool {
	path = filepath.Clean(path)
	for _, base := range excluded {
		if isUnder(path, base) {
			return true
		}
	}
	return false
}

func isUnder(path, base string) bool {
	if path == base {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, strings.TrimSuffix(base, sep)+sep)
}
