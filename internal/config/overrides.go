package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// overridesFile 是手工保留覆盖文件的结构：
//
//	groups:
//	  3:
//	    - /photos/a.jpg
//	    - /photos/b.jpg
//
// 组号来自同一文件集上一次 scan 的报告；列表即该组的保留集合，原样采用。
type overridesFile struct {
	Groups map[int][]string `yaml:"groups"`
}

// LoadOverrides 读取覆盖文件。路径必须是绝对路径；列表为空会原样保留（运行时按 policy_violation 拒绝）。
func LoadOverrides(path string) (map[int][]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &Error{Code: ErrCodeNotFound, Path: path, Err: err}
		}
		return nil, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}

	var of overridesFile
	if err := yaml.Unmarshal(b, &of); err != nil {
		return nil, &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}

	out := make(map[int][]string, len(of.Groups))
	for id, paths := range of.Groups {
		if id <= 0 {
			return nil, &Error{Code: ErrCodeInvalid, Path: path, Err: fmt.Errorf("组号必须为正整数：%d", id)}
		}
		clean := make([]string, 0, len(paths))
		for _, p := range paths {
			p = strings.TrimSpace(p)
			if !filepath.IsAbs(p) {
				return nil, &Error{Code: ErrCodeInvalid, Path: path, Err: fmt.Errorf("组 %d 的路径必须是绝对路径：%q", id, p)}
			}
			clean = append(clean, filepath.Clean(p))
		}
		out[id] = clean
	}
	return out, nil
}
