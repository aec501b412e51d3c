package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/dupfind/internal/domain"
	"github.com/John-Robertt/dupfind/internal/infra/fsx"
)

const (
	TreeFile = "duplicates_tree.txt"
	JSONFile = "audit.json"
	YAMLFile = "audit.yaml"
)

// Format 是报告产物格式。
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText, "tree", "txt":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("未知报告格式 %q（可选：text|json|yaml）", s)
	}
}

// WriteTree 输出重复组文本清单：
//
//	重复组 N:
//	  <path>
//	  <path>
//	（空行）
//
// 组按 ID 升序，组内路径按成员顺序。
func WriteTree(w io.Writer, rec domain.AuditRecord) error {
	for _, g := range rec.Groups {
		if _, err := fmt.Fprintf(w, "重复组 %d:\n", g.ID); err != nil {
			return err
		}
		for _, p := range g.Members {
			if _, err := fmt.Fprintf(w, "  %s\n", p); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Encode 把记录编码为指定格式。
func Encode(rec domain.AuditRecord, f Format) ([]byte, error) {
	switch f {
	case FormatText:
		var buf bytes.Buffer
		if err := WriteTree(&buf, rec); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatJSON:
		b, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("未知报告格式 %q", f)
	}
}

// FileName 返回格式对应的产物文件名。
func FileName(f Format) string {
	switch f {
	case FormatJSON:
		return JSONFile
	case FormatYAML:
		return YAMLFile
	default:
		return TreeFile
	}
}

// WriteFiles 把记录按 formats 原子写入 dir，返回写出的绝对路径（顺序同 formats）。
func WriteFiles(fsys afero.Fs, dir string, rec domain.AuditRecord, formats []Format) ([]string, error) {
	written := make([]string, 0, len(formats))
	for _, f := range formats {
		b, err := Encode(rec, f)
		if err != nil {
			return written, err
		}
		name := FileName(f)
		if err := fsx.WriteFileAtomic(fsys, dir, name, b); err != nil {
			return written, fmt.Errorf("写入报告 %s 失败：%w", name, err)
		}
		written = append(written, filepath.Join(dir, name))
	}
	return written, nil
}
