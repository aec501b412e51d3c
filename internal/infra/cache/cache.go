package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"

	"github.com/John-Robertt/dupfind/internal/domain"
	"github.com/John-Robertt/dupfind/internal/infra/fsx"
)

// Version 是缓存文件格式版本；不一致时整体丢弃重建。
const Version = 1

var ErrReadOnly = errors.New("cache: read-only")

// Entry 是单个文件的摘要缓存。只有 (Size, ModNs) 与当前快照完全一致时才算命中。
type Entry struct {
	Size  int64  `json:"size"`
	ModNs int64  `json:"mod_ns"`
	Exact string `json:"exact,omitempty"`
	// Approx 为空且 NoApprox=true 表示“已判定不是可解码图片”，同样可以复用。
	Approx   string `json:"approx,omitempty"`
	NoApprox bool   `json:"no_approx,omitempty"`
}

type fileFormat struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// Store 是按路径索引的摘要缓存（JSON 文件）。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true），Save 返回 ErrReadOnly
// - 并发安全：scheduler 的多个 worker 会同时读写
// - Save 只写出本次运行触达过的路径，已消失的文件自然淘汰
type Store struct {
	Path     string
	ReadOnly bool

	fs      afero.Fs
	mu      sync.Mutex
	entries map[string]Entry
	touched map[string]struct{}
	dirty   bool
}

// Open 读取缓存文件；文件不存在、版本不符或内容损坏时返回空缓存（损坏不算错误）。
func Open(fsys afero.Fs, path string, readOnly bool) (*Store, error) {
	s := &Store{
		Path:     filepath.Clean(strings.TrimSpace(path)),
		ReadOnly: readOnly,
		fs:       fsys,
		entries:  map[string]Entry{},
		touched:  map[string]struct{}{},
	}
	b, err := afero.ReadFile(fsys, s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("读取摘要缓存失败：%w", err)
	}
	var ff fileFormat
	if err := json.Unmarshal(b, &ff); err != nil || ff.Version != Version {
		return s, nil
	}
	if ff.Entries != nil {
		s.entries = ff.Entries
	}
	return s, nil
}

// Len 返回当前缓存条目数。
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Lookup 返回与快照匹配的缓存条目。
func (s *Store) Lookup(e domain.FileEntry) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[e.Path] = struct{}{}
	c, ok := s.entries[e.Path]
	if !ok || c.Size != e.Size || c.ModNs != e.ModTime.UnixNano() {
		return Entry{}, false
	}
	return c, true
}

// PutExact 记录 exact 摘要；快照变化时旧条目整体作废。
func (s *Store) PutExact(e domain.FileEntry, d domain.Digest) {
	s.update(e, func(c *Entry) { c.Exact = d.String() })
}

// PutApprox 记录 approx 摘要；d 为空表示不是可解码图片。
func (s *Store) PutApprox(e domain.FileEntry, d domain.Digest) {
	s.update(e, func(c *Entry) {
		c.Approx = d.String()
		c.NoApprox = len(d) == 0
	})
}

func (s *Store) update(e domain.FileEntry, fn func(*Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched[e.Path] = struct{}{}
	c, ok := s.entries[e.Path]
	if !ok || c.Size != e.Size || c.ModNs != e.ModTime.UnixNano() {
		c = Entry{Size: e.Size, ModNs: e.ModTime.UnixNano()}
	}
	fn(&c)
	s.entries[e.Path] = c
	s.dirty = true
}

// Save 原子写回缓存文件（只保留本次运行触达过的路径）。
func (s *Store) Save() error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	s.mu.Lock()
	out := fileFormat{Version: Version, Entries: make(map[string]Entry, len(s.touched))}
	for p := range s.touched {
		if c, ok := s.entries[p]; ok {
			out.Entries[p] = c
		}
	}
	pruned := len(out.Entries) != len(s.entries)
	dirty := s.dirty
	s.mu.Unlock()

	if !dirty && !pruned {
		return nil
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(s.fs, filepath.Dir(s.Path), filepath.Base(s.Path), append(b, '\n'))
}
