// Package fingerprint 把文件内容变成身份键：size（廉价键）、exact（MD5）、approx（图片感知摘要）。
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/John-Robertt/dupfind/internal/domain"
	"github.com/John-Robertt/dupfind/internal/infra/cache"
	"github.com/John-Robertt/dupfind/internal/infra/imgx"
)

const (
	DefaultChunkSize = 64 << 10
	MinChunkSize     = 8 << 10
	MaxChunkSize     = 1 << 20
)

// ErrUnsupportedFormat 是分类结果而非失败：文件没有 approx 键，只参与 exact 分组。
// Computer 与 Cached 返回的错误带 unsupported_format 码，并可用 errors.Is 匹配本值。
var ErrUnsupportedFormat = imgx.ErrUnsupportedFormat

// Digester 计算内容摘要。scheduler 只依赖该接口（测试可以注入计数实现）。
type Digester interface {
	Exact(e domain.FileEntry) (domain.Digest, error)
	Approx(e domain.FileEntry) (domain.Digest, error)
}

// Computer 是基于 afero 的 Digester 实现。
type Computer struct {
	fs    afero.Fs
	chunk int
}

// New 创建 Computer；chunkSize 超出 [MinChunkSize, MaxChunkSize] 时钳制到边界，<=0 使用默认值。
func New(fsys afero.Fs, chunkSize int) *Computer {
	switch {
	case chunkSize <= 0:
		chunkSize = DefaultChunkSize
	case chunkSize < MinChunkSize:
		chunkSize = MinChunkSize
	case chunkSize > MaxChunkSize:
		chunkSize = MaxChunkSize
	}
	return &Computer{fs: fsys, chunk: chunkSize}
}

// ChunkSize 返回实际使用的分块大小。
func (c *Computer) ChunkSize() int { return c.chunk }

// Size 返回文件字节数；文件不可读或已消失时返回 io_error。
func (c *Computer) Size(path string) (int64, error) {
	fi, err := c.fs.Stat(path)
	if err != nil {
		return 0, ioError(path, err)
	}
	if !fi.Mode().IsRegular() {
		return 0, ioError(path, fmt.Errorf("不是普通文件"))
	}
	return fi.Size(), nil
}

// ExactDigest 以固定分块流式计算 MD5（内存占用与文件大小无关）。
// 读到一半失败返回 io_error，调用方应把该文件排除出本次分组。
func (c *Computer) ExactDigest(path string) (domain.Digest, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, ioError(path, err)
	}
	defer f.Close()

	h := md5.New()
	buf := make([]byte, c.chunk)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, ioError(path, rerr)
		}
	}
	return domain.Digest(h.Sum(nil)), nil
}

// ApproxDigest 计算图片的感知摘要。非图片或损坏图片返回 ErrUnsupportedFormat（不是失败）。
func (c *Computer) ApproxDigest(path string) (domain.Digest, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, ioError(path, err)
	}
	defer f.Close()

	d, err := imgx.DifferenceHash(f)
	if err != nil {
		if errors.Is(err, imgx.ErrUnsupportedFormat) {
			return nil, &domain.Error{Code: domain.ErrCodeUnsupportedFormat, Path: path, Err: err}
		}
		return nil, ioError(path, err)
	}
	return domain.Digest(d), nil
}

func (c *Computer) Exact(e domain.FileEntry) (domain.Digest, error)  { return c.ExactDigest(e.Path) }
func (c *Computer) Approx(e domain.FileEntry) (domain.Digest, error) { return c.ApproxDigest(e.Path) }

// Cached 在 Next 前面加一层摘要缓存；缓存只按 (path, size, mtime) 精确命中。
type Cached struct {
	Next  Digester
	Store *cache.Store
}

func (c Cached) Exact(e domain.FileEntry) (domain.Digest, error) {
	if hit, ok := c.Store.Lookup(e); ok && hit.Exact != "" {
		if d, err := parseHex(hit.Exact); err == nil {
			return d, nil
		}
	}
	d, err := c.Next.Exact(e)
	if err != nil {
		return nil, err
	}
	c.Store.PutExact(e, d)
	return d, nil
}

func (c Cached) Approx(e domain.FileEntry) (domain.Digest, error) {
	if hit, ok := c.Store.Lookup(e); ok {
		if hit.NoApprox {
			return nil, &domain.Error{Code: domain.ErrCodeUnsupportedFormat, Path: e.Path, Err: ErrUnsupportedFormat}
		}
		if hit.Approx != "" {
			if d, err := parseHex(hit.Approx); err == nil {
				return d, nil
			}
		}
	}
	d, err := c.Next.Approx(e)
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		c.Store.PutApprox(e, nil)
		return nil, err
	case err != nil:
		return nil, err
	}
	c.Store.PutApprox(e, d)
	return d, nil
}

func ioError(path string, err error) error {
	return &domain.Error{Code: domain.ErrCodeIO, Path: path, Err: err}
}

func parseHex(s string) (domain.Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return domain.Digest(b), nil
}
