package fingerprint

import (
	"bytes"
	"crypto/md5"
	"errors"
	"image"
	"image/png"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/dupfind/internal/domain"
	"github.com/John-Robertt/dupfind/internal/infra/cache"
)

// failingReadFs 打开文件成功，但读取第二个分块时失败（模拟读到一半出错）。
type failingReadFs struct{ afero.Fs }

func (f failingReadFs) Open(name string) (afero.File, error) {
	file, err := f.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &failingFile{File: file}, nil
}

type failingFile struct {
	afero.File
	reads int
}

func (f *failingFile) Read(p []byte) (int, error) {
	f.reads++
	if f.reads > 1 {
		return 0, os.ErrPermission
	}
	return f.File.Read(p)
}

func TestNew_ClampsChunkSize(t *testing.T) {
	fsys := afero.NewMemMapFs()
	assert.Equal(t, DefaultChunkSize, New(fsys, 0).ChunkSize())
	assert.Equal(t, MinChunkSize, New(fsys, 1).ChunkSize())
	assert.Equal(t, MaxChunkSize, New(fsys, 1<<30).ChunkSize())
	assert.Equal(t, 16<<10, New(fsys, 16<<10).ChunkSize())
}

func TestExactDigest_StreamsWholeFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	data := bytes.Repeat([]byte("0123456789"), 5000) // 50 KB，跨越多个 8 KiB 分块
	require.NoError(t, afero.WriteFile(fsys, "/r/a.bin", data, 0o644))

	got, err := New(fsys, MinChunkSize).ExactDigest("/r/a.bin")
	require.NoError(t, err)
	want := md5.Sum(data)
	assert.Equal(t, domain.Digest(want[:]), got)
}

func TestExactDigest_MissingFileIsIOError(t *testing.T) {
	_, err := New(afero.NewMemMapFs(), 0).ExactDigest("/nope")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeIO, domain.Code(err))
}

func TestExactDigest_MidStreamFailureIsIOError(t *testing.T) {
	base := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(base, "/big", make([]byte, 3*MinChunkSize), 0o644))

	_, err := New(failingReadFs{base}, MinChunkSize).ExactDigest("/big")
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeIO, domain.Code(err))
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestSize(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/a", []byte("12345"), 0o644))
	c := New(fsys, 0)

	n, err := c.Size("/a")
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	_, err = c.Size("/vanished")
	assert.Equal(t, domain.ErrCodeIO, domain.Code(err))
}

func TestApproxDigest_ImageAndNonImage(t *testing.T) {
	fsys := afero.NewMemMapFs()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = uint8(i % 251)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, afero.WriteFile(fsys, "/a.png", buf.Bytes(), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/fake.png", []byte("not really a png"), 0o644))

	c := New(fsys, 0)
	d, err := c.ApproxDigest("/a.png")
	require.NoError(t, err)
	assert.Len(t, d, 32)

	_, err = c.ApproxDigest("/fake.png")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat), "实际：%v", err)
	assert.Equal(t, domain.ErrCodeUnsupportedFormat, domain.Code(err))

	_, err = c.ApproxDigest("/missing.png")
	assert.Equal(t, domain.ErrCodeIO, domain.Code(err))
}

// countingDigester 统计调用次数，并返回固定结果。
type countingDigester struct {
	exact, approx int
}

func (c *countingDigester) Exact(domain.FileEntry) (domain.Digest, error) {
	c.exact++
	return domain.Digest{0x01, 0x02}, nil
}

func (c *countingDigester) Approx(domain.FileEntry) (domain.Digest, error) {
	c.approx++
	return nil, ErrUnsupportedFormat
}

func TestCached_HitsSkipComputation(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store, err := cache.Open(fsys, "/c.json", false)
	require.NoError(t, err)

	next := &countingDigester{}
	d := Cached{Next: next, Store: store}
	e := domain.FileEntry{Path: "/x.jpg", Size: 3, ModTime: time.Unix(10, 0)}

	for i := 0; i < 3; i++ {
		got, err := d.Exact(e)
		require.NoError(t, err)
		assert.Equal(t, domain.Digest{0x01, 0x02}, got)

		_, err = d.Approx(e)
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
		if i > 0 {
			assert.Equal(t, domain.ErrCodeUnsupportedFormat, domain.Code(err), "缓存命中同样带分类码")
		}
	}
	assert.Equal(t, 1, next.exact)
	assert.Equal(t, 1, next.approx)

	// 快照变化：重新计算。
	e.ModTime = e.ModTime.Add(time.Second)
	_, err = d.Exact(e)
	require.NoError(t, err)
	assert.Equal(t, 2, next.exact)
}
