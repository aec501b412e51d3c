package imgx

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // 注册 GIF 解码器
	_ "image/jpeg" // 注册 JPEG 解码器
	_ "image/png"  // 注册 PNG 解码器
	"io"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"  // 注册 BMP 解码器
	_ "golang.org/x/image/tiff" // 注册 TIFF 解码器
	_ "golang.org/x/image/webp" // 注册 WebP 解码器
)

// HashSize 是差值哈希的网格边长；输出 HashSize*HashSize 位。
const HashSize = 16

// maxPixels 限制解码尺寸，超过视为不支持（避免超大图片耗尽内存）。
const maxPixels = 100_000_000

// ErrUnsupportedFormat 表示输入不是可解码的栅格图片（或已损坏）。
// 这是分类结果而非失败：调用方应当让该文件只参与 exact 分组。
var ErrUnsupportedFormat = errors.New("unsupported image format")

// DefaultExts 是按扩展名归类为图片的默认集合（小写，含点）。
var DefaultExts = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp", ".tiff", ".tif"}

// IsImageExt 判断 path 的扩展名是否在 exts 中（大小写不敏感）。exts 为空时使用 DefaultExts。
func IsImageExt(path string, exts []string) bool {
	if len(exts) == 0 {
		exts = DefaultExts
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// DifferenceHash 计算图片的感知摘要。
//
// 规则（固定）：
// - 缩放到 HashSize x HashSize 的灰度网格
// - 计算全图平均亮度
// - 每个像素一位：亮度严格大于平均值为 1，否则为 0（行优先，高位在前）
//
// 解码失败统一返回包裹 ErrUnsupportedFormat 的错误；读失败原样返回。
func DifferenceHash(r io.Reader) ([]byte, error) {
	rr := &recordReader{r: r}
	br := bufio.NewReaderSize(rr, peekMax)

	// 先只读头部拿尺寸，避免解码超大图片；头部不完整时交给完整解码判断。
	if cfg, err := peekConfig(br); err == nil {
		if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > maxPixels {
			return nil, fmt.Errorf("%w：尺寸 %dx%d", ErrUnsupportedFormat, cfg.Width, cfg.Height)
		}
	} else if rr.err != nil {
		return nil, rr.err
	} else if !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w：%v", ErrUnsupportedFormat, err)
	}

	img, _, err := image.Decode(br)
	if err != nil {
		if rr.err != nil {
			return nil, rr.err
		}
		return nil, fmt.Errorf("%w：%v", ErrUnsupportedFormat, err)
	}
	return hashImage(img), nil
}

func hashImage(img image.Image) []byte {
	grid := image.NewGray(image.Rect(0, 0, HashSize, HashSize))
	// CatmullRom 接近 Lanczos 的平滑效果；灰度转换由 Gray 颜色模型完成（ITU-R 601 权重）。
	draw.CatmullRom.Scale(grid, grid.Bounds(), img, img.Bounds(), draw.Src, nil)

	var sum int
	for _, v := range grid.Pix {
		sum += int(v)
	}
	n := HashSize * HashSize
	out := make([]byte, n/8)
	for i := 0; i < n; i++ {
		// pixel > avg  <=>  pixel*n > sum（整数比较，避免浮点误差）
		if int(grid.Pix[i])*n > sum {
			out[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return out
}

const peekMax = 256 << 10

// peekConfig 通过 Peek 读取头部字节来解析尺寸，不消费 br。
func peekConfig(br *bufio.Reader) (image.Config, error) {
	buf, err := br.Peek(peekMax)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return image.Config{}, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(buf))
	return cfg, err
}

// recordReader 记录底层 reader 的第一个非 EOF 错误，用于区分“读失败”（IO）与“格式不支持”。
type recordReader struct {
	r   io.Reader
	err error
}

func (r *recordReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && r.err == nil {
		r.err = err
	}
	return n, err
}
