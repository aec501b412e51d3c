package domain

import (
	"encoding/hex"
	"time"
)

// FileEntry 描述一次扫描得到的文件快照（只做 stat，不读内容）。
//
// 不变量（实现必须遵守）：
// - Path 必须是 clean + absolute
// - 快照创建后不可修改；之后的 move/delete 不会回写到已分组的 FileEntry
type FileEntry struct {
	Path      string
	Size      int64
	CreatedAt time.Time
	ModTime   time.Time

	// Image 表示该文件按扩展名被归类为图片（才会计算 approx digest）。
	Image bool
}

// Digest 是定长的内容摘要（exact 为 MD5 128 bit；approx 为 16x16=256 bit）。
type Digest []byte

func (d Digest) String() string { return hex.EncodeToString(d) }

// Equal 按位比较；nil 与空摘要不相等于任何值。
func (d Digest) Equal(o Digest) bool {
	if len(d) == 0 || len(d) != len(o) {
		return false
	}
	for i := range d {
		if d[i] != o[i] {
			return false
		}
	}
	return true
}

// FingerprintKey 是 (size, exact?, approx?) 三元组。
//
// - Exact 在整文件读完后才有值
// - Approx 仅对图片有值；解码失败（UnsupportedFormat）时保持为空
type FingerprintKey struct {
	Size   int64
	Exact  Digest
	Approx Digest
}

// Fingerprinted 是完成指纹计算的文件。Entry 本身不被修改，Key 单独携带。
type Fingerprinted struct {
	Entry FileEntry
	Key   FingerprintKey
}

// FileFailure 记录指纹阶段失败（IoError）的文件；该文件本次运行不参与分组。
type FileFailure struct {
	Path   string
	Code   string
	Reason string
}
