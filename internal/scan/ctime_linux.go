//go:build linux

package scan

import (
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// createdAt 返回文件创建时间：优先 statx 的 btime，文件系统不支持时退回 ctime。
// 非真实文件系统（例如 afero.MemMapFs）没有 Stat_t，直接使用 ModTime。
func createdAt(path string, info os.FileInfo) time.Time {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime()
	}

	var sx unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &sx)
	if err == nil && sx.Mask&unix.STATX_BTIME != 0 {
		return time.Unix(sx.Btime.Sec, int64(sx.Btime.Nsec))
	}
	return time.Unix(st.Ctim.Unix())
}
