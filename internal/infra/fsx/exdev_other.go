//go:build !unix

package fsx

// 非 unix 平台的 rename 跨盘错误码不同；这里不做识别，按普通 IO 错误处理。
func isEXDEV(error) bool { return false }
