package domain

import "sync/atomic"

// ScanProgress 是进度快照，只用于观察，从不参与正确性判断。
type ScanProgress struct {
	FilesDiscovered    int64 `json:"files_discovered"`
	FilesFingerprinted int64 `json:"files_fingerprinted"`
	// TasksTotal 是需要读内容的文件数（size 预筛后的候选 + 图片），用于估算百分比。
	TasksTotal int64 `json:"tasks_total"`
}

// Percent 返回指纹阶段完成的整数百分比（0..100）。TasksTotal 为 0 时视为已完成。
func (p ScanProgress) Percent() int {
	if p.TasksTotal <= 0 {
		return 100
	}
	v := int(p.FilesFingerprinted * 100 / p.TasksTotal)
	if v > 100 {
		v = 100
	}
	return v
}

// Progress 持有单调不减的计数器；全部字段为 atomic，可由 worker 写、调用方轮询读，无需加锁。
type Progress struct {
	discovered    atomic.Int64
	fingerprinted atomic.Int64
	total         atomic.Int64
}

func (p *Progress) AddDiscovered(n int64)    { p.discovered.Add(n) }
func (p *Progress) AddFingerprinted(n int64) { p.fingerprinted.Add(n) }
func (p *Progress) SetTotal(n int64)         { p.total.Store(n) }

// Snapshot 读取当前计数（各字段独立读取，不保证彼此原子一致）。
func (p *Progress) Snapshot() ScanProgress {
	return ScanProgress{
		FilesDiscovered:    p.discovered.Load(),
		FilesFingerprinted: p.fingerprinted.Load(),
		TasksTotal:         p.total.Load(),
	}
}
