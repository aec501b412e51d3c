// Package audit 持有一次运行唯一的 AuditRecord，并负责把它写成持久化产物。
package audit

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/John-Robertt/dupfind/internal/domain"
)

// Recorder 是只追加的审计记录。
//
// 约束：
// - 每次运行创建一次；Close 之后任何追加都返回 audit_closed（视为并发修改，致命）
// - entries 保持追加顺序
// - 并发安全
type Recorder struct {
	mu     sync.Mutex
	rec    domain.AuditRecord
	groups map[int]struct{}
	closed bool
}

// Meta 是记录头部信息。
type Meta struct {
	Roots     []string
	Mode      domain.Mode
	Dest      string
	DryRun    bool
	StartedAt time.Time
}

func NewRecorder(m Meta) *Recorder {
	return &Recorder{
		rec: domain.AuditRecord{
			RunID:     uuid.NewString(),
			Roots:     append([]string(nil), m.Roots...),
			Mode:      m.Mode,
			Dest:      m.Dest,
			DryRun:    m.DryRun,
			StartedAt: m.StartedAt,
			Groups:    make([]domain.GroupRecord, 0, 32),
			Entries:   make([]domain.AuditEntry, 0, 128),
		},
		groups: map[int]struct{}{},
	}
}

// RunID 返回本次运行的唯一标识。
func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec.RunID
}

// AddGroup 记录一个组及其保留策略；同一 ID 只记录一次。
func (r *Recorder) AddGroup(d domain.RetentionDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return closedErr()
	}
	if _, ok := r.groups[d.Group.ID]; ok {
		return nil
	}
	r.groups[d.Group.ID] = struct{}{}

	members := make([]string, 0, len(d.Group.Members))
	for _, m := range d.Group.Members {
		members = append(members, m.Path)
	}
	r.rec.Groups = append(r.rec.Groups, domain.GroupRecord{
		ID:       d.Group.ID,
		KeyType:  d.Group.KeyType,
		Key:      d.Group.Key,
		Strategy: d.Strategy,
		Members:  members,
	})
	return nil
}

// Append 追加一条 (groupId, path, outcome) 记录。
func (r *Recorder) Append(e domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return closedErr()
	}
	r.rec.Entries = append(r.rec.Entries, e)
	return nil
}

// Close 关闭记录并返回最终结果（已 Finalize）。重复关闭返回 audit_closed。
func (r *Recorder) Close(finishedAt time.Time) (domain.AuditRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return domain.AuditRecord{}, closedErr()
	}
	r.closed = true
	r.rec.FinishedAt = finishedAt
	r.rec.Finalize()
	return r.rec, nil
}

func closedErr() error {
	return &domain.Error{Code: domain.ErrCodeAuditClosed, Err: errors.New("审计记录已关闭，禁止再修改")}
}

// Failed 是 Append 失败条目的便捷写法。
func Failed(groupID int, path, code string, err error) domain.AuditEntry {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	if code == "" {
		code = domain.ErrCodeIO
	}
	return domain.AuditEntry{GroupID: groupID, Path: path, Outcome: domain.OutcomeFailed, Code: code, Reason: reason}
}
