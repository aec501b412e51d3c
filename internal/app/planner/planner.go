package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/John-Robertt/dupfind/internal/domain"
	"github.com/John-Robertt/dupfind/internal/fingerprint"
	"github.com/John-Robertt/dupfind/internal/infra/fsx"
	"github.com/John-Robertt/dupfind/internal/logging"
)

// DefaultMaxProbe 是 " (n)" 改名探测的上限；耗尽后该文件记为失败。
const DefaultMaxProbe = 9999

// ReadDestState 读取目标目录的现状（只做 ReadDir，不读文件内容）。
// 若目录不存在，返回空状态且不报错；若路径是文件，返回 PathTypeConflictError。
func ReadDestState(fsys afero.Fs, dir string) (domain.DestState, error) {
	dir = filepath.Clean(dir)
	st := domain.DestState{
		Dir:           dir,
		ExistingNames: map[string]struct{}{},
	}

	fi, err := fsys.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return domain.DestState{}, err
	}
	if !fi.IsDir() {
		return domain.DestState{}, &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}

	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		return domain.DestState{}, err
	}
	for _, e := range entries {
		st.ExistingNames[e.Name()] = struct{}{}
	}
	return st, nil
}

// Planner 为每个组生成确定性的执行计划（不做任何写入/移动）。
//
// 一个 Planner 对应一次运行：目标目录的名字占用在组之间累积，dry-run 与 apply 的规划结果一致。
type Planner struct {
	fs       afero.Fs
	mode     domain.Mode
	dest     domain.DestState
	hasher   *fingerprint.Computer
	MaxProbe int

	// pending 记录本次运行中已分配的目标名 → 将落到该名字的源文件。
	pending map[string]string
	// reserved 是留给本次运行其他产物（报告）的名字，任何源文件都不能落到这里。
	reserved map[string]struct{}
	digests  map[string]domain.Digest
}

// New 创建 Planner。mode=delete 时 dest 可以是零值。
func New(fsys afero.Fs, mode domain.Mode, dest domain.DestState, chunkSize int) *Planner {
	if dest.ExistingNames == nil {
		dest.ExistingNames = map[string]struct{}{}
	}
	return &Planner{
		fs:       fsys,
		mode:     mode,
		dest:     dest,
		hasher:   fingerprint.New(fsys, chunkSize),
		MaxProbe: DefaultMaxProbe,
		pending:  map[string]string{},
		reserved: map[string]struct{}{},
		digests:  map[string]domain.Digest{},
	}
}

// ReserveNames 预留目标目录中的名字。与预留名同名的源文件一律改名，不做内容比较。
func (p *Planner) ReserveNames(names ...string) {
	for _, n := range names {
		p.dest.Reserve(n)
		p.reserved[n] = struct{}{}
	}
}

// PlanGroup 按成员顺序为组内每个文件生成一条 ActionPlan。
//
// - 保留成员：retain
// - delete 模式：delete
// - move/copy：目标名取源文件名；同名已存在时先比较内容，相同则 retain（不制造第二份副本），
//   不同则在扩展名前追加 " (n)"，n 从 1 递增直到空闲
func (p *Planner) PlanGroup(d domain.RetentionDecision) domain.GroupPlan {
	gp := domain.GroupPlan{
		Decision: d,
		Actions:  make([]domain.ActionPlan, 0, len(d.Group.Members)),
	}
	for _, m := range d.Group.Members {
		ap := domain.ActionPlan{GroupID: d.Group.ID, Entry: m}
		switch {
		case d.IsRetained(m.Path):
			ap.Kind = domain.ActionRetain
		case p.mode == domain.ModeDelete:
			ap.Kind = domain.ActionDelete
		default:
			p.planTransfer(&ap)
		}
		gp.Actions = append(gp.Actions, ap)
	}
	return gp
}

func (p *Planner) planTransfer(ap *domain.ActionPlan) {
	name := filepath.Base(ap.Entry.Path)
	kind := domain.ActionMove
	if p.mode == domain.ModeCopy {
		kind = domain.ActionCopy
	}

	if p.dest.Has(name) {
		if p.sameAsOccupant(ap.Entry, name) {
			ap.Kind = domain.ActionRetain
			ap.Dst = filepath.Join(p.dest.Dir, name)
			if _, ok := p.pending[name]; ok {
				ap.Note = "本次运行已有相同内容的文件放入目标目录"
			} else {
				ap.Note = "目标目录已有相同内容的文件"
			}
			return
		}
		alloc, ok := allocName(name, p.dest, p.MaxProbe)
		if !ok {
			ap.Kind = domain.ActionFail
			ap.Code = domain.ErrCodeIO
			ap.Note = fmt.Sprintf("%s：改名探测 %d 次仍无可用名称", domain.ErrCodeDestinationCollision, p.MaxProbe)
			return
		}
		name = alloc
	}

	p.dest.Reserve(name)
	p.pending[name] = ap.Entry.Path
	ap.Kind = kind
	ap.Dst = filepath.Join(p.dest.Dir, name)
}

// sameAsOccupant 判断 name 的占用者与 e 内容是否相同（size + exact 摘要）。
// 占用者可能是磁盘上已有的文件，也可能是本次运行中较早规划、尚未落地的源文件。
// 读取失败一律按“不同”处理（走改名分支，不会丢数据）。
func (p *Planner) sameAsOccupant(e domain.FileEntry, name string) bool {
	if _, ok := p.reserved[name]; ok {
		return false
	}
	occupant, ok := p.pending[name]
	if !ok {
		occupant = filepath.Join(p.dest.Dir, name)
	}

	fi, err := p.fs.Stat(occupant)
	if err != nil || !fi.Mode().IsRegular() || fi.Size() != e.Size {
		return false
	}
	a, err := p.digest(e.Path)
	if err != nil {
		return false
	}
	b, err := p.digest(occupant)
	if err != nil {
		return false
	}
	return a.Equal(b)
}

func (p *Planner) digest(path string) (domain.Digest, error) {
	if d, ok := p.digests[path]; ok {
		return d, nil
	}
	d, err := p.hasher.ExactDigest(path)
	if err != nil {
		logger := logging.GetLogger("planner")
		logger.Warn().Err(err).Str("path", path).Msg("冲突比对读取失败，按内容不同处理")
		return nil, err
	}
	p.digests[path] = d
	return d, nil
}

// allocName 在扩展名前追加 " (n)"，返回第一个空闲名字；探测 maxProbe 次仍冲突则 ok=false。
func allocName(name string, st domain.DestState, maxProbe int) (string, bool) {
	if !st.Has(name) {
		return name, true
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for n := 1; n <= maxProbe; n++ {
		cand := fmt.Sprintf("%s (%d)%s", base, n, ext)
		if !st.Has(cand) {
			return cand, true
		}
	}
	return "", false
}
