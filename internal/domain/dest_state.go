package domain

// DestState 描述目标目录的现状（只做 ReadDir，不读内容）。
type DestState struct {
	Dir string

	// ExistingNames 是目录内现有文件名集合，用于 O(1) 冲突判定。
	ExistingNames map[string]struct{}
}

// Has 判断 name 是否已被占用。
func (s DestState) Has(name string) bool {
	_, ok := s.ExistingNames[name]
	return ok
}

// Reserve 标记 name 已被本次运行占用（dry-run 下也需要，保证规划结果与真实执行一致）。
func (s DestState) Reserve(name string) {
	if s.ExistingNames != nil {
		s.ExistingNames[name] = struct{}{}
	}
}
