package run

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/John-Robertt/dupfind/internal/audit"
	"github.com/John-Robertt/dupfind/internal/config"
	"github.com/John-Robertt/dupfind/internal/domain"
)

func day(n int) time.Time { return time.Date(2024, 1, n, 12, 0, 0, 0, time.UTC) }

func put(t *testing.T, fsys afero.Fs, path string, b []byte, mtime time.Time) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, afero.WriteFile(fsys, path, b, 0o644))
	require.NoError(t, fsys.Chtimes(path, mtime, mtime))
}

func baseConfig() config.EffectiveConfig {
	return config.EffectiveConfig{
		Roots:          []string{"/photos"},
		Concurrency:    2,
		IncludeSubdirs: true,
		Mode:           domain.ModeMove,
		Destination:    "/photos/dup",
		ExactPolicy:    domain.StrategyOldest,
		ApproxPolicy:   domain.StrategyShortest,
		ChunkSize:      64 << 10,
		ProgressStep:   10,
		Reports:        []audit.Format{audit.FormatText, audit.FormatJSON},
		ReportDir:      "/photos/dup",
	}
}

// abcTree: A、B 内容相同（A 更早），C 同大小但内容不同。
func abcTree(t *testing.T) afero.Fs {
	fsys := afero.NewMemMapFs()
	same := bytes.Repeat([]byte("a"), 100)
	diff := bytes.Repeat([]byte("c"), 100)
	put(t, fsys, "/photos/A.txt", same, day(1))
	put(t, fsys, "/photos/sub/B.txt", same, day(2))
	put(t, fsys, "/photos/C.txt", diff, day(3))
	return fsys
}

func TestExecute_Apply_MovesDuplicateAndWritesReports(t *testing.T) {
	fsys := abcTree(t)
	eff := baseConfig()
	eff.Apply = true

	res, err := Execute(context.Background(), fsys, eff)
	require.NoError(t, err)
	require.NoError(t, res.ReportErr)

	require.Len(t, res.Groups, 1)
	assert.Equal(t, domain.KeyExact, res.Groups[0].KeyType)

	rec := res.Record
	assert.False(t, rec.DryRun)
	assert.NotEmpty(t, rec.RunID)
	require.Len(t, rec.Entries, 2)
	assert.Equal(t, domain.AuditEntry{GroupID: 1, Path: "/photos/A.txt", Outcome: domain.OutcomeRetained}, rec.Entries[0])
	assert.Equal(t, domain.OutcomeMoved, rec.Entries[1].Outcome)
	assert.Equal(t, "/photos/dup/B.txt", rec.Entries[1].Destination)
	assert.Equal(t, 0, res.Failed())

	for _, p := range []string{"/photos/A.txt", "/photos/C.txt", "/photos/dup/B.txt"} {
		ok, _ := afero.Exists(fsys, p)
		assert.True(t, ok, "应存在：%s", p)
	}
	ok, _ := afero.Exists(fsys, "/photos/sub/B.txt")
	assert.False(t, ok, "B 应已被移走")

	require.Len(t, res.Reports, 2)
	tree, err := afero.ReadFile(fsys, filepath.Join("/photos/dup", audit.TreeFile))
	require.NoError(t, err)
	assert.Equal(t, "重复组 1:\n  /photos/A.txt\n  /photos/sub/B.txt\n\n", string(tree))
	ok, _ = afero.Exists(fsys, filepath.Join("/photos/dup", audit.JSONFile))
	assert.True(t, ok)
}

func TestExecute_Apply_ReportNameDoesNotOverwriteMovedFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	user := []byte(`{"user": "data"}`)
	put(t, fsys, "/photos/x/audit.json", user, day(1))
	put(t, fsys, "/photos/y/audit.json", user, day(2))
	eff := baseConfig()
	eff.Apply = true

	res, err := Execute(context.Background(), fsys, eff)
	require.NoError(t, err)
	require.NoError(t, res.ReportErr)

	require.Len(t, res.Record.Entries, 2)
	moved := res.Record.Entries[1]
	assert.Equal(t, "/photos/y/audit.json", moved.Path)
	assert.Equal(t, domain.OutcomeMoved, moved.Outcome)
	assert.Equal(t, "/photos/dup/audit (1).json", moved.Destination)

	got, err := afero.ReadFile(fsys, moved.Destination)
	require.NoError(t, err)
	assert.Equal(t, user, got, "被移动的文件内容必须原样保留")

	report, err := afero.ReadFile(fsys, "/photos/dup/audit.json")
	require.NoError(t, err)
	assert.Contains(t, string(report), res.Record.RunID)
}

func TestExecute_DryRun_NoWrites(t *testing.T) {
	fsys := abcTree(t)
	res, err := Execute(context.Background(), fsys, baseConfig())
	require.NoError(t, err)

	assert.True(t, res.Record.DryRun)
	require.Len(t, res.Record.Entries, 2)
	assert.Equal(t, domain.OutcomeMoved, res.Record.Entries[1].Outcome, "dry-run 记录计划中的结果")

	ok, _ := afero.Exists(fsys, "/photos/sub/B.txt")
	assert.True(t, ok, "dry-run 不应移动文件")
	ok, _ = afero.Exists(fsys, "/photos/dup")
	assert.False(t, ok, "dry-run 不应创建目标目录或报告")
	assert.Empty(t, res.Reports)
}

func TestExecute_SecondRunFindsNothing(t *testing.T) {
	fsys := abcTree(t)
	eff := baseConfig()
	eff.Apply = true

	_, err := Execute(context.Background(), fsys, eff)
	require.NoError(t, err)

	// 目标目录不参与扫描，已移走的副本不会再次成组。
	res, err := Execute(context.Background(), fsys, eff)
	require.NoError(t, err)
	assert.Empty(t, res.Groups)
	assert.Empty(t, res.Record.Entries)
}

func TestExecute_OverrideIsTakenVerbatim(t *testing.T) {
	fsys := abcTree(t)
	eff := baseConfig()
	eff.Mode = domain.ModeDelete
	eff.Apply = true
	eff.Overrides = map[int][]string{1: {"/photos/sub/B.txt"}}

	res, err := Execute(context.Background(), fsys, eff)
	require.NoError(t, err)

	require.Len(t, res.Record.Groups, 1)
	assert.Equal(t, domain.StrategyManual, res.Record.Groups[0].Strategy)
	ok, _ := afero.Exists(fsys, "/photos/A.txt")
	assert.False(t, ok, "未被保留的 A 应被删除")
	ok, _ = afero.Exists(fsys, "/photos/sub/B.txt")
	assert.True(t, ok)
}

func TestExecute_EmptyOverrideIsFatal(t *testing.T) {
	fsys := abcTree(t)
	eff := baseConfig()
	eff.Apply = true
	eff.Overrides = map[int][]string{1: {}}

	_, err := Execute(context.Background(), fsys, eff)
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodePolicyViolation, domain.Code(err))

	ok, _ := afero.Exists(fsys, "/photos/sub/B.txt")
	assert.True(t, ok, "致命错误发生在任何动作之前")
}

func TestExecute_Canceled(t *testing.T) {
	fsys := abcTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, fsys, baseConfig())
	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeCanceled, domain.Code(err))
}

func halfImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			c := color.RGBA{A: 255}
			if x < 8 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func TestExecute_ApproxAxisGroupsReencodedImages(t *testing.T) {
	fsys := afero.NewMemMapFs()
	var p, b bytes.Buffer
	require.NoError(t, png.Encode(&p, halfImage()))
	require.NoError(t, bmp.Encode(&b, halfImage()))
	put(t, fsys, "/photos/a.png", p.Bytes(), day(1))
	put(t, fsys, "/photos/copy_a.bmp", b.Bytes(), day(2))

	eff := baseConfig()
	eff.Approx = true

	res, err := Execute(context.Background(), fsys, eff)
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	assert.Equal(t, domain.KeyApprox, res.Groups[0].KeyType)

	require.Len(t, res.Record.Entries, 2)
	// 默认 approx 策略保留文件名最短的成员。
	assert.Equal(t, "/photos/a.png", res.Record.Entries[0].Path)
	assert.Equal(t, domain.OutcomeRetained, res.Record.Entries[0].Outcome)
	assert.Equal(t, domain.OutcomeMoved, res.Record.Entries[1].Outcome)
}

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	phases     []string
	progress   []int
	groups     []int
}

func (o *recordObserver) OnStart(config.EffectiveConfig) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnPhaseDone(name string, _ map[string]any, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.phases = append(o.phases, name)
}

func (o *recordObserver) OnProgress(p domain.ScanProgress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, p.Percent())
}

func (o *recordObserver) OnGroupDone(idx, total int, g domain.DuplicateGroup, entries []domain.AuditEntry) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.groups = append(o.groups, g.ID)
}

func TestExecuteWithObserver_EmitsPhaseAndGroupEvents(t *testing.T) {
	fsys := abcTree(t)
	obs := &recordObserver{}

	_, err := ExecuteWithObserver(context.Background(), fsys, baseConfig(), obs)
	require.NoError(t, err)

	assert.Equal(t, 1, obs.startCalls)
	assert.Equal(t, []string{"scan", "fingerprint", "group", "resolve", "plan", "execute"}, obs.phases)
	assert.Equal(t, []int{1}, obs.groups)
	require.NotEmpty(t, obs.progress)
	assert.Equal(t, 100, obs.progress[len(obs.progress)-1])
}
