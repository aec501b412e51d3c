package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
	"github.com/spf13/afero"

	"github.com/John-Robertt/dupfind/internal/config"
	"github.com/John-Robertt/dupfind/internal/domain"
)

// 退出码（固定）：
// 0 完成且没有 failed；1 有 failed 或致命错误；2 用法/配置错误；130 被中断。
const (
	exitOK       = 0
	exitFailed   = 1
	exitUsage    = 2
	exitCanceled = 130
)

// 由构建时 -ldflags 注入。
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], newCLI())
	stop()
	os.Exit(code)
}

// cli 汇总命令运行所需的外部依赖，测试可以整体替换。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	fs     afero.Fs
	cwd    func() (string, error)

	// interactive 表示 stdin/stderr 都是终端：决定是否输出进度，以及能否询问确认。
	interactive bool
	color       bool
	confirm     func(prompt string) (bool, error)

	verbosity int
}

func newCLI() *cli {
	interactive := isTTY(os.Stdin) && isTTY(os.Stderr)
	return &cli{
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		fs:          afero.NewOsFs(),
		cwd:         os.Getwd,
		interactive: interactive,
		color:       isTTY(os.Stderr) && os.Getenv("NO_COLOR") == "",
		confirm: func(prompt string) (bool, error) {
			return pterm.DefaultInteractiveConfirm.WithDefaultValue(false).Show(prompt)
		},
	}
}

// exitError 携带退出码；err 为 nil 表示已经输出过结果，只需以 code 退出。
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error { return &exitError{code: exitUsage, err: err} }

// fatalError 按错误码映射退出码。
func fatalError(err error) error {
	switch {
	case domain.Code(err) == domain.ErrCodeCanceled, errors.Is(err, context.Canceled):
		return &exitError{code: exitCanceled, err: err}
	case config.Code(err) != "":
		return &exitError{code: exitUsage, err: err}
	default:
		return &exitError{code: exitFailed, err: err}
	}
}

func execute(ctx context.Context, args []string, c *cli) int {
	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if !errors.As(err, &ee) {
		// cobra 自身的错误（未知命令、参数个数等）都是用法错误。
		fmt.Fprintf(c.stderr, "参数错误：%v\n", err)
		return exitUsage
	}
	switch {
	case ee.err == nil:
	case domain.IsFatal(ee.err):
		// 致命错误发生在任何动作之前（或运行被取消），文件系统保持原样。
		fmt.Fprintf(c.stderr, "运行中止（%s）：%v\n", domain.Code(ee.err), ee.err)
	default:
		fmt.Fprintf(c.stderr, "错误：%v\n", ee.err)
	}
	return ee.code
}

func isTTY(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
