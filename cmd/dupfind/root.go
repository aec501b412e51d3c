package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/dupfind/internal/logging"
)

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "dupfind",
		Short: "查找并处理重复文件",
		Long: `dupfind 扫描一个或多个目录，按内容（以及可选的图片感知摘要）分组重复文件，
按保留策略决定每组留下哪些文件，再对其余成员执行 move / delete / copy。

默认只做 dry-run：不移动、不删除、不写入任何文件。`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(c.verbosity)
			logger := logging.GetLogger("cli")
			logger.Debug().Str("command", cmd.Name()).Msg("命令开始")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().CountVarP(&c.verbosity, "verbose", "v", "提高日志级别（-v INFO，-vv DEBUG，-vvv TRACE）")
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	root.AddCommand(newScanCmd(c), newRunCmd(c), newConfigCmd(c), newVersionCmd(c))
	return root
}

func newVersionCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "输出版本信息",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.stdout, "dupfind %s (%s)\n", version, commit)
		},
	}
}
