// =============================================================================
// 文件: cmd/tftp-client/get.go
// 描述: get 子命令 - 从服务器下载文件
// =============================================================================
package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrcgq/69/internal/client"
)

var (
	getOutput     string
	getBlockSize  int
	getWindowSize int
	getTimeoutSec int
)

var getCmd = &cobra.Command{
	Use:   "get <remote-file>",
	Short: "从服务器下载文件",
	Args:  cobra.ExactArgs(1),
	RunE:  runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)

	getCmd.Flags().StringVarP(&getOutput, "output", "o", "", "本地保存路径 (默认取远端文件名)")
	getCmd.Flags().IntVarP(&getBlockSize, "blksize", "b", 1428, "协商块大小 (字节)")
	getCmd.Flags().IntVarP(&getWindowSize, "windowsize", "w", 8, "协商窗口大小 (块)")
	getCmd.Flags().IntVarP(&getTimeoutSec, "timeout", "t", 5, "单次等待超时 (秒)")
}

func runGet(cmd *cobra.Command, args []string) error {
	remote := args[0]
	local := getOutput
	if local == "" {
		local = filepath.Base(remote)
	}

	return client.Get(serverAddr(), remote, local, client.Options{
		BlockSize:  getBlockSize,
		WindowSize: getWindowSize,
		Timeout:    time.Duration(getTimeoutSec) * time.Second,
	})
}
