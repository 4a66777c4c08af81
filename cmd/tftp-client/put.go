// =============================================================================
// 文件: cmd/tftp-client/put.go
// 描述: put 子命令 - 上传文件到服务器
// =============================================================================
package main

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrcgq/69/internal/client"
)

var (
	putRemote     string
	putBlockSize  int
	putWindowSize int
	putTimeoutSec int
)

var putCmd = &cobra.Command{
	Use:   "put <local-file>",
	Short: "上传文件到服务器",
	Args:  cobra.ExactArgs(1),
	RunE:  runPut,
}

func init() {
	rootCmd.AddCommand(putCmd)

	putCmd.Flags().StringVarP(&putRemote, "remote", "r", "", "远端文件名 (默认取本地文件名)")
	putCmd.Flags().IntVarP(&putBlockSize, "blksize", "b", 1428, "协商块大小 (字节)")
	putCmd.Flags().IntVarP(&putWindowSize, "windowsize", "w", 8, "协商窗口大小 (块)")
	putCmd.Flags().IntVarP(&putTimeoutSec, "timeout", "t", 5, "单次等待超时 (秒)")
}

func runPut(cmd *cobra.Command, args []string) error {
	local := args[0]
	remote := putRemote
	if remote == "" {
		remote = filepath.Base(local)
	}

	return client.Put(serverAddr(), remote, local, client.Options{
		BlockSize:  putBlockSize,
		WindowSize: putWindowSize,
		Timeout:    time.Duration(putTimeoutSec) * time.Second,
	})
}
