// =============================================================================
// 文件: cmd/tftp-client/main.go
// 描述: 客户端入口 - get/put 子命令
// =============================================================================
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tftp-client",
	Short: "窗口化 TFTP 客户端",
	Long:  "支持块大小/窗口大小/超时选项协商的 TFTP 客户端。",
}

// 公共连接参数
var (
	host string
	port int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&host, "host", "H", "", "服务器主机")
	rootCmd.PersistentFlags().IntVarP(&port, "port", "p", 69, "服务器端口")
}

func serverAddr() string {
	return fmt.Sprintf("%s:%d", host, port)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
