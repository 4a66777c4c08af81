// =============================================================================
// 文件: cmd/tftp-server/main.go
// 描述: 服务端入口 - 加载配置、挂接 Prometheus 指标、运行请求分发器
// =============================================================================
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/mrcgq/69/internal/config"
	"github.com/mrcgq/69/internal/metrics"
	"github.com/mrcgq/69/internal/server"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
	startTime = time.Now()
)

func main() {
	configPath := flag.String("c", "config.yaml", "配置文件路径")
	showVersion := flag.Bool("v", false, "显示版本")
	genConfig := flag.Bool("gen-config", false, "生成示例配置文件")
	listen := flag.String("listen", "", "覆盖监听地址")
	rootDir := flag.String("root", "", "覆盖文件根目录")
	readOnly := flag.Bool("read-only", false, "只读模式")

	flag.Parse()

	if *showVersion {
		printVersion()
		return
	}

	if *genConfig {
		if err := config.WriteExampleConfig("config.example.yaml"); err != nil {
			fmt.Fprintf(os.Stderr, "生成配置失败: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("已生成示例配置文件: config.example.yaml")
		return
	}

	// 加载配置；配置文件缺席时允许用默认值加命令行覆盖启动
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg = config.DefaultConfig()
		} else {
			fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
			os.Exit(1)
		}
	}

	if *listen != "" {
		cfg.Listen = *listen
	}
	if *rootDir != "" {
		cfg.RootDir = *rootDir
	}
	if *readOnly {
		cfg.ReadOnly = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置错误: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(cfg)

	// Metrics 服务器
	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(
			cfg.Metrics.Listen,
			cfg.Metrics.Path,
			cfg.Metrics.HealthPath,
			cfg.Metrics.EnablePprof,
		)
		srv.SetMetrics(metrics.NewTFTPMetrics(metricsServer.Registry()))
		metricsServer.SetHealthCheck(func() metrics.HealthStatus {
			return createHealthStatus(srv)
		})

		if err := metricsServer.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Metrics 启动失败: %v\n", err)
		}
	}

	printBanner(cfg, metricsServer)

	// 等待信号
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		fmt.Println("\n正在关闭...")
		cancel()
	}()

	err = srv.Run(ctx)

	if metricsServer != nil {
		metricsServer.Stop()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "运行失败: %v\n", err)
		os.Exit(1)
	}
}

// createHealthStatus 健康检查
func createHealthStatus(srv *server.Server) metrics.HealthStatus {
	status := metrics.HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Version:    Version,
		Uptime:     time.Since(startTime),
		Components: make(map[string]metrics.ComponentHealth),
	}

	status.Components["transfers"] = metrics.ComponentHealth{
		Status:  "healthy",
		Message: fmt.Sprintf("active: %d", srv.ActiveTransfers()),
	}
	return status
}

func printVersion() {
	fmt.Printf("TFTP Server v%s\n", Version)
	fmt.Printf("  Build: %s\n", BuildTime)
	fmt.Printf("  Commit: %s\n", GitCommit)
	fmt.Printf("  Go: %s\n", runtime.Version())
	fmt.Printf("  OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func printBanner(cfg *config.Config, ms *metrics.Server) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════╗")
	fmt.Printf("║  TFTP Server v%-35s ║\n", Version)
	fmt.Println("╠══════════════════════════════════════════════════╣")
	fmt.Printf("║  监听地址: %-37s ║\n", cfg.Listen)
	fmt.Printf("║  根目录:   %-37s ║\n", cfg.RootDir)
	fmt.Printf("║  只读模式: %-37v ║\n", cfg.ReadOnly)
	fmt.Printf("║  块大小上限: %-35d ║\n", cfg.Transfer.MaxBlockSize)
	fmt.Printf("║  窗口上限:   %-35d ║\n", cfg.Transfer.MaxWindowSize)
	if ms != nil {
		fmt.Println("╠══════════════════════════════════════════════════╣")
		fmt.Printf("║  Prometheus: http://localhost%-19s ║\n", cfg.Metrics.Listen+cfg.Metrics.Path)
	}
	fmt.Println("╠══════════════════════════════════════════════════╣")
	fmt.Println("║  按 Ctrl+C 停止                                  ║")
	fmt.Println("╚══════════════════════════════════════════════════╝")
	fmt.Println()
}
