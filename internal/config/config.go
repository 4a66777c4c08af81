// =============================================================================
// 文件: internal/config/config.go
// 描述: 配置管理 - 启动前拦截非法配置，传输参数给出协商上限
// =============================================================================
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 主配置
type Config struct {
	Listen         string `yaml:"listen"`
	RootDir        string `yaml:"root_dir"`
	ReadOnly       bool   `yaml:"read_only"`
	AllowOverwrite bool   `yaml:"allow_overwrite"`

	Transfer TransferConfig `yaml:"transfer"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// TransferConfig 传输参数。块大小和窗口大小是客户端选项协商的上限，
// 超时是未协商时的默认单次等待时长。
type TransferConfig struct {
	MaxBlockSize  int `yaml:"max_block_size"`
	MaxWindowSize int `yaml:"max_window_size"`
	TimeoutSec    int `yaml:"timeout_sec"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Listen      string `yaml:"listen"`
	Path        string `yaml:"path"`
	HealthPath  string `yaml:"health_path"`
	EnablePprof bool   `yaml:"enable_pprof"`
}

// Load 加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Listen:         ":69",
		RootDir:        ".",
		ReadOnly:       false,
		AllowOverwrite: false,

		Transfer: TransferConfig{
			MaxBlockSize:  1428,
			MaxWindowSize: 8,
			TimeoutSec:    5,
		},

		Metrics: MetricsConfig{
			Enabled:     false,
			Listen:      ":9100",
			Path:        "/metrics",
			HealthPath:  "/health",
			EnablePprof: false,
		},
	}
}

// Timeout 默认单次等待时长
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Transfer.TimeoutSec) * time.Second
}

// Validate 验证配置
func (c *Config) Validate() error {
	mainPort, err := parsePort(c.Listen)
	if err != nil {
		return fmt.Errorf("listen 端口格式错误: %w", err)
	}

	info, err := os.Stat(c.RootDir)
	if err != nil {
		return fmt.Errorf("root_dir 不可用: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("root_dir 不是目录: %s", c.RootDir)
	}

	// RFC 2348: 块大小在 8-65464 之间
	if c.Transfer.MaxBlockSize < 8 || c.Transfer.MaxBlockSize > 65464 {
		return fmt.Errorf("transfer.max_block_size 需在 8-65464 之间")
	}
	if c.Transfer.MaxWindowSize < 1 || c.Transfer.MaxWindowSize > 65535 {
		return fmt.Errorf("transfer.max_window_size 需在 1-65535 之间")
	}
	if c.Transfer.TimeoutSec < 1 || c.Transfer.TimeoutSec > 255 {
		return fmt.Errorf("transfer.timeout_sec 需在 1-255 之间")
	}

	if c.Metrics.Enabled {
		metricsPort, err := parsePort(c.Metrics.Listen)
		if err != nil {
			return fmt.Errorf("metrics.listen 端口格式错误: %w", err)
		}
		if metricsPort == mainPort {
			return fmt.Errorf("metrics.listen 端口 (%d) 与 listen 冲突", metricsPort)
		}
	}

	return nil
}

// parsePort 从监听地址解析端口
func parsePort(listen string) (int, error) {
	_, portStr, err := net.SplitHostPort(listen)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0, fmt.Errorf("端口不是数字: %s", portStr)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("端口越界: %d", port)
	}
	return port, nil
}

// GenerateExampleConfig 生成带注释的示例配置
func GenerateExampleConfig() string {
	return `# TFTP 服务器配置
listen: ":69"          # UDP 监听地址
root_dir: "/srv/tftp"  # 文件根目录，所有读写限制在其中
read_only: false       # 只读模式: 拒绝全部写请求
allow_overwrite: false # 是否允许写请求覆盖已有文件

transfer:
  max_block_size: 1428 # 块大小协商上限 (字节)
  max_window_size: 8   # 窗口大小协商上限 (块)
  timeout_sec: 5       # 单次等待超时 (秒)

metrics:
  enabled: false
  listen: ":9100"
  path: "/metrics"
  health_path: "/health"
  enable_pprof: false
`
}

// WriteExampleConfig 写入示例配置文件
func WriteExampleConfig(path string) error {
	return os.WriteFile(path, []byte(GenerateExampleConfig()), 0644)
}
