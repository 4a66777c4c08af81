// =============================================================================
// 文件: internal/config/config_test.go
// 描述: 配置加载与验证测试
// =============================================================================
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Listen != ":69" {
		t.Errorf("默认监听地址不匹配: got %s", cfg.Listen)
	}
	if cfg.Transfer.MaxBlockSize != 1428 {
		t.Errorf("默认块大小上限不匹配: got %d", cfg.Transfer.MaxBlockSize)
	}
	if cfg.Transfer.MaxWindowSize != 8 {
		t.Errorf("默认窗口大小上限不匹配: got %d", cfg.Transfer.MaxWindowSize)
	}
	if cfg.Timeout() != 5*time.Second {
		t.Errorf("默认超时不匹配: got %v", cfg.Timeout())
	}
	if cfg.ReadOnly || cfg.AllowOverwrite {
		t.Error("默认应当允许写入且禁止覆盖")
	}
	if cfg.Metrics.Enabled {
		t.Error("默认应当关闭指标")
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
listen: ":6969"
root_dir: "` + root + `"
read_only: true

transfer:
  max_block_size: 1024
  timeout_sec: 3
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if cfg.Listen != ":6969" {
		t.Errorf("listen 不匹配: got %s", cfg.Listen)
	}
	if !cfg.ReadOnly {
		t.Error("read_only 未生效")
	}
	if cfg.Transfer.MaxBlockSize != 1024 {
		t.Errorf("max_block_size 不匹配: got %d", cfg.Transfer.MaxBlockSize)
	}
	// 未出现的字段保持默认值
	if cfg.Transfer.MaxWindowSize != 8 {
		t.Errorf("缺省字段应保持默认: got %d", cfg.Transfer.MaxWindowSize)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("不存在的配置文件应当报错")
	}
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.RootDir = root
		return cfg
	}

	t.Run("合法配置", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("合法配置不应报错: %v", err)
		}
	})

	t.Run("监听地址格式错误", func(t *testing.T) {
		cfg := valid()
		cfg.Listen = "no-port"
		if err := cfg.Validate(); err == nil {
			t.Error("缺少端口应当报错")
		}
	})

	t.Run("根目录不存在", func(t *testing.T) {
		cfg := valid()
		cfg.RootDir = filepath.Join(root, "missing")
		if err := cfg.Validate(); err == nil {
			t.Error("不存在的根目录应当报错")
		}
	})

	t.Run("根目录是普通文件", func(t *testing.T) {
		file := filepath.Join(root, "plain")
		if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
			t.Fatalf("写入文件失败: %v", err)
		}
		cfg := valid()
		cfg.RootDir = file
		if err := cfg.Validate(); err == nil {
			t.Error("普通文件作根目录应当报错")
		}
	})

	t.Run("块大小越界", func(t *testing.T) {
		for _, v := range []int{7, 65465} {
			cfg := valid()
			cfg.Transfer.MaxBlockSize = v
			if err := cfg.Validate(); err == nil {
				t.Errorf("块大小 %d 应当报错", v)
			}
		}
	})

	t.Run("窗口大小越界", func(t *testing.T) {
		cfg := valid()
		cfg.Transfer.MaxWindowSize = 0
		if err := cfg.Validate(); err == nil {
			t.Error("窗口大小 0 应当报错")
		}
	})

	t.Run("超时越界", func(t *testing.T) {
		for _, v := range []int{0, 256} {
			cfg := valid()
			cfg.Transfer.TimeoutSec = v
			if err := cfg.Validate(); err == nil {
				t.Errorf("超时 %d 应当报错", v)
			}
		}
	})

	t.Run("指标端口与主端口冲突", func(t *testing.T) {
		cfg := valid()
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = ":69"
		if err := cfg.Validate(); err == nil {
			t.Error("端口冲突应当报错")
		}
	})
}

func TestGenerateExampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "example.yaml")
	if err := WriteExampleConfig(path); err != nil {
		t.Fatalf("写入示例配置失败: %v", err)
	}

	// 示例配置中的根目录在本机不一定存在, 只验证可解析
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取示例配置失败: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("示例配置为空")
	}
}
