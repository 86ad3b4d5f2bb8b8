package config

import (
	"os"
	"path/filepath"
	"testing"
)

// TestConfigLoad は設定の読み込みをテストする
func TestConfigLoad(t *testing.T) {
	// 設定を読み込む
	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg == nil {
		t.Fatal("設定がnilです")
	}

	// サーバー設定の検証
	if cfg.Server.Host == "" {
		t.Error("サーバーホストが設定されていません")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		t.Errorf("無効なポート番号: %d", cfg.Server.Port)
	}

	// カメラ設定の検証
	if len(cfg.Cameras) == 0 {
		t.Error("カメラが設定されていません")
	}

	// 撮影設定の検証
	if cfg.Capture.SavePath == "" {
		t.Error("保存先ディレクトリが設定されていません")
	}
	if cfg.Capture.SettleDelay <= 0 {
		t.Error("安定待ち時間が設定されていません")
	}
	if cfg.Capture.GrabTimeout <= 0 {
		t.Error("フレーム取得タイムアウトが設定されていません")
	}

	// 代替フレーム設定の検証
	if cfg.Fallback.Width <= 0 || cfg.Fallback.Height <= 0 {
		t.Errorf("無効な代替フレームサイズ: %dx%d", cfg.Fallback.Width, cfg.Fallback.Height)
	}
}

// TestConfigValidation は設定の検証をテストする
func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*Config)
		expectErr bool
	}{
		{
			name:      "正常な設定",
			mutate:    func(_ *Config) {},
			expectErr: false,
		},
		{
			name: "無効なポート番号",
			mutate: func(c *Config) {
				c.Server.Port = 99999
			},
			expectErr: true,
		},
		{
			name: "カメラ番号が0",
			mutate: func(c *Config) {
				c.Cameras[0].ID = 0
			},
			expectErr: true,
		},
		{
			name: "カメラ番号の重複",
			mutate: func(c *Config) {
				c.Cameras[1].ID = c.Cameras[0].ID
			},
			expectErr: true,
		},
		{
			name: "保存先ディレクトリなし",
			mutate: func(c *Config) {
				c.Capture.SavePath = ""
			},
			expectErr: true,
		},
		{
			name: "無効な配信間隔",
			mutate: func(c *Config) {
				c.Stream.Interval = 0
			},
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.expectErr && err == nil {
				t.Error("エラーが期待されましたが、エラーが発生しませんでした")
			}
			if !tc.expectErr && err != nil {
				t.Errorf("予期しないエラーが発生しました: %v", err)
			}
		})
	}
}

// TestServerAddress はサーバーアドレスの生成をテストする
func TestServerAddress(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{
			Host: "192.168.1.100",
			Port: 9090,
		},
	}

	expected := "192.168.1.100:9090"
	actual := cfg.ServerAddress()

	if actual != expected {
		t.Errorf("サーバーアドレスが一致しません: got %s, want %s", actual, expected)
	}
}

// TestConfigFile はYAMLファイルからの読み込みをテストする
// 注意: このテストは環境変数を変更するため、parallelは使わない
func TestConfigFile(t *testing.T) {
	yamlContent := `
server:
  host: 10.0.0.5
  port: 9000
capture:
  save_path: /tmp/shots
  special_camera: 2
cameras:
  - id: 1
    name: "Left"
    device: /dev/video0
  - id: 2
    name: "Right"
    device: /dev/video2
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("テスト設定ファイルの作成に失敗: %v", err)
	}

	original := os.Getenv("CONFIG_FILE")
	defer func() { _ = os.Setenv("CONFIG_FILE", original) }()
	_ = os.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host != "10.0.0.5" {
		t.Errorf("YAMLのホストが反映されていません: got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("YAMLのポートが反映されていません: got %d", cfg.Server.Port)
	}
	if cfg.Capture.SavePath != "/tmp/shots" {
		t.Errorf("YAMLの保存先が反映されていません: got %s", cfg.Capture.SavePath)
	}
	if cfg.Capture.SpecialCamera != 2 {
		t.Errorf("YAMLの特別カメラ番号が反映されていません: got %d", cfg.Capture.SpecialCamera)
	}
	if len(cfg.Cameras) != 2 {
		t.Errorf("YAMLのカメラ数が反映されていません: got %d", len(cfg.Cameras))
	}
}

// TestEnvironmentVariables は環境変数の処理をテストする
// 注意: このテストは環境変数を変更するため、parallelは使わない
func TestEnvironmentVariables(t *testing.T) {
	originalHost := os.Getenv("SERVER_HOST")
	originalPort := os.Getenv("PORT")
	originalSave := os.Getenv("SAVE_PATH")

	defer func() {
		// テスト後に環境変数を復元
		_ = os.Setenv("SERVER_HOST", originalHost)
		_ = os.Setenv("PORT", originalPort)
		_ = os.Setenv("SAVE_PATH", originalSave)
	}()

	_ = os.Setenv("SERVER_HOST", "test.example.com")
	_ = os.Setenv("PORT", "9999")
	_ = os.Setenv("SAVE_PATH", "/data/images")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if cfg.Server.Host != "test.example.com" {
		t.Errorf("環境変数のホストが反映されていません: got %s, want test.example.com", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("環境変数のポートが反映されていません: got %d, want 9999", cfg.Server.Port)
	}
	if cfg.Capture.SavePath != "/data/images" {
		t.Errorf("環境変数の保存先が反映されていません: got %s", cfg.Capture.SavePath)
	}
}
