package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Cameras  []CameraDevice `yaml:"cameras"`
	Lights   []LightPort    `yaml:"lights"`
	Capture  CaptureConfig  `yaml:"capture"`
	Stream   StreamConfig   `yaml:"stream"`
	Fallback FallbackConfig `yaml:"fallback"`
}

// ServerConfig はHTTPサーバーの設定
type ServerConfig struct {
	Host string `yaml:"host"` // リッスンするホスト
	Port int    `yaml:"port"` // リッスンするポート番号

	// タイムアウト設定
	ReadTimeout  time.Duration `yaml:"read_timeout"`  // 読み込みタイムアウト
	WriteTimeout time.Duration `yaml:"write_timeout"` // 書き込みタイムアウト
}

// CameraDevice は個別カメラの設定
type CameraDevice struct {
	ID     int    `yaml:"id"`     // カメラ番号（1始まり）
	Name   string `yaml:"name"`   // カメラの表示名
	Device string `yaml:"device"` // デバイスパス (例: /dev/video0)

	// 解像度・フレームレート設定
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
	FPS    int `yaml:"fps"`
}

// LightPort は照明コントローラーのシリアルポート設定
type LightPort struct {
	Port string `yaml:"port"` // シリアルポートパス (例: /dev/ttyUSB0)
	Baud int    `yaml:"baud"` // ボーレート
}

// CaptureConfig は撮影処理の設定
type CaptureConfig struct {
	SavePath      string        `yaml:"save_path"`       // 画像保存先ディレクトリ
	SettleDelay   time.Duration `yaml:"settle_delay"`    // 照明変更後の安定待ち時間
	PostShotDelay time.Duration `yaml:"post_shot_delay"` // 撮影後の待ち時間
	GrabTimeout   time.Duration `yaml:"grab_timeout"`    // 1フレーム取得の上限時間
	SpecialCamera int           `yaml:"special_camera"`  // 保存モードで特別扱いするカメラ番号
}

// StreamConfig はプレビュー配信の設定
type StreamConfig struct {
	Interval time.Duration `yaml:"interval"` // フレーム配信間隔
}

// FallbackConfig はカメラ未接続時の代替フレーム設定
type FallbackConfig struct {
	Width  int `yaml:"width"`  // 代替フレームの幅
	Height int `yaml:"height"` // 代替フレームの高さ
}

// Load は設定を読み込む
// デフォルト値 → CONFIG_FILE のYAML → 環境変数の順に上書きする
func Load() (*Config, error) {
	cfg := Default()

	// YAMLファイルがあれば読み込む
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	// 環境変数による上書き
	cfg.Server.Host = getEnvOrDefault("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvAsIntOrDefault("PORT", cfg.Server.Port)
	cfg.Capture.SavePath = getEnvOrDefault("SAVE_PATH", cfg.Capture.SavePath)

	// 設定の検証
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Default はデフォルト設定を返す
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 0, // ストリーミング用にタイムアウト無効化
		},
		Cameras: []CameraDevice{
			{ID: 1, Name: "Cam 1", Device: "/dev/video0", Width: 1280, Height: 720, FPS: 15},
			{ID: 2, Name: "Cam 2", Device: "/dev/video2", Width: 1280, Height: 720, FPS: 15},
			{ID: 3, Name: "Cam 3", Device: "/dev/video4", Width: 1280, Height: 720, FPS: 15},
			{ID: 4, Name: "Cam 4", Device: "/dev/video6", Width: 1280, Height: 720, FPS: 15},
		},
		Lights: []LightPort{
			{Port: "/dev/ttyUSB0", Baud: 9600},
			{Port: "/dev/ttyUSB1", Baud: 9600},
			{Port: "/dev/ttyUSB2", Baud: 9600},
			{Port: "/dev/ttyUSB3", Baud: 9600},
		},
		Capture: CaptureConfig{
			SavePath:      "./captured_images",
			SettleDelay:   500 * time.Millisecond,
			PostShotDelay: 200 * time.Millisecond,
			GrabTimeout:   time.Second,
			SpecialCamera: 3,
		},
		Stream: StreamConfig{
			Interval: 33 * time.Millisecond, // 約30FPS
		},
		Fallback: FallbackConfig{
			Width:  640,
			Height: 480,
		},
	}
}

// loadFile はYAMLファイルから設定を読み込んで上書きする
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("YAMLの解析に失敗: %w", err)
	}

	return nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	// サーバー設定の検証
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
	}

	// カメラ設定の検証
	seen := make(map[int]bool)
	for _, cam := range c.Cameras {
		if cam.ID <= 0 {
			return fmt.Errorf("無効なカメラ番号: %d", cam.ID)
		}
		if seen[cam.ID] {
			return fmt.Errorf("カメラ番号が重複しています: %d", cam.ID)
		}
		seen[cam.ID] = true
	}

	// 撮影設定の検証
	if c.Capture.SavePath == "" {
		return fmt.Errorf("保存先ディレクトリが設定されていません")
	}
	if c.Capture.GrabTimeout <= 0 {
		return fmt.Errorf("無効なフレーム取得タイムアウト: %v", c.Capture.GrabTimeout)
	}

	// 配信設定の検証
	if c.Stream.Interval <= 0 {
		return fmt.Errorf("無効な配信間隔: %v", c.Stream.Interval)
	}

	return nil
}

// ServerAddress はサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getEnvOrDefault は環境変数を取得し、設定されていない場合はデフォルト値を返す
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault は環境変数を整数として取得し、設定されていない場合はデフォルト値を返す
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		if _, err := fmt.Sscanf(value, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultValue
}
