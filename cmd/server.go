// Package main は撮影サーバーコマンドの実装です
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"satsuei/internal/arbiter"
	"satsuei/internal/capture"
	"satsuei/internal/config"
	"satsuei/internal/device"
	"satsuei/internal/server"
	"satsuei/internal/settings"
	"satsuei/internal/stream"
)

func main() {
	// コマンドラインオプション
	var (
		host       = flag.String("host", "", "サーバーのホスト (デフォルト: 0.0.0.0)")
		port       = flag.Int("port", 0, "サーバーのポート (デフォルト: 8080)")
		savePath   = flag.String("save-path", "", "画像保存先ディレクトリ")
		configPath = flag.String("config", "", "設定ファイルのパス (YAML)")
		help       = flag.Bool("help", false, "ヘルプを表示")
	)

	flag.Parse()

	// ヘルプ表示
	if *help {
		fmt.Println("Satsuei")
		fmt.Println()
		fmt.Println("使用方法:")
		fmt.Println("  server [オプション]")
		fmt.Println()
		fmt.Println("オプション:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	// 設定ファイルの指定はCONFIG_FILE経由でLoadに渡す
	if *configPath != "" {
		os.Setenv("CONFIG_FILE", *configPath)
	}

	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	// コマンドラインオプションで設定を上書き
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *savePath != "" {
		cfg.Capture.SavePath = *savePath
	}

	ctx := context.Background()

	// デバイス群を組み立てる
	cameras := make([]device.Camera, 0, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		cameras = append(cameras, device.Camera{
			ID:      cam.ID,
			Name:    cam.Name,
			Width:   cam.Width,
			Height:  cam.Height,
			Grabber: device.NewV4L2Source(cam.Device, cam.Width, cam.Height, cam.FPS),
		})
	}

	lights := make([]device.Light, 0, len(cfg.Lights))
	for _, l := range cfg.Lights {
		lights = append(lights, device.Light{
			Port:       l.Port,
			Controller: device.NewSerialLight(l.Port, l.Baud),
		})
	}

	registry := device.NewRegistry(cameras, lights, cfg.Fallback.Width, cfg.Fallback.Height, cfg.Capture.GrabTimeout)
	registry.Open(ctx)
	defer registry.Close()

	// 初期設定
	store := settings.NewStore(settings.Settings{
		Product:    "ModelA",
		Condition:  "Test_A",
		ShotNo:     1,
		SavePath:   cfg.Capture.SavePath,
		SaveMode:   settings.SaveModeAll,
		LightValue: 100,
	})

	// 起動時に照明を初期輝度に合わせる
	if applied, lerr := registry.SetBrightness(store.Get().LightValue); lerr != nil {
		log.Printf("起動時の照明設定に失敗: %v", lerr)
	} else {
		store.SetLightValue(applied)
	}

	// 撮影とプレビュー配信
	arb := arbiter.New()
	engine := capture.NewEngine(registry, arb, store, cfg.Capture.SpecialCamera)
	runner := capture.NewRunner(engine, registry, store, cfg.Capture.SettleDelay, cfg.Capture.PostShotDelay)
	defer runner.Stop()

	feed := stream.NewFeed(registry, arb, cfg.Stream.Interval)
	if err := feed.Start(ctx); err != nil {
		log.Fatalf("プレビュー配信の開始に失敗しました: %v", err)
	}
	defer feed.Stop()

	// サーバーを起動
	srv := server.New(cfg, registry, store, engine, runner, feed)
	log.Printf("Satsuei サーバーを起動します: %s", cfg.ServerAddress())
	if err := srv.Start(ctx); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}
