package main

import (
	"context"
	"log"

	"satsuei/internal/arbiter"
	"satsuei/internal/capture"
	"satsuei/internal/config"
	"satsuei/internal/device"
	"satsuei/internal/server"
	"satsuei/internal/settings"
	"satsuei/internal/stream"
)

func main() {
	// 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗しました: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("サーバーの起動に失敗しました: %v", err)
	}
}

// run はデバイス群とサーバーを組み立てて起動する
// カメラ・照明は起動時点で不在でも構わず、接続できたものだけが使われる
func run(cfg *config.Config) error {
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

	// 起動時に照明を初期輝度に合わせる。照明不在は警告のみ
	if applied, err := registry.SetBrightness(store.Get().LightValue); err != nil {
		log.Printf("起動時の照明設定に失敗: %v", err)
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
		return err
	}
	defer feed.Stop()

	// サーバーを起動
	srv := server.New(cfg, registry, store, engine, runner, feed)
	return srv.Start(ctx)
}
