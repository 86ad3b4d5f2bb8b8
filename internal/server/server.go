package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"satsuei/internal/capture"
	"satsuei/internal/config"
	"satsuei/internal/device"
	"satsuei/internal/metric"
	"satsuei/internal/settings"
	"satsuei/internal/stream"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	engine     *gin.Engine
	httpServer *http.Server

	registry *device.Registry
	store    *settings.Store
	capturer *capture.Engine
	runner   *capture.Runner
	feed     *stream.Feed
}

// New は新しいServerインスタンスを作成する
func New(cfg *config.Config, registry *device.Registry, store *settings.Store, capturer *capture.Engine, runner *capture.Runner, feed *stream.Feed) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config:   cfg,
		engine:   engine,
		registry: registry,
		store:    store,
		capturer: capturer,
		runner:   runner,
		feed:     feed,
		httpServer: &http.Server{
			Addr:         cfg.ServerAddress(),
			Handler:      engine,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}

	s.setupRoutes()
	return s
}

// setupRoutes はHTTPルートを設定する
func (s *Server) setupRoutes() {
	// ヘルスチェックエンドポイント
	s.engine.GET("/health", s.handleHealth)

	// APIエンドポイント
	api := s.engine.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/settings", s.handleGetSettings)
		api.POST("/settings", s.handleUpdateSettings)
		api.POST("/light", s.handleSetLight)
		api.POST("/capture", s.handleCapture)
		api.POST("/sequence", s.handleStartSequence)
		api.POST("/sequence/cancel", s.handleCancelSequence)
		api.GET("/sequence", s.handleSequenceStatus)
	}

	// プレビュー配信
	s.engine.GET("/ws/preview", s.handlePreview)

	// メトリクス
	s.engine.GET("/metrics", gin.WrapH(metric.Handler()))
}

// Handler はテスト用にルーティング済みハンドラを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start はサーバーを起動する
func (s *Server) Start(ctx context.Context) error {
	// シャットダウン用のチャンネル
	shutdownCh := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		log.Printf("HTTPサーバーを起動しています: %s", s.config.ServerAddress())
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			shutdownCh <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		log.Println("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		log.Printf("シグナルを受信しました: %v", sig)
	case err := <-shutdownCh:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
func (s *Server) Shutdown() error {
	log.Println("サーバーをシャットダウンしています...")

	// 5秒のタイムアウトを設定
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	log.Println("サーバーが正常にシャットダウンされました")
	return nil
}
