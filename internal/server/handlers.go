package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"satsuei/internal/capture"
	"satsuei/internal/device"
	"satsuei/internal/settings"
)

// handleHealth はヘルスチェックエンドポイント
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// handleStatus はシステム全体の状態を返す
// カメラ・照明の接続状態と直近のシーケンス実行状態を含む
func (s *Server) handleStatus(c *gin.Context) {
	status := gin.H{
		"status":           "running",
		"cameras":          s.registry.CameraStatuses(),
		"lights_connected": s.registry.ConnectedLights(),
		"settings":         s.store.Get(),
		"timestamp":        time.Now().Format(time.RFC3339),
	}

	if run, ok := s.runner.Status(); ok {
		status["sequence"] = run
	}

	c.JSON(http.StatusOK, status)
}

// handleGetSettings は現在の撮影設定を返す
func (s *Server) handleGetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Get())
}

// handleUpdateSettings は撮影設定を部分更新する
// 検証に失敗した場合は一切更新せず400を返す
func (s *Server) handleUpdateSettings(c *gin.Context) {
	var partial settings.Partial
	if err := c.ShouldBindJSON(&partial); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの解析に失敗しました"})
		return
	}

	updated, err := s.store.Update(partial)
	if err != nil {
		var verr *settings.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "field": verr.Field})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, updated)
}

// lightRequest は照明輝度の設定リクエスト
type lightRequest struct {
	Value int `json:"value"`
}

// handleSetLight は照明輝度を設定する
// 範囲外の値はクランプされ、実際に適用された値を返す
func (s *Server) handleSetLight(c *gin.Context) {
	var req lightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの解析に失敗しました"})
		return
	}

	applied, err := s.registry.SetBrightness(req.Value)

	// 照明不在でも意図した輝度として記録する（シーケンス実行と同じ扱い）
	s.store.SetLightValue(applied)

	if err != nil {
		if errors.Is(err, device.ErrUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "value": applied})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"value": applied})
}

// handleCapture は1回の撮影を実行する
func (s *Server) handleCapture(c *gin.Context) {
	result, err := s.capturer.CaptureOnce(c.Request.Context())
	if err != nil {
		if errors.Is(err, capture.ErrIncompleteSettings) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var serr *capture.StorageError
		if errors.As(err, &serr) {
			// 一部保存できていても結果は返す
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleStartSequence は輝度スイープ撮影を開始する
// 既にシーケンスが実行中の場合は409を返す
func (s *Server) handleStartSequence(c *gin.Context) {
	var spec capture.SequenceSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの解析に失敗しました"})
		return
	}

	run, err := s.runner.Start(spec)
	if err != nil {
		if errors.Is(err, capture.ErrSequenceRunning) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, capture.ErrInvalidSpec) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, run)
}

// handleCancelSequence は実行中のシーケンスに停止を指示する
func (s *Server) handleCancelSequence(c *gin.Context) {
	if !s.runner.Cancel() {
		c.JSON(http.StatusNotFound, gin.H{"error": "実行中のシーケンスがありません"})
		return
	}

	run, _ := s.runner.Status()
	c.JSON(http.StatusOK, run)
}

// handleSequenceStatus は直近のシーケンス実行状態を返す
func (s *Server) handleSequenceStatus(c *gin.Context) {
	run, ok := s.runner.Status()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "シーケンスの実行履歴がありません"})
		return
	}

	c.JSON(http.StatusOK, run)
}
