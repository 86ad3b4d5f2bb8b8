package device

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable はデバイスに到達できないことを表す
var ErrUnavailable = errors.New("デバイスが利用できません")

// Status はデバイスの接続状態を表す
type Status string

const (
	StatusConnected Status = "connected" // デバイスは接続されている
	StatusAbsent    Status = "absent"    // デバイスは不在または到達不能
)

// FrameStatus はフレームが実機由来か代替かを表す
type FrameStatus string

const (
	FrameLive     FrameStatus = "live"     // 実カメラから取得したフレーム
	FrameFallback FrameStatus = "fallback" // デバイス不在時の代替フレーム
)

// Frame は1枚の取得画像を表す
// Data はJPEGエンコード済みのバイト列で、受け取った側が自由に保持してよい
type Frame struct {
	CameraID  int
	Data      []byte
	Width     int
	Height    int
	Status    FrameStatus
	Timestamp time.Time
}

// IsFallback は代替フレームかどうかを返す
func (f Frame) IsFallback() bool {
	return f.Status == FrameFallback
}

// FrameGrabber はカメラデバイスの最小能力インターフェース
// ベンダーSDKへの依存はこの境界で閉じる
type FrameGrabber interface {
	// Open はデバイスを開く
	Open(ctx context.Context) error

	// Grab は1フレームをJPEGで取得する
	Grab(ctx context.Context) ([]byte, error)

	// Available はデバイスが応答可能かチェックする
	Available(ctx context.Context) bool

	// Close はデバイスを閉じる
	Close() error
}

// LightController は照明ポートの最小能力インターフェース
type LightController interface {
	// Open はポートを開く
	Open() error

	// Send は輝度値（0-255前提）をポートに送信する
	Send(value int) error

	// Close はポートを閉じる
	Close() error
}

// Info はデバイス1台分の状態スナップショット
type Info struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Status   Status    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}
