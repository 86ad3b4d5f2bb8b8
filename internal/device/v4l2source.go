package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"
)

// V4L2Source はgo4vl経由でV4L2カメラからフレームを取得するFrameGrabber実装
// MJPEGフォーマットで取得するため、フレームはそのままJPEGバイト列として扱える
type V4L2Source struct {
	devicePath string
	width      int
	height     int
	fps        int

	dev    *device.Device
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 最新フレーム保持用
	latest   []byte
	latestMu sync.RWMutex
	ready    chan struct{} // 最初のフレーム到着で閉じる

	mu sync.Mutex
}

// NewV4L2Source は新しいV4L2Sourceを作成する
func NewV4L2Source(devicePath string, width, height, fps int) *V4L2Source {
	return &V4L2Source{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
		ready:      make(chan struct{}),
	}
}

// Open はデバイスを開いてストリーミングを開始する
func (s *V4L2Source) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev != nil {
		return nil // 既に開いている
	}

	dev, err := device.Open(
		s.devicePath,
		device.WithFPS(uint32(s.fps)),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtMJPEG,
			Width:       uint32(s.width),
			Height:      uint32(s.height),
			Field:       v4l2.FieldNone,
		}),
	)
	if err != nil {
		return fmt.Errorf("V4L2デバイス %s を開けません: %w", s.devicePath, err)
	}

	// ストリーミングはデバイスのライフタイムに紐づく独立コンテキストで動かす
	streamCtx, cancel := context.WithCancel(context.Background())

	if err := dev.Start(streamCtx); err != nil {
		cancel()
		_ = dev.Close()
		return fmt.Errorf("V4L2ストリーミングの開始に失敗 (%s): %w", s.devicePath, err)
	}

	s.dev = dev
	s.cancel = cancel

	// 最新フレームのキャッシュを開始
	s.wg.Add(1)
	go s.cacheFrames(streamCtx, dev.GetOutput())

	return nil
}

// cacheFrames はデバイス出力から最新フレームをキャッシュし続ける
func (s *V4L2Source) cacheFrames(ctx context.Context, frames <-chan []byte) {
	defer s.wg.Done()

	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}

			// フレームのコピーを保存（バッファはドライバーが再利用する）
			data := make([]byte, len(frame))
			copy(data, frame)

			s.latestMu.Lock()
			s.latest = data
			s.latestMu.Unlock()

			if first {
				close(s.ready)
				first = false
			}
		}
	}
}

// Grab は最新フレームのコピーを返す
// 最初のフレームがまだ届いていない場合は到着まで待つ
func (s *V4L2Source) Grab(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	opened := s.dev != nil
	s.mu.Unlock()

	if !opened {
		return nil, fmt.Errorf("V4L2デバイス %s: %w", s.devicePath, ErrUnavailable)
	}

	select {
	case <-s.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("フレーム待機がタイムアウトしました (%s): %w", s.devicePath, ctx.Err())
	}

	s.latestMu.RLock()
	defer s.latestMu.RUnlock()

	if s.latest == nil {
		return nil, fmt.Errorf("フレームがまだ取得されていません (%s)", s.devicePath)
	}

	frame := make([]byte, len(s.latest))
	copy(frame, s.latest)
	return frame, nil
}

// Available はデバイスが開かれているかチェックする
func (s *V4L2Source) Available(_ context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev != nil
}

// Close はストリーミングを止めてデバイスを閉じる
func (s *V4L2Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dev == nil {
		return nil // 既に閉じている
	}

	s.cancel()
	s.wg.Wait()

	err := s.dev.Close()
	s.dev = nil
	return err
}
