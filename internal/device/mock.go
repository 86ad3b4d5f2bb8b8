package device

import (
	"context"
	"fmt"
	"sync"
)

// MockGrabber はテスト用のFrameGrabber実装
type MockGrabber struct {
	frame []byte
	mu    sync.Mutex

	// テスト制御用
	shouldFailOpen bool
	shouldFailGrab bool
	opened         bool
	grabCount      int
}

// NewMockGrabber は新しいMockGrabberを作成する
func NewMockGrabber(frame []byte) *MockGrabber {
	return &MockGrabber{frame: frame}
}

// Open はモックデバイスを開く
func (m *MockGrabber) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shouldFailOpen {
		return fmt.Errorf("モック: デバイスを開けません")
	}
	m.opened = true
	return nil
}

// Grab はモックフレームを返す
func (m *MockGrabber) Grab(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.shouldFailGrab {
		return nil, fmt.Errorf("モック: フレーム取得に失敗")
	}

	m.grabCount++
	frame := make([]byte, len(m.frame))
	copy(frame, m.frame)
	return frame, nil
}

// Available はモックデバイスが開かれているかを返す
func (m *MockGrabber) Available(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened && !m.shouldFailGrab
}

// Close はモックデバイスを閉じる
func (m *MockGrabber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return nil
}

// SetShouldFailOpen はテスト用にOpen失敗を設定する
func (m *MockGrabber) SetShouldFailOpen(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailOpen = shouldFail
}

// SetShouldFailGrab はテスト用にGrab失敗を設定する
func (m *MockGrabber) SetShouldFailGrab(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailGrab = shouldFail
}

// GrabCount は成功したGrab回数を返す
func (m *MockGrabber) GrabCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grabCount
}

// MockLight はテスト用のLightController実装
type MockLight struct {
	sent []int
	mu   sync.Mutex

	// テスト制御用
	shouldFailSend bool
	opened         bool
}

// NewMockLight は新しいMockLightを作成する
func NewMockLight() *MockLight {
	return &MockLight{}
}

// Open はモックポートを開く
func (m *MockLight) Open() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = true
	return nil
}

// Send は送信された値を記録する
func (m *MockLight) Send(value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shouldFailSend {
		return fmt.Errorf("モック: 送信に失敗")
	}
	m.sent = append(m.sent, value)
	return nil
}

// Close はモックポートを閉じる
func (m *MockLight) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened = false
	return nil
}

// SetShouldFailSend はテスト用にSend失敗を設定する
func (m *MockLight) SetShouldFailSend(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailSend = shouldFail
}

// Sent は送信された値の履歴を返す
func (m *MockLight) Sent() []int {
	m.mu.Lock()
	defer m.mu.Unlock()

	sent := make([]int, len(m.sent))
	copy(sent, m.sent)
	return sent
}
