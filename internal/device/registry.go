package device

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"
)

// Camera はRegistryに登録するカメラ1台分の定義
type Camera struct {
	ID      int
	Name    string
	Width   int
	Height  int
	Grabber FrameGrabber
}

// Light はRegistryに登録する照明ポート1つ分の定義
type Light struct {
	Port       string
	Controller LightController
}

// Registry は設定で固定されたデバイス集合を一元管理する
// カメラ・照明の不在は呼び出し元にエラーとして伝播させず、
// 代替フレームまたは警告ログに縮退させる
type Registry struct {
	cameras map[int]*cameraEntry
	order   []int // 昇順のカメラ番号リスト
	lights  []*lightEntry

	fallback       *fallbackCache
	fallbackWidth  int
	fallbackHeight int
	grabTimeout    time.Duration

	mu sync.RWMutex
}

// cameraEntry はカメラ1台の実行時状態
type cameraEntry struct {
	camera   Camera
	status   Status
	lastSeen time.Time
}

// lightEntry は照明ポート1つの実行時状態
type lightEntry struct {
	light  Light
	status Status
}

// NewRegistry は新しいRegistryを作成する
// fallbackWidth/fallbackHeight は解像度未設定カメラの代替フレームサイズ
func NewRegistry(cameras []Camera, lights []Light, fallbackWidth, fallbackHeight int, grabTimeout time.Duration) *Registry {
	r := &Registry{
		cameras:        make(map[int]*cameraEntry),
		lights:         make([]*lightEntry, 0, len(lights)),
		fallback:       newFallbackCache(),
		fallbackWidth:  fallbackWidth,
		fallbackHeight: fallbackHeight,
		grabTimeout:    grabTimeout,
	}

	for _, cam := range cameras {
		if cam.Width <= 0 || cam.Height <= 0 {
			cam.Width = fallbackWidth
			cam.Height = fallbackHeight
		}
		r.cameras[cam.ID] = &cameraEntry{camera: cam, status: StatusAbsent}
		r.order = append(r.order, cam.ID)
	}
	sort.Ints(r.order)

	for _, l := range lights {
		r.lights = append(r.lights, &lightEntry{light: l, status: StatusAbsent})
	}

	return r
}

// Open は全デバイスの接続を試みる
// 接続に失敗したデバイスは不在として記録するだけで、エラーにはしない
func (r *Registry) Open(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		entry := r.cameras[id]
		if entry.camera.Grabber == nil {
			continue
		}
		if err := entry.camera.Grabber.Open(ctx); err != nil {
			log.Printf("カメラ %d (%s) の接続に失敗: %v", id, entry.camera.Name, err)
			continue
		}
		entry.status = StatusConnected
		entry.lastSeen = time.Now()
		log.Printf("カメラ %d (%s) を接続しました", id, entry.camera.Name)
	}

	for _, entry := range r.lights {
		if entry.light.Controller == nil {
			continue
		}
		if err := entry.light.Controller.Open(); err != nil {
			log.Printf("照明ポート %s の接続に失敗: %v", entry.light.Port, err)
			continue
		}
		entry.status = StatusConnected
		log.Printf("照明ポート %s を接続しました", entry.light.Port)
	}
}

// Close は全デバイスを閉じる
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		entry := r.cameras[id]
		if entry.camera.Grabber == nil {
			continue
		}
		if err := entry.camera.Grabber.Close(); err != nil {
			log.Printf("カメラ %d のクローズに失敗: %v", id, err)
		}
		entry.status = StatusAbsent
	}

	for _, entry := range r.lights {
		if entry.light.Controller == nil {
			continue
		}
		if err := entry.light.Controller.Close(); err != nil {
			log.Printf("照明ポート %s のクローズに失敗: %v", entry.light.Port, err)
		}
		entry.status = StatusAbsent
	}
}

// Targets は管理対象のカメラ番号を昇順で返す
func (r *Registry) Targets() []int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]int, len(r.order))
	copy(targets, r.order)
	return targets
}

// AcquireFrame は指定カメラの1フレームを取得する
// デバイス不在・取得失敗・タイムアウトの場合は必ず代替フレームを返し、
// エラーは呼び出し元に伝播させない
func (r *Registry) AcquireFrame(ctx context.Context, id int) Frame {
	r.mu.RLock()
	entry, exists := r.cameras[id]
	r.mu.RUnlock()

	if !exists {
		// 未登録の番号でも設定された既定サイズの決定的な代替フレームを返す
		return r.fallback.frame(id, r.fallbackWidth, r.fallbackHeight)
	}

	grabber := entry.camera.Grabber
	if grabber == nil {
		return r.fallbackFor(entry)
	}

	// 1フレーム取得に上限時間を設ける。超過はデバイス不在として扱う
	grabCtx, cancel := context.WithTimeout(ctx, r.grabTimeout)
	defer cancel()

	data, err := grabber.Grab(grabCtx)
	if err != nil {
		r.markCamera(id, StatusAbsent)
		log.Printf("カメラ %d のフレーム取得に失敗: %v", id, err)
		return r.fallbackFor(entry)
	}

	r.markCamera(id, StatusConnected)

	return Frame{
		CameraID:  id,
		Data:      data,
		Width:     entry.camera.Width,
		Height:    entry.camera.Height,
		Status:    FrameLive,
		Timestamp: time.Now(),
	}
}

// SetBrightness は輝度値を0-255にクランプして全照明ポートに送信する
// 1ポートでも送信できれば成功とし、全滅の場合のみ ErrUnavailable を返す
// 戻り値はクランプ後の値
func (r *Registry) SetBrightness(value int) (int, error) {
	clamped := ClampBrightness(value)

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.lights) == 0 {
		return clamped, fmt.Errorf("照明ポートが設定されていません: %w", ErrUnavailable)
	}

	sent := 0
	for _, entry := range r.lights {
		if entry.light.Controller == nil {
			continue
		}
		if err := entry.light.Controller.Send(clamped); err != nil {
			entry.status = StatusAbsent
			log.Printf("照明ポート %s への送信に失敗: %v", entry.light.Port, err)
			continue
		}
		entry.status = StatusConnected
		sent++
	}

	if sent == 0 {
		return clamped, fmt.Errorf("全照明ポートへの送信に失敗: %w", ErrUnavailable)
	}

	return clamped, nil
}

// CameraStatuses は全カメラの状態スナップショットを昇順で返す
func (r *Registry) CameraStatuses() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		entry := r.cameras[id]
		infos = append(infos, Info{
			ID:       id,
			Name:     entry.camera.Name,
			Status:   entry.status,
			LastSeen: entry.lastSeen,
		})
	}
	return infos
}

// ConnectedLights は接続中の照明ポート数を返す
func (r *Registry) ConnectedLights() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, entry := range r.lights {
		if entry.status == StatusConnected {
			count++
		}
	}
	return count
}

// Fallback はハードウェアに触れずに指定カメラの代替フレームを返す
// プレビュー配信がロック競合に負けた直後など、取得を伴わない用途向け
func (r *Registry) Fallback(id int) Frame {
	r.mu.RLock()
	entry, exists := r.cameras[id]
	r.mu.RUnlock()

	if !exists {
		return r.fallback.frame(id, r.fallbackWidth, r.fallbackHeight)
	}
	return r.fallbackFor(entry)
}

// fallbackFor はカメラ設定に合った代替フレームを返す
func (r *Registry) fallbackFor(entry *cameraEntry) Frame {
	return r.fallback.frame(entry.camera.ID, entry.camera.Width, entry.camera.Height)
}

// markCamera はカメラの接続状態キャッシュを更新する
func (r *Registry) markCamera(id int, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.cameras[id]
	if !exists {
		return
	}
	entry.status = status
	if status == StatusConnected {
		entry.lastSeen = time.Now()
	}
}

// ClampBrightness は輝度値を照明コントローラーの有効範囲 [0,255] に収める
func ClampBrightness(value int) int {
	if value < 0 {
		return 0
	}
	if value > 255 {
		return 255
	}
	return value
}
