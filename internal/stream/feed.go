// Package stream はプレビューフレームの連続配信を担う
//
// # 責務
// - 全カメラの最新フレームを一定レートで取得する
// - 接続中の全視聴者へのファンアウト配信
// - ロック競合時のキャッシュ済みフレームへの縮退
//
// # 仕様
// - 配信ループは決してブロックしない。撮影処理とのロック競合に負けた
//   カメラは直近のキャッシュ（なければ代替フレーム）で代替する
// - 視聴者チャンネルが詰まっている場合は古いスナップショットを破棄する
// - 新規視聴者には直近のスナップショットを即座に届ける
// - 視聴者の切断は他の視聴者への配信に影響しない
package stream

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"satsuei/internal/arbiter"
	"satsuei/internal/device"
	"satsuei/internal/metric"
)

// Snapshot は全カメラの同時点フレーム一式
type Snapshot struct {
	Frames    map[int]device.Frame
	Timestamp time.Time
}

// Feed はプレビュー配信ループと視聴者管理を行う
type Feed struct {
	registry *device.Registry
	arbiter  *arbiter.Arbiter
	interval time.Duration

	viewers map[string]chan Snapshot
	cache   map[int]device.Frame
	latest  *Snapshot

	// 制御用
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
}

// NewFeed は新しいFeedを作成する
func NewFeed(registry *device.Registry, arb *arbiter.Arbiter, interval time.Duration) *Feed {
	return &Feed{
		registry: registry,
		arbiter:  arb,
		interval: interval,
		viewers:  make(map[string]chan Snapshot),
		cache:    make(map[int]device.Frame),
		stopCh:   make(chan struct{}),
	}
}

// Start は配信ループを開始する
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return nil // 既に開始済み
	}

	// Stopで閉じたチャンネルを作り直して再開始できるようにする
	f.stopCh = make(chan struct{})

	f.wg.Add(1)
	go f.loop(ctx, f.stopCh)
	f.running = true

	log.Printf("プレビュー配信を開始しました (間隔 %v)", f.interval)
	return nil
}

// Stop は配信ループを停止する
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	close(f.stopCh)
	f.mu.Unlock()

	f.wg.Wait()
	log.Println("プレビュー配信を停止しました")
}

// Subscribe は新しい視聴者を登録する
// 直近のスナップショットがあれば即座にチャンネルへ届ける
func (f *Feed) Subscribe() (string, <-chan Snapshot) {
	id := uuid.New().String()
	ch := make(chan Snapshot, 1)

	f.mu.Lock()
	f.viewers[id] = ch
	if f.latest != nil {
		ch <- *f.latest
	}
	f.mu.Unlock()

	metric.PreviewViewers.Inc()
	return id, ch
}

// Unsubscribe は視聴者を登録解除する
// 他の視聴者への配信には影響しない
func (f *Feed) Unsubscribe(id string) {
	f.mu.Lock()
	ch, exists := f.viewers[id]
	if exists {
		delete(f.viewers, id)
		close(ch)
	}
	f.mu.Unlock()

	if exists {
		metric.PreviewViewers.Dec()
	}
}

// ViewerCount は接続中の視聴者数を返す
func (f *Feed) ViewerCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.viewers)
}

// loop は一定レートでスナップショットを作成して配信する
func (f *Feed) loop(ctx context.Context, stopCh chan struct{}) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot := f.buildSnapshot(ctx)
			f.broadcast(snapshot)
		}
	}
}

// buildSnapshot は全カメラの最新フレームを集める
// 撮影処理がロックを保持しているカメラは待たずにキャッシュで代替する
func (f *Feed) buildSnapshot(ctx context.Context) Snapshot {
	snapshot := Snapshot{
		Frames:    make(map[int]device.Frame),
		Timestamp: time.Now(),
	}

	for _, id := range f.registry.Targets() {
		var frame device.Frame

		ok := f.arbiter.TryWithExclusive([]int{id}, func() {
			frame = f.registry.AcquireFrame(ctx, id)
		})
		if !ok {
			// 競合に負けた。キャッシュ（なければ代替フレーム）で即座に返す
			f.mu.RLock()
			cached, hasCache := f.cache[id]
			f.mu.RUnlock()

			if hasCache {
				frame = cached
			} else {
				frame = f.registry.Fallback(id)
			}
		}

		snapshot.Frames[id] = frame
	}

	// キャッシュと直近スナップショットを更新する
	f.mu.Lock()
	for id, frame := range snapshot.Frames {
		f.cache[id] = frame
	}
	f.latest = &snapshot
	f.mu.Unlock()

	return snapshot
}

// broadcast はスナップショットを全視聴者に配る
// 詰まっている視聴者は古いスナップショットを破棄して最新のみ保持する
func (f *Feed) broadcast(snapshot Snapshot) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, ch := range f.viewers {
		select {
		case ch <- snapshot:
		default:
			// チャンネルがフルの場合は古いスナップショットを破棄
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}
