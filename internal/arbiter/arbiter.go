// Package arbiter はカメラ・照明ハードウェアへの排他アクセスを調停する
//
// 撮影処理とプレビュー配信は同じデバイスを奪い合う。このパッケージは
// デバイス番号ごとのロックを提供し、複数デバイスにまたがる操作でも
// 固定順序（番号昇順）での取得によりデッドロックを回避する。
// 撮影側はブロッキング取得（WithExclusive）、配信側は非ブロッキング取得
// （TryWithExclusive）を使うことで、撮影が常に優先され、プレビューは
// ロック競合時にキャッシュ済みフレームへ即座に縮退できる。
package arbiter

import (
	"context"
	"sort"
	"sync"
)

// Arbiter はデバイス番号ごとの排他ロック集合を管理する
type Arbiter struct {
	mu    sync.Mutex
	locks map[int]chan struct{} // デバイスごとの容量1セマフォ
}

// New は新しいArbiterを作成する
func New() *Arbiter {
	return &Arbiter{
		locks: make(map[int]chan struct{}),
	}
}

// WithExclusive は指定デバイス集合のロックを全て取得してからfnを実行する
// ロックは番号昇順で取得し、fnの結果に関わらず必ず解放する
// コンテキストがキャンセルされた場合は取得済みロックを解放して中断する
func (a *Arbiter) WithExclusive(ctx context.Context, ids []int, fn func() error) error {
	sems := a.semaphores(ids)

	acquired := make([]chan struct{}, 0, len(sems))
	release := func() {
		// 取得と逆順で解放する
		for i := len(acquired) - 1; i >= 0; i-- {
			<-acquired[i]
		}
	}

	for _, sem := range sems {
		select {
		case sem <- struct{}{}:
			acquired = append(acquired, sem)
		case <-ctx.Done():
			release()
			return ctx.Err()
		}
	}

	defer release()
	return fn()
}

// TryWithExclusive は指定デバイス集合のロックが全て空いている場合のみfnを実行する
// 1つでも取得できなければ即座にfalseを返す（待たない）
func (a *Arbiter) TryWithExclusive(ids []int, fn func()) bool {
	sems := a.semaphores(ids)

	acquired := make([]chan struct{}, 0, len(sems))
	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			<-acquired[i]
		}
	}

	for _, sem := range sems {
		select {
		case sem <- struct{}{}:
			acquired = append(acquired, sem)
		default:
			// 競合に負けた。呼び出し元はキャッシュ済みフレームで代替する
			release()
			return false
		}
	}

	defer release()
	fn()
	return true
}

// semaphores は指定デバイス集合のセマフォを番号昇順・重複なしで返す
func (a *Arbiter) semaphores(ids []int) []chan struct{} {
	sorted := make([]int, len(ids))
	copy(sorted, ids)
	sort.Ints(sorted)

	a.mu.Lock()
	defer a.mu.Unlock()

	sems := make([]chan struct{}, 0, len(sorted))
	prev := 0
	for i, id := range sorted {
		if i > 0 && id == prev {
			continue // 重複番号は1回だけ取得する
		}
		prev = id

		sem, exists := a.locks[id]
		if !exists {
			sem = make(chan struct{}, 1)
			a.locks[id] = sem
		}
		sems = append(sems, sem)
	}

	return sems
}
