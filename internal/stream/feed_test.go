package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satsuei/internal/arbiter"
	"satsuei/internal/device"
)

// newTestFeed はモックカメラ1-4を持つ配信環境を作る
func newTestFeed(t *testing.T, interval time.Duration) (*Feed, *arbiter.Arbiter) {
	t.Helper()

	cameras := []device.Camera{
		{ID: 1, Name: "Cam", Width: 320, Height: 240, Grabber: device.NewMockGrabber([]byte("frame-1"))},
		{ID: 2, Name: "Cam", Width: 320, Height: 240, Grabber: device.NewMockGrabber([]byte("frame-2"))},
		{ID: 3, Name: "Cam", Width: 320, Height: 240, Grabber: device.NewMockGrabber([]byte("frame-3"))},
		{ID: 4, Name: "Cam", Width: 320, Height: 240, Grabber: device.NewMockGrabber([]byte("frame-4"))},
	}

	registry := device.NewRegistry(cameras, nil, 640, 480, 200*time.Millisecond)
	registry.Open(context.Background())
	t.Cleanup(registry.Close)

	arb := arbiter.New()
	feed := NewFeed(registry, arb, interval)
	t.Cleanup(feed.Stop)

	return feed, arb
}

// waitSnapshot はチャンネルから1件受信するまで待つ
func waitSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()

	select {
	case snap, ok := <-ch:
		require.True(t, ok, "チャンネルが閉じられています")
		return snap
	case <-time.After(5 * time.Second):
		t.Fatal("スナップショットを受信できませんでした")
		return Snapshot{}
	}
}

func TestFeed_DeliversAllCameraFrames(t *testing.T) {
	feed, _ := newTestFeed(t, time.Millisecond)
	require.NoError(t, feed.Start(context.Background()))

	id, ch := feed.Subscribe()
	defer feed.Unsubscribe(id)

	snap := waitSnapshot(t, ch)

	require.Len(t, snap.Frames, 4)
	for camID := 1; camID <= 4; camID++ {
		frame, ok := snap.Frames[camID]
		require.True(t, ok, "カメラ %d のフレームがありません", camID)
		assert.Equal(t, camID, frame.CameraID)
		assert.Equal(t, device.FrameLive, frame.Status)
		assert.NotEmpty(t, frame.Data)
	}
	assert.False(t, snap.Timestamp.IsZero())
}

func TestFeed_NewViewerGetsLatestImmediately(t *testing.T) {
	feed, _ := newTestFeed(t, time.Millisecond)
	require.NoError(t, feed.Start(context.Background()))

	// 最初のスナップショットが作られるまで待つ
	first, firstCh := feed.Subscribe()
	waitSnapshot(t, firstCh)
	feed.Unsubscribe(first)

	// 新規視聴者は次のtickを待たずに直近のスナップショットを受け取る
	id, ch := feed.Subscribe()
	defer feed.Unsubscribe(id)

	select {
	case snap := <-ch:
		assert.Len(t, snap.Frames, 4)
	default:
		t.Fatal("購読直後にスナップショットが届いていません")
	}
}

func TestFeed_SlowViewerDoesNotBlockOthers(t *testing.T) {
	feed, _ := newTestFeed(t, time.Millisecond)
	require.NoError(t, feed.Start(context.Background()))

	// slowは一切読まない
	slow, _ := feed.Subscribe()
	defer feed.Unsubscribe(slow)

	fast, fastCh := feed.Subscribe()
	defer feed.Unsubscribe(fast)

	// 読まない視聴者がいても他の視聴者は受信し続けられる
	for i := 0; i < 5; i++ {
		waitSnapshot(t, fastCh)
	}
}

func TestFeed_UnsubscribeClosesChannel(t *testing.T) {
	feed, _ := newTestFeed(t, time.Millisecond)
	require.NoError(t, feed.Start(context.Background()))

	id, ch := feed.Subscribe()
	other, otherCh := feed.Subscribe()
	defer feed.Unsubscribe(other)

	assert.Equal(t, 2, feed.ViewerCount())

	feed.Unsubscribe(id)
	assert.Equal(t, 1, feed.ViewerCount())

	// 閉じられたチャンネルからはいずれ受信が終わる
	deadline := time.Now().Add(5 * time.Second)
	closed := false
	for time.Now().Before(deadline) {
		if _, ok := <-ch; !ok {
			closed = true
			break
		}
	}
	assert.True(t, closed, "解除後もチャンネルが閉じられていません")

	// 他の視聴者は影響を受けない
	waitSnapshot(t, otherCh)

	// 二重解除は何も起きない
	feed.Unsubscribe(id)
}

func TestFeed_FallsBackToCacheUnderLockContention(t *testing.T) {
	feed, arb := newTestFeed(t, time.Millisecond)

	// カメラ2のロックを撮影処理が握っている状況を作る
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = arb.WithExclusive(context.Background(), []int{2}, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	require.NoError(t, feed.Start(context.Background()))

	id, ch := feed.Subscribe()
	defer feed.Unsubscribe(id)

	// ロック保持中でも配信は止まらず、競合カメラは代替フレームになる
	snap := waitSnapshot(t, ch)
	require.Len(t, snap.Frames, 4)

	assert.Equal(t, device.FrameFallback, snap.Frames[2].Status)
	assert.Equal(t, device.FrameLive, snap.Frames[1].Status)
	assert.NotEmpty(t, snap.Frames[2].Data)
}

func TestFeed_ContentionUsesCachedLiveFrame(t *testing.T) {
	feed, arb := newTestFeed(t, time.Millisecond)
	require.NoError(t, feed.Start(context.Background()))

	// 一度は全カメラの実フレームがキャッシュされるまで待つ
	id, ch := feed.Subscribe()
	defer feed.Unsubscribe(id)
	waitSnapshot(t, ch)

	// その後カメラ3のロックを握る
	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		_ = arb.WithExclusive(context.Background(), []int{3}, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	// キャッシュ済みの実フレームが使われるため、配信は実フレームのまま
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := waitSnapshot(t, ch)
		frame := snap.Frames[3]
		assert.Equal(t, device.FrameLive, frame.Status, "キャッシュ済みフレームが使われていません")
		if snap.Timestamp.After(time.Now().Add(-time.Second)) {
			break
		}
	}
}

func TestFeed_RestartAfterStop(t *testing.T) {
	feed, _ := newTestFeed(t, time.Millisecond)

	require.NoError(t, feed.Start(context.Background()))
	first, firstCh := feed.Subscribe()
	waitSnapshot(t, firstCh)
	feed.Unsubscribe(first)

	feed.Stop()

	// 停止後の再開始で配信ループが再び動く
	require.NoError(t, feed.Start(context.Background()))
	defer feed.Stop()

	id, ch := feed.Subscribe()
	defer feed.Unsubscribe(id)

	// 購読直後の直近スナップショットではなく、新しいtickの配信を確認する
	waitSnapshot(t, ch)
	snap := waitSnapshot(t, ch)
	assert.Len(t, snap.Frames, 4)
}

func TestFeed_StopTerminatesLoop(t *testing.T) {
	feed, _ := newTestFeed(t, time.Millisecond)
	require.NoError(t, feed.Start(context.Background()))

	id, ch := feed.Subscribe()
	waitSnapshot(t, ch)

	feed.Stop()
	feed.Unsubscribe(id)

	// 二重停止は何も起きない
	feed.Stop()
}
