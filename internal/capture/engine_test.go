package capture

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satsuei/internal/arbiter"
	"satsuei/internal/device"
	"satsuei/internal/settings"
)

const testSpecialCamera = 3

// testFixture は撮影テスト用の部品一式
type testFixture struct {
	registry *device.Registry
	arbiter  *arbiter.Arbiter
	store    *settings.Store
	engine   *Engine
	grabbers map[int]*device.MockGrabber
}

// newTestFixture はカメラ1-4（全て接続済みモック）の撮影環境を作る
func newTestFixture(t *testing.T, savePath string) *testFixture {
	t.Helper()

	grabbers := map[int]*device.MockGrabber{
		1: device.NewMockGrabber([]byte("frame-1")),
		2: device.NewMockGrabber([]byte("frame-2")),
		3: device.NewMockGrabber([]byte("frame-3")),
		4: device.NewMockGrabber([]byte("frame-4")),
	}

	cameras := make([]device.Camera, 0, len(grabbers))
	for id, g := range grabbers {
		cameras = append(cameras, device.Camera{
			ID: id, Name: "Cam", Width: 320, Height: 240, Grabber: g,
		})
	}

	registry := device.NewRegistry(cameras, nil, 640, 480, 200*time.Millisecond)
	registry.Open(context.Background())
	t.Cleanup(registry.Close)

	store := settings.NewStore(settings.Settings{
		Product:    "ModelA",
		Condition:  "Test_A",
		ShotNo:     1,
		SavePath:   savePath,
		SaveMode:   settings.SaveModeAll,
		LightValue: 100,
	})

	arb := arbiter.New()
	engine := NewEngine(registry, arb, store, testSpecialCamera)

	return &testFixture{
		registry: registry,
		arbiter:  arb,
		store:    store,
		engine:   engine,
		grabbers: grabbers,
	}
}

func TestEngine_CaptureOnceAllCameras(t *testing.T) {
	dir := t.TempDir()
	f := newTestFixture(t, dir)

	result, err := f.engine.CaptureOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.SavedCount)
	assert.Len(t, result.Cameras, 4)
	assert.Equal(t, 1, result.ShotNo)

	for _, cam := range result.Cameras {
		assert.True(t, cam.Saved, "カメラ %d が保存されていません", cam.CameraID)
		assert.False(t, cam.Fallback, "カメラ %d が代替フレームになっています", cam.CameraID)
		assert.FileExists(t, cam.File)
	}

	// 撮影番号が進む
	assert.Equal(t, 2, f.store.Get().ShotNo)
}

func TestEngine_CaptureOnceFilenames(t *testing.T) {
	dir := t.TempDir()
	f := newTestFixture(t, dir)

	result, err := f.engine.CaptureOnce(context.Background())
	require.NoError(t, err)

	for _, cam := range result.Cameras {
		base := filepath.Base(cam.File)

		// ファイル名に製品・条件・輝度・撮影番号・カメラ番号が全て含まれる
		assert.True(t, strings.HasPrefix(base, "ModelA_Test_A_Light_100_001_Cam"), "予期しないファイル名: %s", base)
		assert.True(t, strings.HasSuffix(base, ".jpg"))

		// 特別カメラは独立サブツリーに保存される
		rel, relErr := filepath.Rel(dir, cam.File)
		require.NoError(t, relErr)
		if cam.CameraID == testSpecialCamera {
			assert.True(t, strings.HasPrefix(rel, filepath.Join("cam3", "ModelA")), "特別カメラのパスが不正: %s", rel)
		} else {
			assert.True(t, strings.HasPrefix(rel, filepath.Join("ModelA", "Test_A", "Light_100")), "通常カメラのパスが不正: %s", rel)
		}
	}
}

func TestEngine_CaptureOnceSaveModes(t *testing.T) {
	testCases := []struct {
		mode     settings.SaveMode
		expected []int
	}{
		{settings.SaveModeAll, []int{1, 2, 3, 4}},
		{settings.SaveModeExcludeSpecial, []int{1, 2, 4}},
		{settings.SaveModeSpecialOnly, []int{3}},
	}

	for _, tc := range testCases {
		f := newTestFixture(t, t.TempDir())
		mode := tc.mode
		_, err := f.store.Update(settings.Partial{SaveMode: &mode})
		require.NoError(t, err)

		result, err := f.engine.CaptureOnce(context.Background())
		require.NoError(t, err)

		var ids []int
		for _, cam := range result.Cameras {
			ids = append(ids, cam.CameraID)
		}
		assert.Equal(t, tc.expected, ids, "mode=%d", tc.mode)
	}
}

func TestEngine_CaptureOnceZeroCamerasConnected(t *testing.T) {
	dir := t.TempDir()
	f := newTestFixture(t, dir)

	// 全カメラを故障状態にする
	for _, g := range f.grabbers {
		g.SetShouldFailGrab(true)
	}

	result, err := f.engine.CaptureOnce(context.Background())
	require.NoError(t, err)

	// 全カメラ分の代替フレームが保存される
	assert.Equal(t, 4, result.SavedCount)
	var firstSize int64
	for _, cam := range result.Cameras {
		assert.True(t, cam.Saved)
		assert.True(t, cam.Fallback, "カメラ %d が代替フレームになっていません", cam.CameraID)

		info, statErr := os.Stat(cam.File)
		require.NoError(t, statErr)
		if firstSize == 0 {
			firstSize = info.Size()
		} else {
			// 代替フレームは決定的なので全カメラ同一サイズ
			assert.Equal(t, firstSize, info.Size())
		}
	}

	// 繰り返し呼んでもクラッシュしない（冪等）
	again, err := f.engine.CaptureOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, again.SavedCount)
}

func TestEngine_CaptureOncePartialFailureDoesNotAbortOthers(t *testing.T) {
	dir := t.TempDir()
	f := newTestFixture(t, dir)

	// カメラ1は故障（代替フレーム）、他は正常
	f.grabbers[1].SetShouldFailGrab(true)

	result, err := f.engine.CaptureOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, result.SavedCount)
	for _, cam := range result.Cameras {
		if cam.CameraID == 1 {
			assert.True(t, cam.Fallback)
		} else {
			assert.False(t, cam.Fallback)
		}
	}
}

func TestEngine_CaptureOnceStorageError(t *testing.T) {
	dir := t.TempDir()

	// 保存先パスの途中をファイルで塞いでMkdirAllを失敗させる
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0644))

	f := newTestFixture(t, blocked)

	result, err := f.engine.CaptureOnce(context.Background())
	require.Error(t, err)

	var serr *StorageError
	require.ErrorAs(t, err, &serr)

	// 全カメラの結果が列挙され、それぞれに失敗理由が入る
	assert.Len(t, result.Cameras, 4)
	for _, cam := range result.Cameras {
		assert.False(t, cam.Saved)
		assert.NotEmpty(t, cam.Error)
	}

	// 保存できなかったので撮影番号は進まない
	assert.Equal(t, 1, f.store.Get().ShotNo)
}

func TestEngine_CaptureOnceIncompleteSettings(t *testing.T) {
	f := newTestFixture(t, t.TempDir())

	empty := ""
	_, err := f.store.Update(settings.Partial{Product: &empty})
	require.NoError(t, err)

	_, err = f.engine.CaptureOnce(context.Background())
	require.ErrorIs(t, err, ErrIncompleteSettings)
}

func TestEngine_CaptureUsesSnapshotNotLiveSettings(t *testing.T) {
	f := newTestFixture(t, t.TempDir())

	// 撮影に渡したスナップショットは、後からの設定変更に影響されない
	snap := f.store.Get()

	product := "ModelB"
	_, err := f.store.Update(settings.Partial{Product: &product})
	require.NoError(t, err)

	result, err := f.engine.capture(context.Background(), snap, snap.LightValue, snap.ShotNo)
	require.NoError(t, err)

	for _, cam := range result.Cameras {
		assert.Contains(t, cam.File, "ModelA", "スナップショットではなく現在設定が使われています")
	}
}
