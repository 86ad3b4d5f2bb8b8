package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"satsuei/internal/arbiter"
	"satsuei/internal/device"
	"satsuei/internal/metric"
	"satsuei/internal/settings"
)

// Engine は撮影処理を実行する
type Engine struct {
	registry *device.Registry
	arbiter  *arbiter.Arbiter
	store    *settings.Store

	specialCamera int // 保存モードで特別扱いするカメラ番号
}

// NewEngine は新しいEngineを作成する
func NewEngine(registry *device.Registry, arb *arbiter.Arbiter, store *settings.Store, specialCamera int) *Engine {
	return &Engine{
		registry:      registry,
		arbiter:       arb,
		store:         store,
		specialCamera: specialCamera,
	}
}

// CaptureOnce は現在設定で1回撮影する
// 対象カメラごとに独立して成否を記録し、1台でも保存できれば撮影番号を進める
// 戻り値のerrorは保存I/O失敗があった場合の *StorageError のみで、
// カメラ不在は代替フレームの保存として成功扱いになる
func (e *Engine) CaptureOnce(ctx context.Context) (Result, error) {
	snap := e.store.Get()

	result, err := e.capture(ctx, snap, snap.LightValue, snap.ShotNo)
	if err != nil && result.SavedCount == 0 {
		return result, err
	}

	if result.SavedCount > 0 {
		e.store.IncrementShot()
	}

	return result, err
}

// capture は指定スナップショット・輝度・撮影番号で全対象カメラを撮影する
// シーケンス実行からも呼ばれるため、設定は引数のスナップショットのみを参照する
func (e *Engine) capture(ctx context.Context, snap settings.Settings, lightValue, shotNo int) (Result, error) {
	if snap.Product == "" || snap.Condition == "" {
		return Result{}, ErrIncompleteSettings
	}

	result := Result{
		ShotNo:     shotNo,
		LightValue: lightValue,
	}

	timestamp := time.Now().Format("20060102_150405")

	var storageErr error
	for _, id := range e.registry.Targets() {
		if !snap.SaveMode.Selects(id, e.specialCamera) {
			continue
		}

		camResult := CameraResult{CameraID: id}

		// カメラ単位で排他を取る。他カメラのプレビューは止めない
		err := e.arbiter.WithExclusive(ctx, []int{id}, func() error {
			frame := e.registry.AcquireFrame(ctx, id)
			camResult.Fallback = frame.IsFallback()
			if camResult.Fallback {
				metric.FallbackFramesTotal.Inc()
			}

			path := e.filePath(snap, lightValue, shotNo, id, timestamp)
			if err := writeFrame(path, frame.Data); err != nil {
				return err
			}

			camResult.Saved = true
			camResult.File = path
			return nil
		})

		if err != nil {
			camResult.Error = err.Error()
			metric.CapturesTotal.WithLabelValues("failed").Inc()

			// 保存失敗は記録して他カメラの撮影を継続する
			if storageErr == nil {
				storageErr = err
			}
		} else {
			result.SavedCount++
			metric.CapturesTotal.WithLabelValues("saved").Inc()
		}

		result.Cameras = append(result.Cameras, camResult)
	}

	return result, storageErr
}

// filePath は保存先のフルパスを組み立てる
// 特別カメラは独立したサブツリー（cam<N>/）配下に保存する
func (e *Engine) filePath(snap settings.Settings, lightValue, shotNo, cameraID int, timestamp string) string {
	lightDir := fmt.Sprintf("Light_%03d", lightValue)

	var dir string
	if cameraID == e.specialCamera {
		dir = filepath.Join(snap.SavePath, fmt.Sprintf("cam%d", e.specialCamera), snap.Product, snap.Condition, lightDir)
	} else {
		dir = filepath.Join(snap.SavePath, snap.Product, snap.Condition, lightDir)
	}

	filename := fmt.Sprintf("%s_%s_%s_%03d_Cam%d_%s.jpg",
		snap.Product, snap.Condition, lightDir, shotNo, cameraID, timestamp)

	return filepath.Join(dir, filename)
}

// writeFrame はフレームをファイルに書き込む
// 失敗は *StorageError として返す
func writeFrame(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return &StorageError{Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return &StorageError{Path: path, Err: err}
	}
	return nil
}
