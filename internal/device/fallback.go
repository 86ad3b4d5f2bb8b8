package device

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
	"time"
)

// fallbackQuality は代替フレームのJPEG品質
// 固定値にすることで同一サイズなら常に同一バイト列になる
const fallbackQuality = 85

// fallbackCache はサイズごとにエンコード済み代替フレームを保持する
// 代替フレームは決定的なので一度生成すれば使い回せる
type fallbackCache struct {
	mu    sync.Mutex
	cache map[image.Rectangle][]byte
}

func newFallbackCache() *fallbackCache {
	return &fallbackCache{
		cache: make(map[image.Rectangle][]byte),
	}
}

// frame は指定サイズの黒い代替フレームを返す
func (fc *fallbackCache) frame(cameraID, width, height int) Frame {
	return Frame{
		CameraID:  cameraID,
		Data:      fc.encoded(width, height),
		Width:     width,
		Height:    height,
		Status:    FrameFallback,
		Timestamp: time.Now(),
	}
}

// encoded は指定サイズの黒画像のJPEGバイト列を返す
func (fc *fallbackCache) encoded(width, height int) []byte {
	rect := image.Rect(0, 0, width, height)

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if data, ok := fc.cache[rect]; ok {
		return data
	}

	// 黒一色の画像を生成してエンコードする
	img := image.NewRGBA(rect)
	black := color.RGBA{A: 255}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, black)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: fallbackQuality}); err != nil {
		// メモリ上のエンコードは失敗しない前提だが、万一の場合は空データを返す
		return nil
	}

	data := buf.Bytes()
	fc.cache[rect] = data
	return data
}
