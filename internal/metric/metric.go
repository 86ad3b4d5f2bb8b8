// Package metric は運用監視用のPrometheusメトリクスを提供する
package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry はアプリケーション専用のメトリクスレジストリ
var Registry = prometheus.NewRegistry()

var (
	// CapturesTotal はカメラごとの撮影結果数
	CapturesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "satsuei_captures_total",
			Help: "撮影結果の累計数（result: saved/failed）",
		},
		[]string{"result"},
	)

	// FallbackFramesTotal は代替フレームを返した回数
	FallbackFramesTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "satsuei_fallback_frames_total",
			Help: "デバイス不在により代替フレームを返した累計数",
		},
	)

	// SequenceStepsTotal はシーケンス撮影で実行したステップ数
	SequenceStepsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Name: "satsuei_sequence_steps_total",
			Help: "シーケンス撮影で実行したステップの累計数",
		},
	)

	// PreviewViewers は接続中のプレビュー視聴者数
	PreviewViewers = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "satsuei_preview_viewers",
			Help: "現在接続中のプレビュー視聴者数",
		},
	)
)

// Handler はメトリクス公開用のHTTPハンドラーを返す
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
