package capture

import (
	"errors"
	"fmt"
	"time"
)

// ErrSequenceRunning は既にシーケンスが実行中であることを表す
var ErrSequenceRunning = errors.New("シーケンスが既に実行中です")

// ErrInvalidSpec はシーケンス指定が無効であることを表す
var ErrInvalidSpec = errors.New("無効なシーケンス指定")

// ErrIncompleteSettings は撮影に必要な設定が不足していることを表す
var ErrIncompleteSettings = errors.New("製品名と検査条件が設定されていません")

// StorageError は画像保存時のI/O失敗を表す
// 撮影単体では該当カメラの失敗として記録され、シーケンス実行中は致命的となる
type StorageError struct {
	Path string
	Err  error
}

// Error はエラーメッセージを返す
func (e *StorageError) Error() string {
	return fmt.Sprintf("画像の保存に失敗 (%s): %v", e.Path, e.Err)
}

// Unwrap は元のエラーを返す
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Direction はシーケンスの輝度走査方向を表す
type Direction string

const (
	DirectionForward Direction = "forward" // start → end
	DirectionReverse Direction = "reverse" // end → start
)

// SequenceSpec は輝度スイープ撮影の指定
type SequenceSpec struct {
	Start     int       `json:"start"`
	End       int       `json:"end"`
	Step      int       `json:"step"`
	Direction Direction `json:"direction"`
}

// Validate はシーケンス指定の妥当性を検証する
func (s SequenceSpec) Validate() error {
	if s.Step <= 0 {
		return fmt.Errorf("%w: ステップは正の値である必要があります: %d", ErrInvalidSpec, s.Step)
	}
	if s.Start > s.End {
		return fmt.Errorf("%w: startはend以下である必要があります: %d > %d", ErrInvalidSpec, s.Start, s.End)
	}
	if s.Start < 0 || s.End > 255 {
		return fmt.Errorf("%w: 輝度範囲は0-255です: %d-%d", ErrInvalidSpec, s.Start, s.End)
	}
	switch s.Direction {
	case DirectionForward, DirectionReverse, "":
		// 未指定はforward扱い
	default:
		return fmt.Errorf("%w: 方向はforwardまたはreverseです: %s", ErrInvalidSpec, s.Direction)
	}
	return nil
}

// BrightnessLevels は走査する輝度値のリストを決定的な順序で返す
// forwardはstartからend、reverseはendからstartへ向かう
func (s SequenceSpec) BrightnessLevels() []int {
	levels := make([]int, 0, (s.End-s.Start)/s.Step+1)
	for v := s.Start; v <= s.End; v += s.Step {
		levels = append(levels, v)
	}

	if s.Direction == DirectionReverse {
		for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
			levels[i], levels[j] = levels[j], levels[i]
		}
	}

	return levels
}

// RunState はシーケンス実行のライフサイクル状態を表す
type RunState string

const (
	RunPending   RunState = "pending"   // 受理済み・未開始
	RunRunning   RunState = "running"   // 実行中
	RunCompleted RunState = "completed" // 全ステップ完了
	RunCancelled RunState = "cancelled" // キャンセルで停止
	RunFailed    RunState = "failed"    // 致命的エラーで停止
)

// Terminal は終端状態かどうかを返す
func (s RunState) Terminal() bool {
	switch s {
	case RunCompleted, RunCancelled, RunFailed:
		return true
	}
	return false
}

// CameraResult はカメラ1台分の撮影結果
type CameraResult struct {
	CameraID int    `json:"camera_id"`
	Saved    bool   `json:"saved"`
	Fallback bool   `json:"fallback"`        // 代替フレームを保存した場合true
	File     string `json:"file,omitempty"`  // 保存したファイルパス
	Error    string `json:"error,omitempty"` // 保存に失敗した場合の理由
}

// Result は1回の撮影の結果
type Result struct {
	ShotNo     int            `json:"shot_no"`
	LightValue int            `json:"light_value"`
	SavedCount int            `json:"saved_count"`
	Cameras    []CameraResult `json:"cameras"`
}

// StepResult はシーケンス1ステップ分の結果
type StepResult struct {
	Index      int            `json:"index"`
	Brightness int            `json:"brightness"`
	SavedCount int            `json:"saved_count"`
	Cameras    []CameraResult `json:"cameras"`
}

// RunSnapshot はシーケンス実行状態のスナップショット
type RunSnapshot struct {
	ID           string       `json:"id"`
	Spec         SequenceSpec `json:"spec"`
	State        RunState     `json:"state"`
	Levels       []int        `json:"levels"`
	CurrentIndex int          `json:"current_index"`
	Steps        []StepResult `json:"steps"`
	Error        string       `json:"error,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at,omitzero"`
}
