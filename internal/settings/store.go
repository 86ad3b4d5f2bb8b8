// Package settings はプロセス全体で共有する撮影設定を管理する
//
// 設定はStoreを唯一の入り口として読み書きする。読み取りは常に
// 一貫したスナップショットを返し、撮影処理は操作開始時のスナップショットを
// 使い続けることで、途中の設定変更の影響を受けない。
package settings

import (
	"fmt"
	"sync"
)

// SaveMode は撮影に参加するカメラの選択方法を表す
// ワイヤ値は旧システムとの互換のため 1/2/3 を維持する
type SaveMode int

const (
	// SaveModeExcludeSpecial は特別カメラを除く全カメラを保存する
	SaveModeExcludeSpecial SaveMode = 1
	// SaveModeAll は全カメラを保存する
	SaveModeAll SaveMode = 2
	// SaveModeSpecialOnly は特別カメラのみ保存する
	SaveModeSpecialOnly SaveMode = 3
)

// Valid は既知の保存モードかどうかを返す
func (m SaveMode) Valid() bool {
	switch m {
	case SaveModeExcludeSpecial, SaveModeAll, SaveModeSpecialOnly:
		return true
	}
	return false
}

// Selects は指定カメラがこの保存モードの対象かどうかを返す
// specialID は設定で特別扱いされているカメラ番号
func (m SaveMode) Selects(cameraID, specialID int) bool {
	switch m {
	case SaveModeExcludeSpecial:
		return cameraID != specialID
	case SaveModeSpecialOnly:
		return cameraID == specialID
	default:
		return true
	}
}

// Settings は撮影処理が参照する現在設定のスナップショット
type Settings struct {
	Product    string   `json:"product"`     // 製品名
	Condition  string   `json:"condition"`   // 検査条件名
	ShotNo     int      `json:"shot_no"`     // 撮影番号（単調増加、明示的リセットのみ可）
	SavePath   string   `json:"save_path"`   // 画像保存先ディレクトリ
	SaveMode   SaveMode `json:"save_mode"`   // 保存対象カメラの選択
	LightValue int      `json:"light_value"` // 現在の照明輝度 (0-255)
}

// Partial は部分更新のリクエスト
// nilのフィールドは現在値を維持する
type Partial struct {
	Product    *string   `json:"product"`
	Condition  *string   `json:"condition"`
	ShotNo     *int      `json:"shot_no"`
	SavePath   *string   `json:"save_path"`
	SaveMode   *SaveMode `json:"save_mode"`
	LightValue *int      `json:"light_value"`
}

// ValidationError は設定値の検証エラーを表す
type ValidationError struct {
	Field   string // 問題のあったフィールド名
	Message string
}

// Error はエラーメッセージを返す
func (e *ValidationError) Error() string {
	return fmt.Sprintf("設定の検証エラー (%s): %s", e.Field, e.Message)
}

// Store はプロセス全体の現在設定を保持する
type Store struct {
	current Settings
	mu      sync.RWMutex
}

// NewStore は初期設定を持つ新しいStoreを作成する
func NewStore(initial Settings) *Store {
	return &Store{current: initial}
}

// Get は現在設定のスナップショットを返す
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update は指定されたフィールドのみを検証付きでマージし、新しいスナップショットを返す
// 検証に失敗した場合は設定を一切変更せず *ValidationError を返す
func (s *Store) Update(p Partial) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current

	if p.Product != nil {
		next.Product = *p.Product
	}
	if p.Condition != nil {
		next.Condition = *p.Condition
	}
	if p.ShotNo != nil {
		if *p.ShotNo < 0 {
			return s.current, &ValidationError{Field: "shot_no", Message: fmt.Sprintf("撮影番号は0以上である必要があります: %d", *p.ShotNo)}
		}
		next.ShotNo = *p.ShotNo
	}
	if p.SavePath != nil {
		if *p.SavePath == "" {
			return s.current, &ValidationError{Field: "save_path", Message: "保存先ディレクトリを空にはできません"}
		}
		next.SavePath = *p.SavePath
	}
	if p.SaveMode != nil {
		if !p.SaveMode.Valid() {
			return s.current, &ValidationError{Field: "save_mode", Message: fmt.Sprintf("保存モードは1, 2, 3のいずれかです: %d", *p.SaveMode)}
		}
		next.SaveMode = *p.SaveMode
	}
	if p.LightValue != nil {
		if *p.LightValue < 0 || *p.LightValue > 255 {
			return s.current, &ValidationError{Field: "light_value", Message: fmt.Sprintf("照明輝度は0-255の範囲です: %d", *p.LightValue)}
		}
		next.LightValue = *p.LightValue
	}

	s.current = next
	return next, nil
}

// IncrementShot は撮影番号を1つ進めて新しい値を返す
func (s *Store) IncrementShot() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current.ShotNo++
	return s.current.ShotNo
}

// SetLightValue は照明輝度の現在値を記録する（クランプ済みの値を渡す前提）
func (s *Store) SetLightValue(value int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.LightValue = value
}
