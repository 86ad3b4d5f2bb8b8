// Package capture は撮影処理の実行を担う
//
// # 責務
// - 現在設定に基づく1回撮影（全対象カメラの取得と保存）
// - 照明輝度スイープによるシーケンス撮影の実行
// - シーケンス実行状態（進捗・キャンセル・失敗）の管理
//
// # 仕様
// - 撮影は保存モードで選択されたカメラごとに独立して成否を記録する
// - カメラ不在はエラーではなく代替フレームの保存として扱う
// - ストレージ書き込み失敗のみがシーケンスを中断させる
// - 同時に実行できるシーケンスは1つだけ
// - キャンセルはステップ境界でのみ判定する（実行中の取得・保存は完走させる）
package capture
