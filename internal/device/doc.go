// Package device はカメラ・照明デバイスへのアクセスを担う
//
// # 責務
// - カメラからの1フレーム取得（FrameGrabber）
// - 照明コントローラーへの輝度指示（LightController）
// - デバイス不在時の代替フレーム生成
// - デバイス接続状態のキャッシュと公開
//
// # 使い分け
// このパッケージは以下の場合に使用する：
// - カメラの有無を気にせずフレームを取得したい
// - 照明の輝度を安全に（0-255にクランプして）設定したい
// - デバイスの接続状態を確認したい
//
// # 仕様
// - Registry: 設定で固定されたデバイス集合の一元管理
// - AcquireFrame はエラーを返さない。失敗時は必ず Fallback フレームを返す
// - 照明プロトコル: STX 'A' + ASCII 3桁値×4（カンマ区切り）+ ETX
// - Thread-safe な操作をサポート
//
// # 前提要件
//   - V4L2対応カメラ: go4vl経由でフレームを取得
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
//   - シリアルポートアクセス権限（照明制御）
//     sudo usermod -a -G dialout $USER
package device
