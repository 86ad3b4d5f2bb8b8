// Package server は、HTTPサーバーとWebSocket通信を管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// 撮影・照明・設定操作のAPI提供、プレビュー配信を担当します。
//
// 責務:
//   - HTTPサーバーの起動と管理
//   - 設定・照明・撮影・シーケンス操作のREST API
//   - WebSocketによるプレビューフレームの配信
//   - メトリクスエンドポイントの公開
//
// 仕様:
//   - ルーティングはgin-gonic/ginを使用
//   - WebSocketはgorilla/websocketを使用
//   - グレースフルシャットダウンに対応
//   - 複数クライアントの同時接続をサポート
package server
