package server

import (
	"encoding/base64"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"satsuei/internal/stream"
)

// previewWriteWait は1フレーム送信の上限時間
// サーバー側のWriteTimeoutは配信のため無効化しているので、
// 応答しないクライアントはここで切り離す
const previewWriteWait = 10 * time.Second

// upgrader はHTTP接続をWebSocketに昇格させる
// プレビューはローカルネットワークの操作端末向けのためオリジンは検査しない
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// previewMessage はプレビュー配信1フレーム分のメッセージ
type previewMessage struct {
	Type      string            `json:"type"`
	Cameras   map[string]string `json:"cameras"` // カメラ番号 → base64エンコードされたJPEG
	Timestamp int64             `json:"timestamp"`
}

// handlePreview はWebSocket接続を確立してプレビューフレームを配信する
// クライアントごとに独立した購読を持ち、切断は他の接続に影響しない
func (s *Server) handlePreview(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocketへの昇格に失敗: %v", err)
		return
	}
	defer conn.Close()

	id, snapshots := s.feed.Subscribe()
	defer s.feed.Unsubscribe(id)

	log.Printf("プレビュー接続を開始しました: %s", conn.RemoteAddr())

	// 受信側はクローズ検知のためだけに読み捨てる
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			log.Printf("プレビュー接続が切断されました: %s", conn.RemoteAddr())
			return
		case snap, ok := <-snapshots:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(previewWriteWait))
			if err := conn.WriteJSON(encodePreview(snap)); err != nil {
				log.Printf("プレビューの送信に失敗: %v", err)
				return
			}
		}
	}
}

// encodePreview はスナップショットをクライアント向けメッセージに変換する
func encodePreview(snap stream.Snapshot) previewMessage {
	cameras := make(map[string]string, len(snap.Frames))
	for id, frame := range snap.Frames {
		cameras[strconv.Itoa(id)] = base64.StdEncoding.EncodeToString(frame.Data)
	}

	return previewMessage{
		Type:      "preview",
		Cameras:   cameras,
		Timestamp: snap.Timestamp.UnixMilli(),
	}
}
