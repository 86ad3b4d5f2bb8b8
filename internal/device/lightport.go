package device

import (
	"fmt"
	"sync"

	"go.bug.st/serial"
)

// 照明コントローラープロトコルの制御バイト
const (
	lightSTX = 0x02 // パケット開始
	lightETX = 0x03 // パケット終了
)

// buildLightPacket は照明コントローラー向けのパケットを組み立てる
// 形式: STX + 'A' + "vvv,vvv,vvv,vvv" + ETX （vvvはASCII 3桁の輝度値）
// 4チャンネル全てに同じ値を設定する
func buildLightPacket(value int) []byte {
	v := []byte(fmt.Sprintf("%03d", value))

	packet := make([]byte, 0, 18)
	packet = append(packet, lightSTX, 'A')
	for i := 0; i < 3; i++ {
		packet = append(packet, v...)
		packet = append(packet, ',')
	}
	packet = append(packet, v...)
	packet = append(packet, lightETX)
	return packet
}

// SerialLight はRS-232シリアルポート経由の照明コントローラー実装
type SerialLight struct {
	portName string
	baud     int

	port serial.Port
	mu   sync.Mutex
}

// NewSerialLight は新しいSerialLightを作成する
func NewSerialLight(portName string, baud int) *SerialLight {
	return &SerialLight{
		portName: portName,
		baud:     baud,
	}
}

// Open はシリアルポートを開く（9600 8N1が既定）
func (l *SerialLight) Open() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port != nil {
		return nil // 既に開いている
	}

	mode := &serial.Mode{
		BaudRate: l.baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(l.portName, mode)
	if err != nil {
		return fmt.Errorf("シリアルポート %s を開けません: %w", l.portName, err)
	}

	l.port = port
	return nil
}

// Send は輝度値をパケットに変換して送信する
func (l *SerialLight) Send(value int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return fmt.Errorf("シリアルポート %s: %w", l.portName, ErrUnavailable)
	}

	packet := buildLightPacket(value)
	if _, err := l.port.Write(packet); err != nil {
		return fmt.Errorf("シリアルポート %s への書き込みに失敗: %w", l.portName, err)
	}

	return nil
}

// Close はシリアルポートを閉じる
func (l *SerialLight) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.port == nil {
		return nil // 既に閉じている
	}

	err := l.port.Close()
	l.port = nil
	return err
}
