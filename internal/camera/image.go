package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/google/uuid"
)

// Image はキャプチャされた静止画
type Image struct {
	ID         string      // 画像の一意識別子
	Data       []byte      // JPEGデータ
	Decoded    image.Image // デコード済み画像
	Width      int
	Height     int
	Device     Device    // 撮影したデバイス
	CapturedAt time.Time // 撮影時刻
}

// decodeImage はJPEGデータをデコードしてImageを作成する
func decodeImage(data []byte, device Device) (*Image, error) {
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("JPEG画像のデコードに失敗: %w", err)
	}

	bounds := decoded.Bounds()
	return &Image{
		ID:         uuid.NewString(),
		Data:       data,
		Decoded:    decoded,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Device:     device,
		CapturedAt: time.Now(),
	}, nil
}
