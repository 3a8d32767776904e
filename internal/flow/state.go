package flow

import (
	"fmt"
	"strings"
	"time"
)

// State は撮影フローの状態
type State uint8

const (
	StatePreviewing State = iota // プレビュー中
	StateCaptured                // 撮影済み
	StateErrored                 // 撮影失敗
)

func (s State) String() string {
	v, err := s.MarshalText()
	if err != nil {
		return fmt.Sprintf("illegal-flow-state-%d", uint8(s))
	}
	return string(v)
}

// MarshalText はテキスト表現を返す
func (s State) MarshalText() ([]byte, error) {
	switch s {
	case StatePreviewing:
		return []byte("previewing"), nil
	case StateCaptured:
		return []byte("captured"), nil
	case StateErrored:
		return []byte("errored"), nil
	default:
		return nil, fmt.Errorf("無効なフロー状態: %d", uint8(s))
	}
}

// UnmarshalText はテキスト表現から状態を復元する
func (s *State) UnmarshalText(text []byte) error {
	switch strings.TrimSpace(strings.ToLower(string(text))) {
	case "previewing":
		*s = StatePreviewing
	case "captured":
		*s = StateCaptured
	case "errored":
		*s = StateErrored
	default:
		return fmt.Errorf("無効なフロー状態: %s", text)
	}
	return nil
}

// 画面に表示する文言
const (
	TitleCapture = "Capture"
	TitleSend    = "Send"

	StatusStarting  = "Starting Camera"
	StatusCapturing = "Capturing Photo"
	StatusFailed    = "Uh oh! Something went wrong. Try it again."
	StatusResetting = "Resetting camera"
	StatusStopped   = "Camera Stopped"
	StatusSending   = "Sending..."
)

// ImageInfo は保持している画像のメタデータ
type ImageInfo struct {
	ID         string    `json:"id"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Size       int       `json:"size"`
	Device     string    `json:"device"`
	CapturedAt time.Time `json:"captured_at"`
}

// Snapshot はある時点の状態と画面表示
type Snapshot struct {
	Version      uint64     `json:"version"`
	State        State      `json:"state"`
	StatusText   string     `json:"status_text"`
	StatusAlpha  float64    `json:"status_alpha"`
	PreviewAlpha float64    `json:"preview_alpha"`
	PhotoAlpha   float64    `json:"photo_alpha"`
	ActionTitle  string     `json:"action_title"`
	Capturing    bool       `json:"capturing"`
	Sending      bool       `json:"sending"`
	Image        *ImageInfo `json:"image,omitempty"`
}
