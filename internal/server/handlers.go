package server

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shashin/internal/api"
	"shashin/internal/config"
	"shashin/internal/flow"
)

// eventBuffer はSSE購読者ごとのバッファ数
const eventBuffer = 16

// Handler はapi.ServerInterfaceを実装する
type Handler struct {
	config *config.Config
	flow   Flow
	camera Camera
	spec   []byte
	logger *zap.Logger

	// stopping はサーバーのシャットダウン開始で閉じられる
	stopping <-chan struct{}
}

var _ api.ServerInterface = (*Handler)(nil)

// HealthCheck はヘルスチェックエンドポイントの実装
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, api.HealthResponse{
		Status:    api.Healthy,
		Timestamp: time.Now(),
	})
}

// GetStatus はシステム状態取得エンドポイントの実装
func (h *Handler) GetStatus(c *gin.Context) {
	response := api.StatusResponse{
		Status: api.Running,
		Server: api.ServerInfo{
			Host: h.config.Server.Host,
			Port: h.config.Server.Port,
		},
		Flow:      toAPISnapshot(h.flow.Snapshot()),
		Timestamp: time.Now(),
	}

	if device, ok := h.camera.Device(); ok {
		info := api.CameraInfo{
			Id:       device.ID,
			Name:     device.Name,
			Position: device.Position.String(),
		}
		if device.Path != "" {
			info.Path = stringPtr(device.Path)
		}
		response.Camera = &info
	}

	c.JSON(http.StatusOK, response)
}

// Capture は撮影ボタンの実装
func (h *Handler) Capture(c *gin.Context) {
	h.flow.Capture()
	c.JSON(http.StatusAccepted, toAPISnapshot(h.flow.Snapshot()))
}

// Reset はリセットボタンの実装
func (h *Handler) Reset(c *gin.Context) {
	h.flow.Reset()
	c.JSON(http.StatusAccepted, toAPISnapshot(h.flow.Snapshot()))
}

// GetPhoto は保持している写真を返す
func (h *Handler) GetPhoto(c *gin.Context, params api.GetPhotoParams) {
	img := h.flow.Image()
	if img == nil {
		c.JSON(http.StatusNotFound, errorResponse("photo_not_found", "写真を保持していません"))
		return
	}

	if params.Download != nil && *params.Download {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.jpg"`, img.ID))
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/jpeg", img.Data)
}

// StreamEvents は状態変化をServer-Sent Eventsで配信する
func (h *Handler) StreamEvents(c *gin.Context) {
	updates, cancel := h.flow.Subscribe(eventBuffer)
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// 接続直後に現在の状態を送る
	c.SSEvent("snapshot", toAPISnapshot(h.flow.Snapshot()))
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	c.Stream(func(io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case <-h.stopping:
			return false
		case snap, ok := <-updates:
			if !ok {
				return false
			}
			c.SSEvent("snapshot", toAPISnapshot(snap))
			return true
		}
	})
}

// StreamPreview はMJPEGストリーミングエンドポイントの実装
func (h *Handler) StreamPreview(c *gin.Context) {
	frames, cancel, ok := h.camera.Preview()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, errorResponse("preview_unavailable", "このカメラはプレビューに対応していません"))
		return
	}
	defer cancel()

	h.streamMJPEG(c, frames)
}

// GetOpenAPI はAPI定義を返す
func (h *Handler) GetOpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", h.spec)
}

// streamMJPEG はMJPEGストリームを配信する
func (h *Handler) streamMJPEG(c *gin.Context, frames <-chan []byte) {
	// レスポンスヘッダーを設定
	c.Header("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	writer := c.Writer
	clientGone := c.Request.Context().Done()
	c.Status(http.StatusOK)
	writer.Flush()

	for {
		select {
		case <-clientGone:
			return

		case <-h.stopping:
			return

		case frame, ok := <-frames:
			if !ok {
				// カメラが停止した
				return
			}
			if err := writeFrame(writer, frame); err != nil {
				h.logger.Debug("プレビューの送信を終了します", zap.Error(err))
				return
			}
			writer.Flush()
		}
	}
}

// writeFrame はMJPEGの1パートを書き込む
func writeFrame(w io.Writer, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// toAPISnapshot はフローの状態をAPIの型に変換する
func toAPISnapshot(snap flow.Snapshot) api.FlowSnapshot {
	out := api.FlowSnapshot{
		Version:      int64(snap.Version),
		State:        convertState(snap.State),
		StatusText:   snap.StatusText,
		StatusAlpha:  snap.StatusAlpha,
		PreviewAlpha: snap.PreviewAlpha,
		PhotoAlpha:   snap.PhotoAlpha,
		ActionTitle:  snap.ActionTitle,
		Capturing:    snap.Capturing,
		Sending:      snap.Sending,
	}
	if snap.Image != nil {
		out.Image = &api.ImageInfo{
			Id:         snap.Image.ID,
			Width:      snap.Image.Width,
			Height:     snap.Image.Height,
			Size:       snap.Image.Size,
			Device:     snap.Image.Device,
			CapturedAt: snap.Image.CapturedAt,
		}
	}
	return out
}

// convertState はフローの状態を変換する
func convertState(state flow.State) api.FlowSnapshotState {
	switch state {
	case flow.StateCaptured:
		return api.Captured
	case flow.StateErrored:
		return api.Errored
	default:
		return api.Previewing
	}
}

// errorResponse はエラーレスポンスを作成する
func errorResponse(code, message string) api.ErrorResponse {
	return api.ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// stringPtr は文字列のポインタを返すヘルパー関数
func stringPtr(s string) *string {
	return &s
}
