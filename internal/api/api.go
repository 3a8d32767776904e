// Package api はHTTP APIの型とルーティングを提供する
//
// 型とハンドラーの登録はopenapi.yamlの定義に対応する。
package api

import (
	"context"
	_ "embed"
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
)

//go:embed openapi.yaml
var specYAML []byte

// Spec は埋め込まれたAPI定義を読み込み、検証して返す
func Spec(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx

	doc, err := loader.LoadFromData(specYAML)
	if err != nil {
		return nil, fmt.Errorf("API定義の読み込みに失敗: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("API定義の検証に失敗: %w", err)
	}
	return doc, nil
}

// HealthResponseStatus はヘルスチェックの状態
type HealthResponseStatus string

// HealthResponseStatus の値
const (
	Healthy HealthResponseStatus = "healthy"
)

// StatusResponseStatus はシステムの状態
type StatusResponseStatus string

// StatusResponseStatus の値
const (
	Running StatusResponseStatus = "running"
)

// FlowSnapshotState は撮影フローの状態
type FlowSnapshotState string

// FlowSnapshotState の値
const (
	Previewing FlowSnapshotState = "previewing"
	Captured   FlowSnapshotState = "captured"
	Errored    FlowSnapshotState = "errored"
)

// HealthResponse defines model for HealthResponse.
type HealthResponse struct {
	Status    HealthResponseStatus `json:"status"`
	Timestamp time.Time            `json:"timestamp"`
}

// ServerInfo defines model for ServerInfo.
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// CameraInfo defines model for CameraInfo.
type CameraInfo struct {
	Id       string  `json:"id"`
	Name     string  `json:"name"`
	Path     *string `json:"path,omitempty"`
	Position string  `json:"position"`
}

// ImageInfo defines model for ImageInfo.
type ImageInfo struct {
	Id         string    `json:"id"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Size       int       `json:"size"`
	Device     string    `json:"device"`
	CapturedAt time.Time `json:"captured_at"`
}

// FlowSnapshot defines model for FlowSnapshot.
type FlowSnapshot struct {
	Version      int64             `json:"version"`
	State        FlowSnapshotState `json:"state"`
	StatusText   string            `json:"status_text"`
	StatusAlpha  float64           `json:"status_alpha"`
	PreviewAlpha float64           `json:"preview_alpha"`
	PhotoAlpha   float64           `json:"photo_alpha"`
	ActionTitle  string            `json:"action_title"`
	Capturing    bool              `json:"capturing"`
	Sending      bool              `json:"sending"`
	Image        *ImageInfo        `json:"image,omitempty"`
}

// StatusResponse defines model for StatusResponse.
type StatusResponse struct {
	Status    StatusResponseStatus `json:"status"`
	Server    ServerInfo           `json:"server"`
	Camera    *CameraInfo          `json:"camera,omitempty"`
	Flow      FlowSnapshot         `json:"flow"`
	Timestamp time.Time            `json:"timestamp"`
}

// ErrorResponse defines model for ErrorResponse.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Details   *string   `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// GetPhotoParams defines parameters for GetPhoto.
type GetPhotoParams struct {
	// Download trueなら添付ファイルとして返す
	Download *bool `form:"download,omitempty" json:"download,omitempty"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// ヘルスチェック
	// (GET /health)
	HealthCheck(c *gin.Context)
	// 撮影フローとカメラの状態を取得する
	// (GET /api/status)
	GetStatus(c *gin.Context)
	// 撮影ボタン
	// (POST /api/capture)
	Capture(c *gin.Context)
	// リセットボタン
	// (POST /api/reset)
	Reset(c *gin.Context)
	// 保持している写真を取得する
	// (GET /api/photo)
	GetPhoto(c *gin.Context, params GetPhotoParams)
	// 状態変化をServer-Sent Eventsで配信する
	// (GET /api/events)
	StreamEvents(c *gin.Context)
	// ライブプレビューをMJPEGで配信する
	// (GET /api/preview)
	StreamPreview(c *gin.Context)
	// このAPI定義を返す
	// (GET /api/openapi.json)
	GetOpenAPI(c *gin.Context)
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandler       func(*gin.Context, error, int)
}

// MiddlewareFunc はハンドラーの前に実行される処理
type MiddlewareFunc func(c *gin.Context)

func (siw *ServerInterfaceWrapper) runMiddlewares(c *gin.Context) bool {
	for _, middleware := range siw.HandlerMiddlewares {
		middleware(c)
		if c.IsAborted() {
			return false
		}
	}
	return true
}

// HealthCheck operation middleware
func (siw *ServerInterfaceWrapper) HealthCheck(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.HealthCheck(c)
	}
}

// GetStatus operation middleware
func (siw *ServerInterfaceWrapper) GetStatus(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.GetStatus(c)
	}
}

// Capture operation middleware
func (siw *ServerInterfaceWrapper) Capture(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.Capture(c)
	}
}

// Reset operation middleware
func (siw *ServerInterfaceWrapper) Reset(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.Reset(c)
	}
}

// GetPhoto operation middleware
func (siw *ServerInterfaceWrapper) GetPhoto(c *gin.Context) {
	var params GetPhotoParams

	err := runtime.BindQueryParameter("form", true, false, "download", c.Request.URL.Query(), &params.Download)
	if err != nil {
		siw.ErrorHandler(c, fmt.Errorf("Invalid format for parameter download: %w", err), http.StatusBadRequest)
		return
	}

	if siw.runMiddlewares(c) {
		siw.Handler.GetPhoto(c, params)
	}
}

// StreamEvents operation middleware
func (siw *ServerInterfaceWrapper) StreamEvents(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.StreamEvents(c)
	}
}

// StreamPreview operation middleware
func (siw *ServerInterfaceWrapper) StreamPreview(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.StreamPreview(c)
	}
}

// GetOpenAPI operation middleware
func (siw *ServerInterfaceWrapper) GetOpenAPI(c *gin.Context) {
	if siw.runMiddlewares(c) {
		siw.Handler.GetOpenAPI(c)
	}
}

// GinServerOptions provides options for the Gin server.
type GinServerOptions struct {
	BaseURL      string
	Middlewares  []MiddlewareFunc
	ErrorHandler func(*gin.Context, error, int)
}

// RegisterHandlers はopenapi.yamlの定義どおりにルートを登録する
func RegisterHandlers(router gin.IRouter, si ServerInterface) {
	RegisterHandlersWithOptions(router, si, GinServerOptions{})
}

// RegisterHandlersWithOptions はオプション付きでルートを登録する
func RegisterHandlersWithOptions(router gin.IRouter, si ServerInterface, options GinServerOptions) {
	errorHandler := options.ErrorHandler
	if errorHandler == nil {
		errorHandler = func(c *gin.Context, err error, statusCode int) {
			c.JSON(statusCode, ErrorResponse{
				Error:     "invalid_request",
				Message:   err.Error(),
				Timestamp: time.Now(),
			})
		}
	}

	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandler:       errorHandler,
	}

	router.GET(options.BaseURL+"/health", wrapper.HealthCheck)
	router.GET(options.BaseURL+"/api/status", wrapper.GetStatus)
	router.POST(options.BaseURL+"/api/capture", wrapper.Capture)
	router.POST(options.BaseURL+"/api/reset", wrapper.Reset)
	router.GET(options.BaseURL+"/api/photo", wrapper.GetPhoto)
	router.GET(options.BaseURL+"/api/events", wrapper.StreamEvents)
	router.GET(options.BaseURL+"/api/preview", wrapper.StreamPreview)
	router.GET(options.BaseURL+"/api/openapi.json", wrapper.GetOpenAPI)
}
