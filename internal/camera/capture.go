package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
)

var (
	jpegStart = []byte{0xFF, 0xD8}
	jpegEnd   = []byte{0xFF, 0xD9}
)

// V4L2Capturer は ffmpeg を使ってV4L2デバイスからJPEGを取得する
type V4L2Capturer struct {
	devicePath string
	width      int
	height     int
	fps        int
}

// NewV4L2Capturer は新しいV4L2Capturerを作成する
func NewV4L2Capturer(devicePath string, width, height, fps int) *V4L2Capturer {
	return &V4L2Capturer{
		devicePath: devicePath,
		width:      width,
		height:     height,
		fps:        fps,
	}
}

// DevicePath はキャプチャ対象のデバイスパスを返す
func (c *V4L2Capturer) DevicePath() string {
	return c.devicePath
}

// CaptureFrameAsJPEG は1フレームをキャプチャしてJPEGバイト列として返す
func (c *V4L2Capturer) CaptureFrameAsJPEG(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", c.stillArgs()...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("JPEGフレームキャプチャに失敗: %w (stderr: %s)", err, stderr.String())
	}

	if !bytes.HasPrefix(stdout.Bytes(), jpegStart) {
		return nil, fmt.Errorf("ffmpegの出力がJPEGではありません (%d bytes)", stdout.Len())
	}

	return stdout.Bytes(), nil
}

// StartStream はMJPEGの連続キャプチャを開始し、完全なJPEGフレームを frameChan に送る
// ctx がキャンセルされるまでブロックする
func (c *V4L2Capturer) StartStream(ctx context.Context, frameChan chan<- []byte, errorChan chan<- error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", c.streamArgs()...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		errorChan <- fmt.Errorf("stdoutパイプの作成に失敗: %w", err)
		return
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		errorChan <- fmt.Errorf("ffmpegの起動に失敗: %w", err)
		return
	}
	defer func() {
		// キャンセル時のエラーは無視
		_ = cmd.Wait()
	}()

	reader := bufio.NewReaderSize(stdout, 1024*1024)
	buffer := make([]byte, 64*1024)
	var pending []byte

	for {
		n, err := reader.Read(buffer)
		if n > 0 {
			var frames [][]byte
			frames, pending = splitJPEGFrames(append(pending, buffer[:n]...))
			for _, frame := range frames {
				select {
				case frameChan <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				errorChan <- fmt.Errorf("フレーム読み取りエラー: %w", err)
			} else if ctx.Err() == nil {
				errorChan <- fmt.Errorf("ffmpegのストリームが終了しました")
			}
			return
		}
	}
}

func (c *V4L2Capturer) stillArgs() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-i", c.devicePath,
		"-vframes", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-q:v", "2",
		"-",
	}
}

func (c *V4L2Capturer) streamArgs() []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", c.width, c.height),
		"-r", strconv.Itoa(c.fps),
		"-i", c.devicePath,
		"-f", "image2pipe",
		"-c:v", "mjpeg",
		"-q:v", "3",
		"-",
	}
}

// splitJPEGFrames はバッファから完全なJPEGフレームを切り出す
// 戻り値の rest は次の読み取りに持ち越す未完成データ
func splitJPEGFrames(data []byte) (frames [][]byte, rest []byte) {
	for {
		start := bytes.Index(data, jpegStart)
		if start == -1 {
			// 開始マーカーの前半だけが末尾にある可能性を残す
			if len(data) > 0 && data[len(data)-1] == 0xFF {
				return frames, []byte{0xFF}
			}
			return frames, nil
		}

		end := bytes.Index(data[start+len(jpegStart):], jpegEnd)
		if end == -1 {
			rest = make([]byte, len(data)-start)
			copy(rest, data[start:])
			return frames, rest
		}

		end += start + len(jpegStart) + len(jpegEnd)
		frame := make([]byte, end-start)
		copy(frame, data[start:end])
		frames = append(frames, frame)

		data = data[end:]
	}
}
