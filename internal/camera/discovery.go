package camera

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	videoNodePattern   = regexp.MustCompile(`^/dev/video\d+$`)
	videoNumberPattern = regexp.MustCompile(`video(\d+)`)
	formatLinePattern  = regexp.MustCompile(`\[\d+\]:\s*'(\w+)'`)
)

// commandRunner は外部コマンドを実行して標準出力を返す
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// LinuxDiscovery はV4L2デバイス (/dev/video*) を検出する
// デバイス名やフォーマットの取得には v4l2-ctl を使う
type LinuxDiscovery struct {
	pattern string
	run     commandRunner
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() *LinuxDiscovery {
	return &LinuxDiscovery{
		pattern: "/dev/video*",
		run:     runCommand,
	}
}

// ScanDevices はカラー撮影可能なメインのビデオノードを番号順に返す
func (d *LinuxDiscovery) ScanDevices(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(d.pattern)
	if err != nil {
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	sort.Slice(matches, func(i, j int) bool {
		return extractDeviceNumber(matches[i]) < extractDeviceNumber(matches[j])
	})

	var devices []string
	for _, match := range matches {
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		if d.IsDeviceAvailable(ctx, match) && d.IsMainCamera(ctx, match) {
			devices = append(devices, match)
		}
	}

	return devices, nil
}

// IsDeviceAvailable は読み取り可能なV4L2デバイスノードか確認する
func (d *LinuxDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	if !videoNodePattern.MatchString(device) {
		return false
	}

	file, err := os.OpenFile(device, os.O_RDONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()

	return true
}

// GetDeviceInfo は v4l2-ctl からデバイス名・ドライバー・フォーマットを取得する
func (d *LinuxDiscovery) GetDeviceInfo(ctx context.Context, device string) (*DeviceInfo, error) {
	if !d.IsDeviceAvailable(ctx, device) {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, device)
	}

	info := &DeviceInfo{Device: device}

	if output, err := d.v4l2ctl(ctx, device, "--info"); err == nil {
		fields := parseInfoFields(output)
		info.Name = fields["Card type"]
		info.Driver = fields["Driver name"]
	}
	if info.Name == "" {
		info.Name = fmt.Sprintf("カメラ %d", extractDeviceNumber(device))
	}

	if output, err := d.v4l2ctl(ctx, device, "--list-formats-ext"); err == nil {
		info.Formats = parseFormats(output)
	}

	return info, nil
}

// IsMainCamera はデバイスがカラー撮影用のメインノードか判定する
// 同じカメラの複数ノードがある場合は番号の小さいものだけを採用する
func (d *LinuxDiscovery) IsMainCamera(ctx context.Context, device string) bool {
	output, err := d.v4l2ctl(ctx, device, "--list-formats-ext")
	if err != nil {
		return false
	}
	if !hasColorFormat(output) {
		return false
	}

	name := d.cardName(ctx, device)
	if name == "" {
		return true
	}

	for i := 0; i < extractDeviceNumber(device); i++ {
		sibling := fmt.Sprintf("/dev/video%d", i)
		if !d.IsDeviceAvailable(ctx, sibling) {
			continue
		}
		siblingOutput, err := d.v4l2ctl(ctx, sibling, "--list-formats-ext")
		if err != nil || !hasColorFormat(siblingOutput) {
			continue
		}
		if d.cardName(ctx, sibling) == name {
			return false
		}
	}

	return true
}

// cardName は v4l2-ctl の "Card type" を返す。取得できなければ空文字
func (d *LinuxDiscovery) cardName(ctx context.Context, device string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	output, err := d.v4l2ctl(ctx, device, "--info")
	if err != nil {
		return ""
	}
	return parseInfoFields(output)["Card type"]
}

func (d *LinuxDiscovery) v4l2ctl(ctx context.Context, device string, args ...string) (string, error) {
	output, err := d.run(ctx, "v4l2-ctl", append([]string{"--device", device}, args...)...)
	if err != nil {
		return "", err
	}
	return string(output), nil
}

// parseInfoFields は "キー : 値" 形式の行を解析する
func parseInfoFields(output string) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(output, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		if _, exists := fields[key]; !exists {
			fields[key] = value
		}
	}
	return fields
}

// parseFormats は --list-formats-ext の出力からピクセルフォーマット名を取り出す
func parseFormats(output string) []string {
	var formats []string
	seen := make(map[string]bool)
	for _, m := range formatLinePattern.FindAllStringSubmatch(output, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			formats = append(formats, m[1])
		}
	}
	return formats
}

// hasColorFormat はカラーのピクセルフォーマットを含むか判定する
func hasColorFormat(output string) bool {
	return strings.Contains(output, "YUYV") || strings.Contains(output, "MJPG")
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	matches := videoNumberPattern.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}
	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	devices     []string
	deviceInfos map[string]*DeviceInfo
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices []string) *MockDiscovery {
	m := &MockDiscovery{deviceInfos: make(map[string]*DeviceInfo)}
	for _, device := range devices {
		m.AddDevice(device)
	}
	return m
}

// ScanDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ScanDevices(_ context.Context) ([]string, error) {
	result := make([]string, len(m.devices))
	copy(result, m.devices)
	return result, nil
}

// IsDeviceAvailable はモックデバイスが登録されているか返す
func (m *MockDiscovery) IsDeviceAvailable(_ context.Context, device string) bool {
	_, exists := m.deviceInfos[device]
	return exists
}

// GetDeviceInfo はモックデバイス情報のコピーを返す
func (m *MockDiscovery) GetDeviceInfo(_ context.Context, device string) (*DeviceInfo, error) {
	info, exists := m.deviceInfos[device]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, device)
	}

	result := *info
	return &result, nil
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device string) {
	if _, exists := m.deviceInfos[device]; exists {
		return
	}

	m.devices = append(m.devices, device)
	m.deviceInfos[device] = &DeviceInfo{
		Device:  device,
		Name:    fmt.Sprintf("テストカメラ %d", len(m.devices)),
		Driver:  "mock",
		Formats: []string{"MJPG"},
	}
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(device string) {
	for i, d := range m.devices {
		if d == device {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			break
		}
	}
	delete(m.deviceInfos, device)
}
