package camera

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shashin/internal/queue"
)

const waitTimeout = 3 * time.Second

type recordingObserver struct {
	events chan string
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{events: make(chan string, 16)}
}

func (o *recordingObserver) ConfigurationDidComplete() { o.events <- "configured" }
func (o *recordingObserver) SessionDidBegin()          { o.events <- "began" }
func (o *recordingObserver) SessionDidStop()           { o.events <- "stopped" }

func (o *recordingObserver) next(t *testing.T) string {
	t.Helper()
	select {
	case e := <-o.events:
		return e
	case <-time.After(waitTimeout):
		t.Fatal("observer event timed out")
		return ""
	}
}

func newTestSession(t *testing.T, backend Backend, opts ...Option) (*Session, *queue.Queue) {
	t.Helper()
	main := queue.New("main", nil)
	s := NewSession(backend, main, opts...)
	t.Cleanup(func() {
		_ = s.Close()
		main.Close()
	})
	return s, main
}

func captureOnce(t *testing.T, s *Session) *Image {
	t.Helper()
	result := make(chan *Image, 1)
	s.CaptureStill(func(img *Image) { result <- img })
	select {
	case img := <-result:
		return img
	case <-time.After(waitTimeout):
		t.Fatal("capture completion timed out")
		return nil
	}
}

func TestSession_InitializeSelectsBackDevice(t *testing.T) {
	backend := NewMockBackend()
	s, _ := newTestSession(t, backend)
	observer := newRecordingObserver()

	s.Initialize(observer)
	require.Equal(t, "configured", observer.next(t))

	device, ok := s.Device()
	require.True(t, ok)
	assert.Equal(t, "mock-back", device.ID)
	assert.Equal(t, []string{"devices", "open:mock-back", "configure:mock-back"}, backend.Operations())
}

func TestSession_InitializeFallsBackToFirstDevice(t *testing.T) {
	backend := NewMockBackend(
		Device{ID: "front", Position: PositionFront, MediaTypes: []MediaType{MediaTypeVideo}},
		Device{ID: "other", Position: PositionUnspecified, MediaTypes: []MediaType{MediaTypeVideo}},
	)
	s, _ := newTestSession(t, backend)
	observer := newRecordingObserver()

	s.Initialize(observer)
	require.Equal(t, "configured", observer.next(t))

	device, ok := s.Device()
	require.True(t, ok)
	assert.Equal(t, "front", device.ID)
}

func TestSession_PreferredPosition(t *testing.T) {
	backend := NewMockBackend()
	s, _ := newTestSession(t, backend, WithPosition(PositionFront))
	observer := newRecordingObserver()

	s.Initialize(observer)
	require.Equal(t, "configured", observer.next(t))

	device, _ := s.Device()
	assert.Equal(t, "mock-front", device.ID)
}

func TestSession_OperationsRunInSubmissionOrder(t *testing.T) {
	backend := NewMockBackend()
	s, _ := newTestSession(t, backend)
	observer := newRecordingObserver()

	s.Initialize(observer)
	s.Start()
	s.Stop()
	s.Start()

	assert.Equal(t, "configured", observer.next(t))
	assert.Equal(t, "began", observer.next(t))
	assert.Equal(t, "stopped", observer.next(t))
	assert.Equal(t, "began", observer.next(t))

	assert.Equal(t, []string{
		"devices", "open:mock-back", "configure:mock-back",
		"start", "stop", "start",
	}, backend.Operations())
	assert.True(t, backend.Running())
}

func TestSession_CaptureBeforeConfigurationReturnsNil(t *testing.T) {
	backend := NewMockBackend()
	s, _ := newTestSession(t, backend)

	assert.Nil(t, captureOnce(t, s))
	assert.Empty(t, backend.Operations())
}

func TestSession_CaptureStill(t *testing.T) {
	backend := NewMockBackend()
	s, _ := newTestSession(t, backend)
	observer := newRecordingObserver()

	s.Initialize(observer)
	require.Equal(t, "configured", observer.next(t))

	img := captureOnce(t, s)
	require.NotNil(t, img)
	assert.NotEmpty(t, img.ID)
	assert.Equal(t, 64, img.Width)
	assert.Equal(t, 48, img.Height)
	assert.Equal(t, "mock-back", img.Device.ID)
	assert.NotNil(t, img.Decoded)
	assert.Contains(t, backend.Operations(), "capture:mock-back")
}

func TestSession_OpenInputFailureLeavesNoOutput(t *testing.T) {
	backend := NewMockBackend()
	backend.SetOpenInputError(errors.New("permission denied"))
	s, _ := newTestSession(t, backend)
	observer := newRecordingObserver()

	s.Initialize(observer)
	require.Equal(t, "configured", observer.next(t))

	_, ok := s.Device()
	assert.False(t, ok)
	assert.Nil(t, captureOnce(t, s))
	assert.Equal(t, []string{"devices", "open:mock-back", "configure"}, backend.Operations())
}

func TestSession_NoDevices(t *testing.T) {
	backend := NewMockBackend(Device{ID: "mic", MediaTypes: []MediaType{MediaTypeAudio}})
	s, _ := newTestSession(t, backend)
	observer := newRecordingObserver()

	s.Initialize(observer)
	require.Equal(t, "configured", observer.next(t))
	assert.Nil(t, captureOnce(t, s))
}

func TestSession_NoVideoConnection(t *testing.T) {
	backend := NewMockBackend()
	backend.SetOmitVideoPort(true)
	s, _ := newTestSession(t, backend)
	observer := newRecordingObserver()

	s.Initialize(observer)
	require.Equal(t, "configured", observer.next(t))

	assert.Nil(t, captureOnce(t, s))
	assert.NotContains(t, backend.Operations(), "capture:mock-back")
}

func TestSession_CaptureErrorReturnsNil(t *testing.T) {
	backend := NewMockBackend()
	backend.SetCaptureError(errors.New("sensor failure"))
	s, _ := newTestSession(t, backend)
	observer := newRecordingObserver()

	s.Initialize(observer)
	require.Equal(t, "configured", observer.next(t))
	assert.Nil(t, captureOnce(t, s))
}

func TestSession_UndecodableDataReturnsNil(t *testing.T) {
	backend := NewMockBackend()
	backend.SetCaptureData([]byte("not a jpeg"))
	s, _ := newTestSession(t, backend)
	observer := newRecordingObserver()

	s.Initialize(observer)
	require.Equal(t, "configured", observer.next(t))
	assert.Nil(t, captureOnce(t, s))
}

func TestSession_CaptureTimeout(t *testing.T) {
	backend := NewMockBackend()
	backend.SetCaptureGate(make(chan struct{}))
	s, _ := newTestSession(t, backend, WithCaptureTimeout(50*time.Millisecond))
	observer := newRecordingObserver()

	s.Initialize(observer)
	require.Equal(t, "configured", observer.next(t))
	assert.Nil(t, captureOnce(t, s))
}

func TestSession_EachCaptureCompletesExactlyOnce(t *testing.T) {
	backend := NewMockBackend()
	gate := make(chan struct{})
	backend.SetCaptureGate(gate)
	s, main := newTestSession(t, backend)
	observer := newRecordingObserver()

	s.Initialize(observer)
	require.Equal(t, "configured", observer.next(t))

	const captures = 5
	results := make(chan *Image, captures*2)
	for i := 0; i < captures; i++ {
		s.CaptureStill(func(img *Image) { results <- img })
	}
	close(gate)

	for i := 0; i < captures; i++ {
		select {
		case img := <-results:
			assert.NotNil(t, img)
		case <-time.After(waitTimeout):
			t.Fatalf("capture %d did not complete", i)
		}
	}

	// 全ての完了通知がメインキューに届いた後、余分な通知がないこと
	require.NoError(t, s.Close())
	main.Sync(func() {})
	assert.Len(t, results, 0)
}

func TestSession_CloseDetachesObserver(t *testing.T) {
	backend := NewMockBackend()
	main := queue.New("main", nil)
	defer main.Close()
	s := NewSession(backend, main)
	observer := newRecordingObserver()

	require.Equal(t, 1, backend.Subscribers())

	s.Initialize(observer)
	require.NoError(t, s.Close())
	main.Sync(func() {})

	assert.Equal(t, 0, backend.Subscribers())
	assert.Len(t, observer.events, 0)

	// Close後のキャプチャもnilで1回完了する
	result := make(chan *Image, 1)
	s.CaptureStill(func(img *Image) { result <- img })
	main.Sync(func() {})
	select {
	case img := <-result:
		assert.Nil(t, img)
	default:
		t.Fatal("capture after close did not complete")
	}
}

func TestSession_PreviewUnsupportedByMock(t *testing.T) {
	s, _ := newTestSession(t, NewMockBackend())

	_, _, ok := s.Preview()
	assert.False(t, ok)
}
