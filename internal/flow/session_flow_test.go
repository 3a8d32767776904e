package flow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shashin/internal/camera"
)

func openWithMockBackend(t *testing.T, backend *camera.MockBackend) *Controller {
	t.Helper()
	c := NewController()
	session := camera.NewSession(backend, c.Main())
	t.Cleanup(func() { _ = c.Close() })

	c.Open(session)
	require.Eventually(t, func() bool {
		return c.Snapshot().StatusText == StatusResetting
	}, 3*time.Second, 5*time.Millisecond)

	return c
}

func waitForState(t *testing.T, c *Controller, state State) Snapshot {
	t.Helper()
	var snap Snapshot
	require.Eventually(t, func() bool {
		snap = c.Snapshot()
		return snap.State == state && !snap.Capturing
	}, 3*time.Second, 5*time.Millisecond)
	return snap
}

func TestFlowWithSession_StartsCameraAfterConfiguration(t *testing.T) {
	backend := camera.NewMockBackend()
	c := openWithMockBackend(t, backend)

	snap := c.Snapshot()
	assert.Equal(t, StatePreviewing, snap.State)
	assert.Equal(t, 1.0, snap.PreviewAlpha)
	assert.True(t, backend.Running())
	assert.Equal(t, []string{"devices", "open:mock-back", "configure:mock-back", "start"}, backend.Operations())
}

func TestFlowWithSession_CaptureAndReset(t *testing.T) {
	backend := camera.NewMockBackend()
	c := openWithMockBackend(t, backend)

	c.Capture()
	snap := waitForState(t, c, StateCaptured)

	require.NotNil(t, snap.Image)
	assert.Equal(t, TitleSend, snap.ActionTitle)
	assert.Equal(t, "モック背面カメラ", snap.Image.Device)
	img := c.Image()
	require.NotNil(t, img)
	assert.Equal(t, snap.Image.ID, img.ID)

	c.Reset()
	snap = waitForState(t, c, StatePreviewing)
	assert.Nil(t, snap.Image)
	assert.Nil(t, c.Image())
}

func TestFlowWithSession_NoVideoConnectionErrors(t *testing.T) {
	backend := camera.NewMockBackend()
	backend.SetOmitVideoPort(true)
	c := openWithMockBackend(t, backend)

	c.Capture()
	snap := waitForState(t, c, StateErrored)
	assert.Equal(t, StatusFailed, snap.StatusText)

	c.Reset()
	waitForState(t, c, StatePreviewing)
	assert.Nil(t, c.Image())
}

func TestFlowWithSession_CloseStopsDelivery(t *testing.T) {
	backend := camera.NewMockBackend()
	c := NewController()
	session := camera.NewSession(backend, c.Main())
	c.Open(session)

	require.NoError(t, c.Close())
	assert.Equal(t, 0, backend.Subscribers())
}
