package camera

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(payload ...byte) []byte {
	f := append([]byte{0xFF, 0xD8}, payload...)
	return append(f, 0xFF, 0xD9)
}

func TestSplitJPEGFrames(t *testing.T) {
	a := frame(0x01, 0x02)
	b := frame(0x03)

	data := append([]byte{0x00, 0x00}, a...)
	data = append(data, b...)
	data = append(data, 0xFF, 0xD8, 0x04)

	frames, rest := splitJPEGFrames(data)
	require.Len(t, frames, 2)
	assert.Equal(t, a, frames[0])
	assert.Equal(t, b, frames[1])
	assert.Equal(t, []byte{0xFF, 0xD8, 0x04}, rest)

	// 持ち越したデータに続きが届くと完全なフレームになる
	frames, rest = splitJPEGFrames(append(rest, 0x05, 0xFF, 0xD9))
	require.Len(t, frames, 1)
	assert.Equal(t, frame(0x04, 0x05), frames[0])
	assert.Empty(t, rest)
}

func TestSplitJPEGFrames_SplitMarker(t *testing.T) {
	frames, rest := splitJPEGFrames([]byte{0x00, 0x11, 0xFF})
	assert.Empty(t, frames)
	assert.Equal(t, []byte{0xFF}, rest)

	frames, rest = splitJPEGFrames(append(rest, 0xD8, 0x01, 0xFF, 0xD9))
	require.Len(t, frames, 1)
	assert.Equal(t, frame(0x01), frames[0])
	assert.Empty(t, rest)
}

func TestV4L2Capturer_Args(t *testing.T) {
	c := NewV4L2Capturer("/dev/video2", 1280, 720, 15)

	assert.Equal(t, "/dev/video2", c.DevicePath())

	still := c.stillArgs()
	assert.Contains(t, still, "/dev/video2")
	assert.Contains(t, still, "1280x720")
	assert.Contains(t, still, "-vframes")
	assert.Equal(t, "-", still[len(still)-1])

	stream := c.streamArgs()
	assert.Contains(t, stream, "image2pipe")
	assert.Contains(t, stream, "15")
}
