package daemon

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte(`{"jsonrpc":"2.0","method":"threads","id":1}`)
	require.NoError(t, writeFrame(&buf, body))

	got, err := readFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestReadFrameMultipleHeaders(t *testing.T) {
	raw := "Content-Type: application/json\r\nContent-Length: 5\r\n\r\nhello"
	got, err := readFrame(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestReadFrameMissingContentLength(t *testing.T) {
	raw := "Content-Type: application/json\r\n\r\nhello"
	_, err := readFrame(bufio.NewReader(strings.NewReader(raw)))
	assert.Error(t, err)
}

func TestReadFrameMalformedContentLength(t *testing.T) {
	raw := "Content-Length: not-a-number\r\n\r\nhello"
	_, err := readFrame(bufio.NewReader(strings.NewReader(raw)))
	assert.Error(t, err)
}

func TestReadFrameTwoConsecutiveFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, []byte("one")))
	require.NoError(t, writeFrame(&buf, []byte("two")))

	r := bufio.NewReader(&buf)
	first, err := readFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "one", string(first))

	second, err := readFrame(r)
	require.NoError(t, err)
	assert.Equal(t, "two", string(second))
}
