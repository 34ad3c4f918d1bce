package ai

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEDecoder_Frames(t *testing.T) {
	input := ": keep-alive\n" +
		"data: {\"a\":1}\n\n" +
		"event: message\r\ndata: line1\r\ndata: line2\r\n\r\n" +
		"plain text line\n\n" +
		"data: [DONE]"

	dec := newSSEDecoder(strings.NewReader(input))

	ev, err := dec.Next()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, ev.Data)

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "message", ev.Event)
	assert.Equal(t, "line1\nline2", ev.Data)

	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "plain text line", ev.Data)

	// trailing event without blank line is flushed at EOF
	ev, err = dec.Next()
	require.NoError(t, err)
	assert.Equal(t, "[DONE]", ev.Data)

	_, err = dec.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeChunk(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    string
		ok      bool
		wantErr bool
	}{
		{name: "delta", data: `{"choices":[{"delta":{"content":"北京"}}]}`, want: "北京", ok: true},
		{name: "role only", data: `{"choices":[{"delta":{"role":"assistant"}}]}`},
		{name: "raw text", data: "not json at all", want: "not json at all", ok: true},
		{name: "blank", data: "  "},
		{name: "upstream error", data: `{"error":{"message":"rate limited"}}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := decodeChunk(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
