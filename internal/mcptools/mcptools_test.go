package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoArgs struct {
	Value string `json:"value"`
}

type echoResult struct {
	Echoed string `json:"echoed"`
}

func TestWrapMarshalsResultAsTextContent(t *testing.T) {
	handler := wrap(func(ctx context.Context, a echoArgs) (echoResult, error) {
		return echoResult{Echoed: a.Value}, nil
	})

	result, err := handler(context.Background(), nil, &mcp.CallToolParamsFor[echoArgs]{Arguments: echoArgs{Value: "hi"}})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(*mcp.TextContent)
	require.True(t, ok)

	var got echoResult
	require.NoError(t, json.Unmarshal([]byte(text.Text), &got))
	assert.Equal(t, "hi", got.Echoed)
}

func TestWrapForwardsError(t *testing.T) {
	wantErr := errors.New("session not found")
	handler := wrap(func(ctx context.Context, a echoArgs) (echoResult, error) {
		return echoResult{}, wantErr
	})

	result, err := handler(context.Background(), nil, &mcp.CallToolParamsFor[echoArgs]{Arguments: echoArgs{}})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, wantErr)
}

func TestWrapNoArgsIgnoresParams(t *testing.T) {
	called := false
	handler := wrapNoArgs(func(ctx context.Context) ([]string, error) {
		called = true
		return []string{"session-1"}, nil
	})

	result, err := handler(context.Background(), nil, &mcp.CallToolParamsFor[NoArgs]{})
	require.NoError(t, err)
	assert.True(t, called)

	text := result.Content[0].(*mcp.TextContent)
	var got []string
	require.NoError(t, json.Unmarshal([]byte(text.Text), &got))
	assert.Equal(t, []string{"session-1"}, got)
}
