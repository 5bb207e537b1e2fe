package dap

import (
	"context"
	"testing"
	"time"

	godap "github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agenttools/debugd/internal/driver"
)

func respond(seq int, command string) godap.Response {
	return godap.Response{
		ProtocolMessage: godap.ProtocolMessage{Seq: seq, Type: "response"},
		Success:         true,
		Command:         command,
	}
}

func TestLaunchInitializesCapabilitiesAndConfiguresDone(t *testing.T) {
	seq := 0
	c := pipeServer(t, func(req godap.Message) godap.Message {
		seq++
		switch r := req.(type) {
		case *godap.InitializeRequest:
			resp := respond(seq, "initialize")
			resp.RequestSeq = r.Seq
			return &godap.InitializeResponse{
				Response: resp,
				Body:     godap.InitializeResponseBody{SupportsFunctionBreakpoints: true, SupportsStepBack: true},
			}
		case *godap.LaunchRequest:
			resp := respond(seq, "launch")
			resp.RequestSeq = r.Seq
			return &godap.LaunchResponse{Response: resp}
		case *godap.ConfigurationDoneRequest:
			resp := respond(seq, "configurationDone")
			resp.RequestSeq = r.Seq
			return &godap.ConfigurationDoneResponse{Response: resp}
		default:
			t.Fatalf("unexpected request %T", req)
			return nil
		}
	})

	d := New(c, "go", zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	handle, err := d.Launch(ctx, driver.LaunchParams{Program: "/bin/prog"})
	require.NoError(t, err)
	assert.True(t, handle.Capabilities.SupportsFunctionBreakpoints)
	assert.True(t, handle.Capabilities.SupportsStepBack)
	assert.True(t, handle.Capabilities.SupportsConfigurationDone)
}

func TestThreadsMapsResponseBody(t *testing.T) {
	c := pipeServer(t, func(req godap.Message) godap.Message {
		treq, ok := req.(*godap.ThreadsRequest)
		require.True(t, ok)
		resp := respond(1, "threads")
		resp.RequestSeq = treq.Seq
		return &godap.ThreadsResponse{
			Response: resp,
			Body:     godap.ThreadsResponseBody{Threads: []godap.Thread{{Id: 1, Name: "main"}, {Id: 2, Name: "worker"}}},
		}
	})

	d := New(c, "go", zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	threads, err := d.Threads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, "main", threads[0].Name)
	assert.Equal(t, "worker", threads[1].Name)
}

func TestPauseForwardsThreadID(t *testing.T) {
	var gotThreadID int
	c := pipeServer(t, func(req godap.Message) godap.Message {
		preq, ok := req.(*godap.PauseRequest)
		require.True(t, ok)
		gotThreadID = preq.Arguments.ThreadId
		resp := respond(1, "pause")
		resp.RequestSeq = preq.Seq
		return &godap.PauseResponse{Response: resp}
	})

	d := New(c, "go", zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, d.Pause(ctx, 7))
	assert.Equal(t, 7, gotThreadID)
}

func TestFindSymbolAndVariableLocationAreNotSupported(t *testing.T) {
	c := pipeServer(t, func(req godap.Message) godap.Message { return nil })
	d := New(c, "go", zap.NewNop())

	_, err := d.FindSymbol(context.Background(), "main.foo")
	assert.ErrorIs(t, err, driver.ErrNotSupported)

	_, err = d.VariableLocation(context.Background(), "x", 0)
	assert.ErrorIs(t, err, driver.ErrNotSupported)
}
