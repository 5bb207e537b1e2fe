package dap

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	godap "github.com/google/go-dap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pipeServer reads requests off one end of a net.Pipe and replies with
// whatever respond returns, exercising the client against real DAP wire
// framing (via google/go-dap's own Read/WriteProtocolMessage) instead of a
// mocked transport.
func pipeServer(t *testing.T, respond func(req godap.Message) godap.Message) *Client {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close() })

	go func() {
		r := bufio.NewReader(serverConn)
		for {
			msg, err := godap.ReadProtocolMessage(r)
			if err != nil {
				return
			}
			resp := respond(msg)
			if resp == nil {
				continue
			}
			if err := godap.WriteProtocolMessage(serverConn, resp); err != nil {
				return
			}
		}
	}()

	c := NewOverConn(clientConn, zap.NewNop())
	t.Cleanup(func() { c.Close() })
	return c
}

func TestInitializeRoundTrip(t *testing.T) {
	c := pipeServer(t, func(req godap.Message) godap.Message {
		ireq, ok := req.(*godap.InitializeRequest)
		require.True(t, ok)
		return &godap.InitializeResponse{
			Response: godap.Response{
				ProtocolMessage: godap.ProtocolMessage{Seq: 1, Type: "response"},
				RequestSeq:      ireq.Seq,
				Success:         true,
				Command:         "initialize",
			},
			Body: godap.InitializeResponseBody{SupportsConfigurationDoneRequest: true},
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.Initialize(ctx, "delve")
	require.NoError(t, err)
	assert.True(t, resp.Body.SupportsConfigurationDoneRequest)
}

func TestSendSurfacesErrorResponseMessage(t *testing.T) {
	c := pipeServer(t, func(req godap.Message) godap.Message {
		lreq, ok := req.(*godap.LaunchRequest)
		require.True(t, ok)
		return &godap.LaunchResponse{
			Response: godap.Response{
				ProtocolMessage: godap.ProtocolMessage{Seq: 1, Type: "response"},
				RequestSeq:      lreq.Seq,
				Success:         false,
				Command:         "launch",
				Message:         "program not found",
			},
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := c.Launch(ctx, []byte(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "program not found")
}

func TestSendRespectsContextDeadline(t *testing.T) {
	c := pipeServer(t, func(req godap.Message) godap.Message {
		return nil // never respond
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Initialize(ctx, "delve")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUnsolicitedMessagesGoToEventsChannel(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close() })

	c := NewOverConn(clientConn, zap.NewNop())
	t.Cleanup(func() { c.Close() })

	go func() {
		_ = godap.WriteProtocolMessage(serverConn, &godap.StoppedEvent{
			Event: godap.Event{
				ProtocolMessage: godap.ProtocolMessage{Seq: 1, Type: "event"},
				Event:           "stopped",
			},
			Body: godap.StoppedEventBody{Reason: "breakpoint", ThreadId: 1},
		})
	}()

	select {
	case msg := <-c.Events:
		ev, ok := msg.(*godap.StoppedEvent)
		require.True(t, ok)
		assert.Equal(t, "breakpoint", ev.Body.Reason)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stopped event")
	}
}
