package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/c360/natsgate/message"
)

// StreamClient is a WebSocket subscription to the gateway. Frames are
// binary protobuf WebSocketFrame messages.
type StreamClient struct {
	conn *websocket.Conn
}

// DialFilter opens a live subscription for a subject filter
func DialFilter(ctx context.Context, baseURL, filter string) (*StreamClient, error) {
	return dial(ctx, baseURL, "/ws/websocketmessages/"+filter)
}

// DialDurable opens a live subscription through a durable consumer
func DialDurable(ctx context.Context, baseURL, stream, consumer string) (*StreamClient, error) {
	return dial(ctx, baseURL, fmt.Sprintf("/ws/websocketmessages/%s/consumer/%s", stream, consumer))
}

func dial(ctx context.Context, baseURL, path string) (*StreamClient, error) {
	wsURL := strings.Replace(baseURL, "http://", "ws://", 1) + path

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", wsURL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", wsURL, err)
	}
	return &StreamClient{conn: conn}, nil
}

// ReadFrame reads and decodes the next frame, waiting up to timeout
func (s *StreamClient) ReadFrame(timeout time.Duration) (*message.WebSocketFrame, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	msgType, data, err := s.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	if msgType != websocket.BinaryMessage {
		return nil, fmt.Errorf("unexpected message type %d", msgType)
	}

	var frame message.WebSocketFrame
	if err := frame.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	return &frame, nil
}

// ReadMessageFrame reads frames until a MESSAGE frame arrives, skipping
// keepalives. Any other control frame is an error.
func (s *StreamClient) ReadMessageFrame(timeout time.Duration) (*message.StreamMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("no message frame within %s", timeout)
		}

		frame, err := s.ReadFrame(remaining)
		if err != nil {
			return nil, err
		}

		switch frame.Type {
		case message.FrameTypeMessage:
			return frame.Message, nil
		case message.FrameTypeControl:
			if frame.Control != nil && frame.Control.Type == message.ControlTypeKeepalive {
				continue
			}
			return nil, fmt.Errorf("unexpected control frame: %v", frame.Control)
		}
	}
}

// Close closes the underlying connection
func (s *StreamClient) Close() error {
	return s.conn.Close()
}
