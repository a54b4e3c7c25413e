package stream

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentstation/labelview/pkg/errors"
)

// Subscription is one open label stream. Read frames from Frames until
// it closes, then check Err for how the stream ended. A nil Err covers
// clean remote closure, context cancellation, and idle timeout; partial
// data collected before any of those is valid.
type Subscription struct {
	conn        *websocket.Conn
	frames      chan Frame
	idleTimeout time.Duration

	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}

	mu  sync.Mutex
	err error
}

func newSubscription(ctx context.Context, conn *websocket.Conn, idleTimeout time.Duration, buffer int) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		conn:        conn,
		frames:      make(chan Frame, buffer),
		idleTimeout: idleTimeout,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	// Closing the connection is the only way to unblock a pending read.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-s.done:
		}
	}()

	go s.readLoop(ctx)
	return s
}

// Frames delivers decoded frames in arrival order. The channel closes
// when the stream ends for any reason.
func (s *Subscription) Frames() <-chan Frame {
	return s.frames
}

// Err reports how the stream ended. It is meaningful only after Frames
// has closed. Nil means clean termination.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close tears down the subscription. Frames in flight are discarded.
// Safe to call more than once and concurrently with reads.
func (s *Subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *Subscription) readLoop(ctx context.Context) {
	defer func() {
		close(s.done)
		close(s.frames)
		_ = s.conn.Close()
		s.cancel()
	}()

	for {
		if s.idleTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(classifyReadError(ctx, err))
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		frame, terminal := decodeFrame(data)
		if terminal != nil {
			s.setErr(terminal)
			return
		}
		select {
		case s.frames <- frame:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// classifyReadError decides whether a read failure ends the stream
// cleanly. Cancellation, idle timeout, and a normal remote close all
// leave the data gathered so far intact.
func classifyReadError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || err == io.EOF {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}
	return errors.NewTransportError("", "stream read failed", err)
}
