package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/labelview/internal/codec"
	"github.com/agentstation/labelview/pkg/errors"
)

// frameBytes builds one binary message: a CBOR header item followed by
// a CBOR body item.
func frameBytes(t *testing.T, header, body any) []byte {
	t.Helper()
	h, err := codec.Marshal(header)
	require.NoError(t, err)
	b, err := codec.Marshal(body)
	require.NoError(t, err)
	return append(h, b...)
}

func labelsFrameBytes(t *testing.T, seq int64, entries ...map[string]any) []byte {
	t.Helper()
	return frameBytes(t,
		map[string]any{"op": 1, "t": kindLabels},
		map[string]any{"seq": seq, "labels": entries},
	)
}

func wireEntry(val string) map[string]any {
	return map[string]any{
		"ver": 1,
		"src": "did:plc:labeler",
		"uri": "did:plc:target",
		"val": val,
		"cts": "2026-08-01T00:00:00Z",
	}
}

// newStreamServer runs script against each upgraded connection and then
// sends a normal close.
func newStreamServer(t *testing.T, script func(*websocket.Conn) error) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		if err := script(conn); err != nil {
			t.Errorf("server script: %v", err)
			return
		}
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		// Wait for the client's close response so the handshake completes.
		_ = conn.SetReadDeadline(deadline)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func collect(t *testing.T, sub *Subscription) []Frame {
	t.Helper()
	var frames []Frame
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-sub.Frames():
			if !ok {
				return frames
			}
			frames = append(frames, f)
		case <-timeout:
			t.Fatal("timed out waiting for stream to end")
		}
	}
}

func TestSubscribeDeliversLabels(t *testing.T) {
	msg := labelsFrameBytes(t, 42, wireEntry("spam"), wireEntry("rude"))
	srv := newStreamServer(t, func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.BinaryMessage, msg)
	})

	sub, err := New().Subscribe(context.Background(), srv.URL, -1)
	require.NoError(t, err)

	frames := collect(t, sub)
	require.NoError(t, sub.Err())
	require.Len(t, frames, 1)

	lf, ok := frames[0].(LabelsFrame)
	require.True(t, ok, "expected LabelsFrame, got %T", frames[0])
	assert.Equal(t, int64(42), lf.Seq)
	require.Len(t, lf.Labels, 2)
	assert.Equal(t, "spam", lf.Labels[0].Val)
	assert.Equal(t, "rude", lf.Labels[1].Val)
	assert.Equal(t, "did:plc:labeler", lf.Labels[0].Src)
}

func TestSubscribeSoftDecodeFailure(t *testing.T) {
	good := labelsFrameBytes(t, 7, wireEntry("spam"))
	srv := newStreamServer(t, func(conn *websocket.Conn) error {
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0x00, 0x01}); err != nil {
			return err
		}
		return conn.WriteMessage(websocket.BinaryMessage, good)
	})

	sub, err := New().Subscribe(context.Background(), srv.URL, -1)
	require.NoError(t, err)

	frames := collect(t, sub)
	require.NoError(t, sub.Err(), "a bad frame must not end the stream")
	require.Len(t, frames, 2)

	df, ok := frames[0].(DecodeFailure)
	require.True(t, ok, "expected DecodeFailure, got %T", frames[0])
	assert.True(t, errors.IsFrameDecode(df.Err))

	lf, ok := frames[1].(LabelsFrame)
	require.True(t, ok)
	assert.Equal(t, int64(7), lf.Seq)
}

func TestSubscribeInfoFrame(t *testing.T) {
	msg := frameBytes(t,
		map[string]any{"op": 1, "t": kindInfo},
		map[string]any{"name": "OutdatedCursor", "message": "requested cursor exceeded limit"},
	)
	srv := newStreamServer(t, func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.BinaryMessage, msg)
	})

	sub, err := New().Subscribe(context.Background(), srv.URL, -1)
	require.NoError(t, err)

	frames := collect(t, sub)
	require.NoError(t, sub.Err())
	require.Len(t, frames, 1)

	info, ok := frames[0].(InfoFrame)
	require.True(t, ok, "expected InfoFrame, got %T", frames[0])
	assert.Equal(t, "OutdatedCursor", info.Name)
	assert.Equal(t, "requested cursor exceeded limit", info.Message)
}

func TestSubscribeErrorFrameTerminates(t *testing.T) {
	good := labelsFrameBytes(t, 1, wireEntry("spam"))
	errFrame := frameBytes(t,
		map[string]any{"op": -1},
		map[string]any{"error": "FutureCursor", "message": "cursor is ahead of stream"},
	)
	srv := newStreamServer(t, func(conn *websocket.Conn) error {
		if err := conn.WriteMessage(websocket.BinaryMessage, good); err != nil {
			return err
		}
		return conn.WriteMessage(websocket.BinaryMessage, errFrame)
	})

	sub, err := New().Subscribe(context.Background(), srv.URL, -1)
	require.NoError(t, err)

	frames := collect(t, sub)
	require.Len(t, frames, 1, "frames before the error frame are still delivered")

	var streamErr *errors.StreamError
	require.ErrorAs(t, sub.Err(), &streamErr)
	assert.Equal(t, "FutureCursor", streamErr.Kind)
	assert.Equal(t, "cursor is ahead of stream", streamErr.Message)
}

func TestSubscribeUnknownKindIsSoft(t *testing.T) {
	msg := frameBytes(t,
		map[string]any{"op": 1, "t": "#identity"},
		map[string]any{},
	)
	srv := newStreamServer(t, func(conn *websocket.Conn) error {
		return conn.WriteMessage(websocket.BinaryMessage, msg)
	})

	sub, err := New().Subscribe(context.Background(), srv.URL, -1)
	require.NoError(t, err)

	frames := collect(t, sub)
	require.NoError(t, sub.Err())
	require.Len(t, frames, 1)
	_, ok := frames[0].(DecodeFailure)
	assert.True(t, ok, "unknown kinds surface as soft decode failures")
}

func TestSubscribeCancel(t *testing.T) {
	release := make(chan struct{})
	first := labelsFrameBytes(t, 1, wireEntry("spam"))
	srv := newStreamServer(t, func(conn *websocket.Conn) error {
		if err := conn.WriteMessage(websocket.BinaryMessage, first); err != nil {
			return err
		}
		<-release
		return nil
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := New(WithIdleTimeout(0)).Subscribe(ctx, srv.URL, -1)
	require.NoError(t, err)

	select {
	case <-sub.Frames():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first frame")
	}
	cancel()

	for range sub.Frames() {
	}
	assert.NoError(t, sub.Err(), "cancellation ends the stream cleanly")
}

func TestSubscribeClose(t *testing.T) {
	release := make(chan struct{})
	srv := newStreamServer(t, func(conn *websocket.Conn) error {
		<-release
		return nil
	})
	defer close(release)

	sub, err := New(WithIdleTimeout(0)).Subscribe(context.Background(), srv.URL, -1)
	require.NoError(t, err)
	require.NoError(t, sub.Close())

	for range sub.Frames() {
	}
	assert.NoError(t, sub.Err())
}

func TestSubscribeIdleTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := newStreamServer(t, func(conn *websocket.Conn) error {
		<-release
		return nil
	})
	defer close(release)

	sub, err := New(WithIdleTimeout(100 * time.Millisecond)).Subscribe(context.Background(), srv.URL, -1)
	require.NoError(t, err)

	frames := collect(t, sub)
	assert.Empty(t, frames)
	assert.NoError(t, sub.Err(), "idle timeout ends the stream cleanly")
}

func TestSubscribeForwardsCursor(t *testing.T) {
	gotCursor := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCursor <- r.URL.Query().Get("cursor")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}))
	t.Cleanup(srv.Close)

	sub, err := New().Subscribe(context.Background(), srv.URL, 99)
	require.NoError(t, err)
	collect(t, sub)

	assert.Equal(t, "99", <-gotCursor)
}

func TestSubscribeDialOptions(t *testing.T) {
	msg1 := labelsFrameBytes(t, 1, wireEntry("spam"))
	msg2 := labelsFrameBytes(t, 2, wireEntry("rude"))
	gotAgent := make(chan string, 1)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent <- r.Header.Get("User-Agent")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for _, msg := range [][]byte{msg1, msg2} {
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				t.Errorf("write: %v", err)
				return
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}))
	t.Cleanup(srv.Close)

	sub, err := New(
		WithDialer(&websocket.Dialer{HandshakeTimeout: 5 * time.Second}),
		WithUserAgent("labelview-test/0.0"),
		WithBuffer(1),
	).Subscribe(context.Background(), srv.URL, -1)
	require.NoError(t, err)

	frames := collect(t, sub)
	require.NoError(t, sub.Err())
	assert.Len(t, frames, 2, "a one-frame buffer still delivers everything")
	assert.Equal(t, "labelview-test/0.0", <-gotAgent)
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		cursor   int64
		want     string
		wantErr  bool
	}{
		{
			name:     "https with cursor",
			endpoint: "https://mod.example.com",
			cursor:   10,
			want:     "wss://mod.example.com/xrpc/com.atproto.label.subscribeLabels?cursor=10",
		},
		{
			name:     "https without cursor",
			endpoint: "https://mod.example.com",
			cursor:   -1,
			want:     "wss://mod.example.com/xrpc/com.atproto.label.subscribeLabels",
		},
		{
			name:     "cursor zero is sent",
			endpoint: "https://mod.example.com",
			cursor:   0,
			want:     "wss://mod.example.com/xrpc/com.atproto.label.subscribeLabels?cursor=0",
		},
		{
			name:     "http downgrades to ws",
			endpoint: "http://127.0.0.1:8080",
			cursor:   -1,
			want:     "ws://127.0.0.1:8080/xrpc/com.atproto.label.subscribeLabels",
		},
		{
			name:     "existing path is replaced",
			endpoint: "https://mod.example.com/some/base",
			cursor:   -1,
			want:     "wss://mod.example.com/xrpc/com.atproto.label.subscribeLabels",
		},
		{
			name:     "unsupported scheme",
			endpoint: "ftp://mod.example.com",
			cursor:   -1,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := streamURL(tt.endpoint, tt.cursor)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsTransport(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
