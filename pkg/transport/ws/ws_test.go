package ws_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/convogrid/voicewire/pkg/transport"
	transportws "github.com/convogrid/voicewire/pkg/transport/ws"
)

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startServer launches a test WebSocket server. The handler receives the
// accepted conn; the server is closed when the test finishes.
func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func openChannel(t *testing.T, srv *httptest.Server, opts ...transportws.Option) *transportws.Channel {
	t.Helper()
	c := transportws.New(opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.Open(ctx, transportws.Endpoint{URL: wsURL(srv), AuthToken: "sekrit"}); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// ─── TestChannel_OpenPresentsBearerToken ─────────────────────────────────────

func TestChannel_OpenPresentsBearerToken(t *testing.T) {
	t.Parallel()

	gotAuth := make(chan string, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		gotAuth <- r.Header.Get("Authorization")
		conn.Close(websocket.StatusNormalClosure, "done")
	})

	c := openChannel(t, srv)
	if st := c.State(); st != transport.StateOpen {
		t.Errorf("State() = %v after Open, want open", st)
	}

	select {
	case auth := <-gotAuth:
		if auth != "Bearer sekrit" {
			t.Errorf("Authorization = %q, want bearer token", auth)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server never saw the handshake")
	}
}

// ─── TestChannel_SendAndReceive ──────────────────────────────────────────────

func TestChannel_SendAndReceive(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		// Echo one inbound message, then push one of each kind.
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		_ = conn.Write(ctx, typ, data)
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"agent_response"}`))
		_ = conn.Close(websocket.StatusNormalClosure, "done")
	})

	c := openChannel(t, srv)
	if err := c.Send(transport.Frame{Kind: transport.FrameBinary, Data: []byte{1, 2, 3, 4}}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var got []transport.Frame
	for frame := range c.Frames() {
		got = append(got, frame)
	}
	if len(got) != 2 {
		t.Fatalf("received %d frames, want 2", len(got))
	}
	if got[0].Kind != transport.FrameBinary || string(got[0].Data) != "\x01\x02\x03\x04" {
		t.Errorf("echo frame = %+v", got[0])
	}
	if got[1].Kind != transport.FrameText {
		t.Errorf("second frame kind = %v, want text", got[1].Kind)
	}
	if err := c.Err(); err != nil {
		t.Errorf("Err() = %v after clean remote close, want nil", err)
	}
}

// ─── TestChannel_OpenFailure ─────────────────────────────────────────────────

func TestChannel_OpenFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer srv.Close()

	c := transportws.New()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	err := c.Open(ctx, transportws.Endpoint{URL: wsURL(srv)})
	var cerr *transport.ConnectError
	if !errors.As(err, &cerr) {
		t.Fatalf("Open = %v, want ConnectError", err)
	}
	if st := c.State(); st != transport.StateClosed {
		t.Errorf("State() = %v after failed Open, want closed", st)
	}
	if _, ok := <-c.Frames(); ok {
		t.Error("frames channel not closed after failed Open")
	}
}

// ─── TestChannel_AbnormalClosureIsFatal ──────────────────────────────────────

func TestChannel_AbnormalClosureIsFatal(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		conn.Close(websocket.StatusInternalError, "exploded")
	})

	c := openChannel(t, srv)
	for range c.Frames() {
	}
	if err := c.Err(); !errors.Is(err, transport.ErrTransportFatal) {
		t.Fatalf("Err() = %v, want ErrTransportFatal", err)
	}
}

// ─── TestChannel_SendAfterClose ──────────────────────────────────────────────

func TestChannel_SendAfterClose(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_, _, _ = conn.Read(ctx)
	})

	c := openChannel(t, srv)
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Send(transport.Frame{Kind: transport.FrameText, Data: []byte("x")}); !errors.Is(err, transport.ErrClosed) {
		t.Fatalf("Send after Close = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
