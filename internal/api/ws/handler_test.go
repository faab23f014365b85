package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backdoor-sh/termcore/internal/infrastructure/config"
	"github.com/backdoor-sh/termcore/internal/infrastructure/logging"
	"github.com/backdoor-sh/termcore/internal/terminal"
)

func newTestServer(t *testing.T) (*httptest.Server, *terminal.Service, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Default()
	root := t.TempDir()
	cfg.Terminal.Root = root

	service, err := terminal.NewService(cfg, logging.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(service.Shutdown)

	router := gin.New()
	router.GET("/sessions/:id/ws", NewHandler(service, logging.NewNop(), nil).HandleConnection)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, service, root
}

func wsURL(srv *httptest.Server, sid string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/sessions/" + sid + "/ws"
}

func dial(t *testing.T, srv *httptest.Server, sid string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, sid), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg Message) {
	t.Helper()
	data, err := sonic.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func recv(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev Event
	require.NoError(t, sonic.Unmarshal(data, &ev))
	return ev
}

func TestPingPong(t *testing.T) {
	srv, service, _ := newTestServer(t)
	info := service.CreateSession()
	conn := dial(t, srv, info.ID)

	send(t, conn, Message{Type: "ping"})
	assert.Equal(t, "pong", recv(t, conn).Type)
}

func TestExecuteStreamsOutput(t *testing.T) {
	srv, service, root := newTestServer(t)
	info := service.CreateSession()
	conn := dial(t, srv, info.ID)

	// Builtins never spawn a process, so this runs anywhere.
	send(t, conn, Message{Type: "execute", Command: "pwd"})

	var output strings.Builder
	for {
		ev := recv(t, conn)
		if ev.Type == "done" {
			assert.Empty(t, ev.Error)
			break
		}
		require.Equal(t, "output", ev.Type)
		output.WriteString(ev.Data)
	}
	assert.Equal(t, root+"\n", output.String())
}

func TestUnknownSessionRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "sess_missing"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMalformedMessage(t *testing.T) {
	srv, service, _ := newTestServer(t)
	info := service.CreateSession()
	conn := dial(t, srv, info.ID)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	ev := recv(t, conn)
	assert.Equal(t, "error", ev.Type)
	assert.Equal(t, "malformed message", ev.Error)
}
