package session

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rarydzu/monodisk/monodisk"
	"github.com/rarydzu/monodisk/monodisk/config"
	"github.com/rarydzu/monodisk/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newHandler(t *testing.T, totalSize int) *Handler {
	log := zaptest.NewLogger(t).Sugar()
	cfg := config.Default()
	cfg.Path = filepath.Join(t.TempDir(), "disk.img")
	cfg.TotalSize = totalSize
	cfg.SyncWrites = false
	disk, err := monodisk.Open(cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { disk.Close() })
	return NewHandler(disk, log)
}

func TestSplitCommand(t *testing.T) {
	tcs := []struct {
		line string
		exp  []string
	}{
		{"", []string{}},
		{"   ", []string{}},
		{"LIST", []string{"LIST"}},
		{"  read  a.txt ", []string{"read", "a.txt"}},
		{"WRITE a  hello   big  world ", []string{"WRITE", "a", "hello   big  world"}},
		{"WRITE\ta\tx y\r", []string{"WRITE", "a", "x y"}},
	}
	for _, tc := range tcs {
		assert.Equal(t, tc.exp, splitCommand(tc.line), "%q", tc.line)
	}
}

func TestExecute(t *testing.T) {
	h := newHandler(t, 128*16)
	steps := []struct {
		line  string
		reply string
	}{
		{"", "ERROR: Empty command"},
		{"LIST", "No files found."},
		{"CREATE", "ERROR: CREATE requires a filename"},
		{"create notes", "SUCCESS: File 'notes' created."},
		{"CREATE notes", "ERROR: file notes already exists"},
		{"CREATE averyverylongname", "ERROR: filename too large"},
		{"WRITE notes", "ERROR: WRITE requires filename and content"},
		{"WRITE notes hello  world", "SUCCESS: File 'notes' written."},
		{"READ notes", "hello  world"},
		{"READ", "ERROR: READ requires a filename"},
		{"READ ghost", "ERROR: file ghost does not exist"},
		{"WRITE ghost x", "ERROR: file ghost does not exist"},
		{"WRITE notes " + strings.Repeat("x", 128*15), "ERROR: file too large"},
		{"READ notes", "hello  world"},
		{"CREATE b", "SUCCESS: File 'b' created."},
		{"LIST", "notes\nb"},
		{"DELETE", "ERROR: DELETE requires a filename"},
		{"DELETE notes", "SUCCESS: File 'notes' deleted."},
		{"DELETE notes", "ERROR: file notes does not exist"},
		{"CREATE c", "SUCCESS: File 'c' created."},
		{"CREATE d", "SUCCESS: File 'd' created."},
		{"CREATE e", "SUCCESS: File 'e' created."},
		{"CREATE f", "SUCCESS: File 'f' created."},
		{"CREATE g", "ERROR: maximum number of files reached"},
		{"FORMAT", "ERROR: Unknown command"},
	}
	for _, step := range steps {
		reply, quit := h.Execute(step.line)
		assert.Equal(t, step.reply, reply, "%q", step.line)
		assert.False(t, quit)
	}
	content := utils.RandString(300)
	reply, _ := h.Execute("WRITE b " + content)
	assert.Equal(t, "SUCCESS: File 'b' written.", reply)
	reply, _ = h.Execute("READ b")
	assert.Equal(t, content, reply)

	reply, quit := h.Execute("quit")
	assert.Equal(t, "SUCCESS: Disconnecting.", reply)
	assert.True(t, quit)
}

func TestServer(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	srv, err := Listen("127.0.0.1:0", newHandler(t, 128*16), log)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- srv.Serve(ctx) }()

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)
	send := func(line string) string {
		_, err := conn.Write([]byte(line + "\n"))
		require.NoError(t, err)
		reply, err := r.ReadString('\n')
		require.NoError(t, err)
		return strings.TrimSuffix(reply, "\n")
	}

	assert.Equal(t, "SUCCESS: File 'a' created.", send("CREATE a"))
	// a second client sees the same disk
	other, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Write([]byte("WRITE a from other\n"))
	require.NoError(t, err)
	reply, err := bufio.NewReader(other).ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS: File 'a' written.\n", reply)

	assert.Equal(t, "from other", send("READ a"))
	assert.Equal(t, "ERROR: Unknown command", send("BOGUS"))
	assert.Equal(t, "SUCCESS: Disconnecting.", send("QUIT"))
	_, err = r.ReadString('\n')
	assert.ErrorIs(t, err, io.EOF)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	_, err = net.Dial("tcp", srv.Addr().String())
	assert.Error(t, err)
}

func TestServerCloseDropsClients(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", newHandler(t, 128*16), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	go srv.Serve(context.Background())

	conn, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("LIST\n"))
	require.NoError(t, err)
	r := bufio.NewReader(conn)
	_, err = r.ReadString('\n')
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	_, err = r.ReadString('\n')
	assert.Error(t, err)
}

func TestWebsocket(t *testing.T) {
	log := zaptest.NewLogger(t).Sugar()
	srv := httptest.NewServer(NewWebsocketHandler(newHandler(t, 128*16), log))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	send := func(line string) string {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(line)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		return string(msg)
	}

	assert.Equal(t, "SUCCESS: File 'w' created.", send("CREATE w"))
	assert.Equal(t, "SUCCESS: File 'w' written.", send("WRITE w over websocket"))
	assert.Equal(t, "over websocket", send("READ w"))
	assert.Equal(t, "w", send("LIST"))
	assert.Equal(t, "SUCCESS: Disconnecting.", send("QUIT"))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
