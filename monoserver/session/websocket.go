package session

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebsocketHandler runs the command protocol over websocket text messages
type WebsocketHandler struct {
	handler *Handler
	log     *zap.SugaredLogger
}

func NewWebsocketHandler(handler *Handler, log *zap.SugaredLogger) *WebsocketHandler {
	return &WebsocketHandler{
		handler: handler,
		log:     log,
	}
}

// NewWebsocketServer serves the protocol on address under /ws
func NewWebsocketServer(address string, handler *Handler, log *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", NewWebsocketHandler(handler, log))
	return &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (ws *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		ws.log.Errorf("Failed to upgrade connection: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxLine)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.log.Infof("Failed to read from websocket %s: %v", r.RemoteAddr, err)
			}
			return
		}
		reply, quit := ws.handler.Execute(string(message))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			ws.log.Debugf("write to %s: %v", r.RemoteAddr, err)
			return
		}
		if quit {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}
