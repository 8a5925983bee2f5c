// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"eqplayer/internal/control"
	"eqplayer/internal/log"

	"github.com/gorilla/websocket"
)

const writeTimeout = time.Second

// Reply is sent back to a client whose command failed.
type Reply struct {
	Action string `json:"action"`
	Error  string `json:"error"`
}

// wsClient serializes writes; gorilla allows one concurrent writer per
// connection and both the broadcaster and the reader reply on it.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(v)
}

// WebSocketTransport implements the Transport interface for WebSocket
// connections. Frames are broadcast to every client on /ws; JSON messages
// from clients are decoded as control.Command and passed to the handler.
type WebSocketTransport struct {
	addr      string
	handler   CommandHandler
	upgrader  websocket.Upgrader
	clients   map[*wsClient]struct{}
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once
	server    *http.Server
	listener  net.Listener
}

// NewWebSocketTransport creates a new WebSocketTransport instance. handler
// may be nil, in which case client messages are ignored.
func NewWebSocketTransport(addr string, handler CommandHandler) *WebSocketTransport {
	return &WebSocketTransport{
		addr:    addr,
		handler: handler,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Visualizers are served from anywhere.
			},
		},
		clients:   make(map[*wsClient]struct{}),
		broadcast: make(chan any, 256),
		done:      make(chan struct{}),
	}
}

// Start listens on the configured address and serves in the background.
func (wst *WebSocketTransport) Start() error {
	ln, err := net.Listen("tcp", wst.addr)
	if err != nil {
		return err
	}
	wst.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	wst.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Infof("WebSocketTransport: Listening on %s", ln.Addr())
		if err := wst.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("WebSocketTransport: Server error: %v", err)
		}
	}()
	go wst.handleBroadcasts()
	return nil
}

// Addr returns the bound address once started.
func (wst *WebSocketTransport) Addr() string {
	if wst.listener == nil {
		return wst.addr
	}
	return wst.listener.Addr().String()
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}

	c := &wsClient{conn: conn}
	wst.clientsMu.Lock()
	wst.clients[c] = struct{}{}
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	log.Infof("WebSocketTransport: Client connected, total: %d", total)

	go wst.readLoop(c)
}

func (wst *WebSocketTransport) readLoop(c *wsClient) {
	defer wst.drop(c)

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd control.Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			log.Debugf("WebSocketTransport: Bad command: %v", err)
			_ = c.writeJSON(Reply{Error: "invalid command: " + err.Error()})
			continue
		}
		if wst.handler == nil {
			continue
		}
		if err := wst.handler(cmd); err != nil {
			log.Warnf("WebSocketTransport: Command %q failed: %v", cmd.Action, err)
			_ = c.writeJSON(Reply{Action: cmd.Action, Error: err.Error()})
		}
	}
}

func (wst *WebSocketTransport) drop(c *wsClient) {
	wst.clientsMu.Lock()
	_, ok := wst.clients[c]
	delete(wst.clients, c)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	c.conn.Close()
	if ok {
		log.Infof("WebSocketTransport: Client disconnected, total: %d", total)
	}
}

// handleBroadcasts sends messages to all connected clients
func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			clients := make([]*wsClient, 0, len(wst.clients))
			for c := range wst.clients {
				clients = append(clients, c)
			}
			wst.clientsMu.Unlock()

			for _, c := range clients {
				if err := c.writeJSON(data); err != nil {
					log.Debugf("WebSocketTransport: Error sending to client: %v", err)
					wst.drop(c)
				}
			}
		}
	}
}

// Send queues data for broadcast. Frames are dropped while the queue is
// full so a slow client never stalls the publisher.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case wst.broadcast <- data:
	default:
	}
	return nil
}

// Close shuts down the WebSocket server
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		log.Info("WebSocketTransport: Closing server")
		close(wst.done)

		wst.clientsMu.Lock()
		for c := range wst.clients {
			c.conn.Close()
		}
		wst.clients = make(map[*wsClient]struct{})
		wst.clientsMu.Unlock()

		if wst.server != nil {
			err = wst.server.Close()
		}
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
