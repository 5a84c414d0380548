package sync

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ranobepub/internal/notify"
)

const (
	defaultHistorySize = 256
	writeTimeout       = 2 * time.Second
	// sendBuffer is how many messages may queue for one client before it is
	// dropped as too slow.
	sendBuffer = 64
)

// subscriber owns the only writer goroutine of one connection.
type subscriber struct {
	send chan []byte
	conn io.Closer
	once sync.Once
}

func newSubscriber(conn io.Closer, backlog int, write func([]byte) error) *subscriber {
	s := &subscriber{send: make(chan []byte, backlog+sendBuffer), conn: conn}
	go func() {
		for msg := range s.send {
			if err := write(msg); err != nil {
				// the read loop notices the close and unregisters the client
				_ = conn.Close()
				return
			}
		}
	}()
	return s
}

// offer queues msg without blocking. It reports false when the queue is full.
func (s *subscriber) offer(msg []byte) bool {
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// stop ends the writer and closes the connection. Callers hold the hub lock
// and have already removed s from its map, so nothing sends after close.
func (s *subscriber) stop() {
	s.once.Do(func() {
		close(s.send)
		_ = s.conn.Close()
	})
}

func wsWriter(ws *websocket.Conn) func([]byte) error {
	return func(b []byte) error {
		_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		return ws.WriteMessage(websocket.TextMessage, b)
	}
}

func tcpWriter(c net.Conn) func([]byte) error {
	return func(b []byte) error {
		_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
		_, err := c.Write(b)
		return err
	}
}

// room holds the websocket subscribers of one job and its recent events.
type room struct {
	connections map[*websocket.Conn]*subscriber
	history     []notify.Event
}

// Hub fans progress events out to websocket subscribers of the event's job
// and to every TCP feed client. It implements notify.Notifier. No network
// write happens under the lock: each connection has its own queue and writer.
type Hub struct {
	mu          sync.Mutex
	rooms       map[string]*room
	tcpClients  map[net.Conn]*subscriber
	historySize int
}

type Stats struct {
	TCPClients int `json:"tcp_clients"`
	WSClients  int `json:"ws_clients"`
	Rooms      int `json:"rooms"`
}

func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = defaultHistorySize
	}
	return &Hub{
		rooms:       make(map[string]*room),
		tcpClients:  make(map[net.Conn]*subscriber),
		historySize: historySize,
	}
}

// Publish records e in its job's history and queues it for delivery. A
// client whose queue is full is disconnected.
func (h *Hub) Publish(e notify.Event) {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	line := make([]byte, 0, len(b)+1)
	line = append(append(line, b...), '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	if e.Job != "" {
		r := h.roomLocked(e.Job)
		r.history = append(r.history, e)
		if len(r.history) > h.historySize {
			r.history = r.history[len(r.history)-h.historySize:]
		}
		for ws, sub := range r.connections {
			if !sub.offer(b) {
				delete(r.connections, ws)
				sub.stop()
			}
		}
	}

	for c, sub := range h.tcpClients {
		if !sub.offer(line) {
			delete(h.tcpClients, c)
			sub.stop()
		}
	}
}

// Join subscribes ws to job. The welcome message and the job's history are
// queued ahead of any live event.
func (h *Hub) Join(job string, ws *websocket.Conn) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.roomLocked(job)
	welcome, err := json.Marshal(map[string]any{"type": "welcome", "transport": "websocket", "job": job, "history": len(r.history)})
	if err != nil {
		return fmt.Errorf("encode welcome: %w", err)
	}
	replay := make([][]byte, 0, len(r.history))
	for _, e := range r.history {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		replay = append(replay, b)
	}

	sub := newSubscriber(ws, len(replay)+1, wsWriter(ws))
	sub.offer(welcome)
	for _, b := range replay {
		sub.offer(b)
	}
	r.connections[ws] = sub
	return nil
}

func (h *Hub) Leave(job string, ws *websocket.Conn) {
	h.mu.Lock()
	if r, ok := h.rooms[job]; ok {
		if sub, ok := r.connections[ws]; ok {
			delete(r.connections, ws)
			sub.stop()
		}
	}
	h.mu.Unlock()
	_ = ws.Close()
}

func (h *Hub) History(job string) []notify.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[job]; ok {
		return append([]notify.Event(nil), r.history...)
	}
	return nil
}

// Forget drops a job's room and history and disconnects its subscribers.
func (h *Hub) Forget(job string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[job]; ok {
		delete(h.rooms, job)
		for ws, sub := range r.connections {
			delete(r.connections, ws)
			sub.stop()
		}
	}
}

// Add registers a TCP feed client and greets it.
func (h *Hub) Add(conn net.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := newSubscriber(conn, 1, tcpWriter(conn))
	h.tcpClients[conn] = sub
	sub.offer([]byte(fmt.Sprintf("{\"type\":\"welcome\",\"transport\":\"tcp\",\"clients\":%d}\n", len(h.tcpClients))))
}

func (h *Hub) Remove(conn net.Conn) {
	h.mu.Lock()
	if sub, ok := h.tcpClients[conn]; ok {
		delete(h.tcpClients, conn)
		sub.stop()
	}
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := Stats{TCPClients: len(h.tcpClients), Rooms: len(h.rooms)}
	for _, r := range h.rooms {
		s.WSClients += len(r.connections)
	}
	return s
}

func (h *Hub) roomLocked(job string) *room {
	r, ok := h.rooms[job]
	if !ok {
		r = &room{connections: make(map[*websocket.Conn]*subscriber)}
		h.rooms[job] = r
	}
	return r
}
