package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/dreamforge/api/internal/model"
	"github.com/dreamforge/api/internal/store"
	"github.com/dreamforge/api/pkg/response"
)

// Client represents a WebSocket client
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub fans job progress out to WebSocket subscribers. It keeps one store
// subscription per watched job, started when the first client connects and
// torn down when the last one leaves.
type Hub struct {
	store store.Store

	// Clients grouped by job ID
	clients map[string]map[*Client]bool

	// Per-job store subscription cancel funcs
	watchers map[string]func()

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	mu sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	JobID   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub(st store.Store) *Hub {
	return &Hub{
		store:      st,
		clients:    make(map[string]map[*Client]bool),
		watchers:   make(map[string]func()),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
				h.startWatch(client.JobID)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			log.Printf("Client registered for job %s", client.JobID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.JobID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.JobID)
						h.stopWatch(client.JobID)
					}
				}
			}
			h.mu.Unlock()
			log.Printf("Client unregistered from job %s", client.JobID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.JobID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// startWatch subscribes to the job's store events. Callers hold h.mu.
func (h *Hub) startWatch(jobID string) {
	snaps, cancel, err := h.store.Subscribe(context.Background(), jobID)
	if err != nil {
		log.Printf("Failed to subscribe to job %s: %v", jobID, err)
		return
	}
	h.watchers[jobID] = cancel
	go func() {
		for snap := range snaps {
			h.publish(snap)
		}
	}()
}

// stopWatch tears down the job's store subscription. Callers hold h.mu.
func (h *Hub) stopWatch(jobID string) {
	if cancel, ok := h.watchers[jobID]; ok {
		cancel()
		delete(h.watchers, jobID)
	}
}

// publish translates a job snapshot into the wire message for its state and
// queues it for broadcast.
func (h *Hub) publish(snap model.JobSnapshot) {
	var msg interface{}
	switch snap.Status {
	case model.JobStatusCompleted:
		msg = model.WSCompleteMessage{
			Type:    model.WSMessageTypeComplete,
			JobID:   snap.JobID,
			Status:  snap.Status,
			Outputs: snap.Outputs,
		}
	case model.JobStatusFailed:
		message := "Job failed"
		if snap.Error != nil {
			message = *snap.Error
		}
		msg = model.WSErrorMessage{
			Type:  model.WSMessageTypeError,
			JobID: snap.JobID,
			Error: model.WSError{Code: response.CodeJobFailed, Message: message},
		}
	default:
		msg = model.WSProgressMessage{
			Type:          model.WSMessageTypeProgress,
			JobID:         snap.JobID,
			Status:        snap.Status,
			Progress:      snap.Progress,
			SceneProgress: snap.SceneProgress,
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal ws message: %v", err)
		return
	}
	h.broadcast <- &BroadcastMessage{JobID: snap.JobID, Message: data}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	// Push the current state so the client does not wait for the next tick
	if job, err := h.store.Get(context.Background(), jobID); err == nil {
		h.publish(model.SnapshotOf(job))
	}

	// Start writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Send ping for keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		// Handle client messages (ping/pong)
		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			client.Send <- data
		}
	}
}
