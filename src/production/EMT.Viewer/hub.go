package emtviewer

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	logger "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Logger"
	emtmodels "gitlab.com/fidaenergy/emt.receiver_server/src/production/EMT.Models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Event is the wire envelope for every viewer-facing message.
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// RealtimeData is pushed to every viewer subscribed to a device when one of
// its readings is ingested.
type RealtimeData struct {
	ChipId string             `json:"chipId"`
	Data   emtmodels.Reading  `json:"data"`
	Status string             `json:"status"`
}

// DeviceStatus is pushed on every liveness sweep.
type DeviceStatus struct {
	ChipId string `json:"chipId"`
	Status string `json:"status"`
}

type subscribeRequest struct {
	DeviceId string `json:"deviceId"`
	ChipId   string `json:"chipId"`
}

// Hub is the viewer directory: it maps device ids to the websocket
// connections watching them and fans ingested readings and status sweeps out
// to them. One device can have many viewers; a viewer re-subscribing to the
// same device replaces its earlier subscription.
type Hub struct {
	mu      sync.Mutex
	subs    map[string]map[*Client]bool
	clients map[*Client]bool

	// statusOf, when set, supplies the initial status pushed right after a
	// viewer subscribes.
	statusOf func(chipId string) string

	log *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		subs:    make(map[string]map[*Client]bool),
		clients: make(map[*Client]bool),
		log:     log.WithComponent("viewer-hub"),
	}
}

// SetStatusFunc wires the liveness tracker's current classification into the
// subscribe handshake.
func (h *Hub) SetStatusFunc(fn func(chipId string) string) {
	h.statusOf = fn
}

// RegisterRoutes registers the websocket endpoint with Gin.
func (h *Hub) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", h.ServeWS)
}

// ServeWS upgrades the connection and starts the client's pumps.
func (h *Hub) ServeWS(ctx *gin.Context) {
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.log.ErrorWithError(err, "Websocket upgrade failed")
		return
	}

	client := &Client{
		id:   "viewer-" + uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	h.log.Info("Viewer connected: " + client.id)

	client.enqueue(Event{Event: "testConnection", Data: gin.H{
		"sender": client.id,
		"status": "connected to server",
	}})

	go client.writePump()
	go client.readPump()
}

// BroadcastData pushes an ingested reading to every viewer of the device.
func (h *Hub) BroadcastData(chipId string, reading emtmodels.Reading, status string) {
	h.broadcast(chipId, Event{Event: "realtimeData", Data: RealtimeData{
		ChipId: chipId,
		Data:   reading,
		Status: status,
	}})
}

// BroadcastStatus pushes a liveness classification to every viewer of the
// device. Sweeps call this for all devices every interval; delivery is
// idempotent.
func (h *Hub) BroadcastStatus(chipId, status string) {
	h.broadcast(chipId, Event{Event: "deviceStatus", Data: DeviceStatus{
		ChipId: chipId,
		Status: status,
	}})
}

// Subscribers returns the number of viewers watching a device.
func (h *Hub) Subscribers(chipId string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[chipId])
}

func (h *Hub) broadcast(chipId string, ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		h.log.ErrorWithError(err, "Failed to marshal viewer event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.subs[chipId] {
		select {
		case client.send <- body:
		default:
			// Slow viewer; drop it rather than block the pipeline.
			h.dropLocked(client)
		}
	}
}

func (h *Hub) subscribe(client *Client, chipId string) {
	h.mu.Lock()
	if h.subs[chipId] == nil {
		h.subs[chipId] = make(map[*Client]bool)
	}
	h.subs[chipId][client] = true
	h.mu.Unlock()

	h.log.WithChipId(chipId).Info("Viewer " + client.id + " subscribed")

	if h.statusOf != nil {
		client.enqueue(Event{Event: "deviceStatus", Data: DeviceStatus{
			ChipId: chipId,
			Status: h.statusOf(chipId),
		}})
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(client)
}

func (h *Hub) dropLocked(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	for chipId, viewers := range h.subs {
		delete(viewers, client)
		if len(viewers) == 0 {
			delete(h.subs, chipId)
		}
	}
	client.closed = true
	close(client.send)
}
