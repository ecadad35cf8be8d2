package emtviewer

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4096
)

// Client is one viewer connection. Subscriptions are held by the hub; the
// client only pumps bytes.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// closed is guarded by hub.mu. The hub sets it when it drops the client
	// and closes send; every send on the channel must check it under the
	// same lock or it races the close.
	closed bool
}

func (c *Client) enqueue(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- body:
	default:
	}
}

// readPump consumes subscribe requests until the connection closes, then
// removes the client from the hub.
func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
		c.hub.log.Info("Viewer disconnected: " + c.id)
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, body, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var ev struct {
			Event string           `json:"event"`
			Data  subscribeRequest `json:"data"`
		}
		if err := json.Unmarshal(body, &ev); err != nil {
			c.enqueue(Event{Event: "error", Data: map[string]string{"message": "invalid message"}})
			continue
		}

		if ev.Event == "subscribe" {
			chipId := ev.Data.ChipId
			if chipId == "" {
				chipId = ev.Data.DeviceId
			}
			if chipId == "" {
				c.enqueue(Event{Event: "error", Data: map[string]string{"message": "deviceId is required"}})
				continue
			}
			c.hub.subscribe(c, chipId)
		}
	}
}

// writePump drains the send channel and keeps the connection alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case body, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
