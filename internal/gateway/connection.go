package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/driftcode/agentcore/internal/broadcast"
)

// connection owns one client's read loop. Writes go through bc.SendRaw,
// which hands them to broadcast.Manager's per-connection writeLoop
// goroutine, keeping a single writer per socket as gorilla/websocket
// requires.
type connection struct {
	server *Server
	id     string
	conn   *websocket.Conn
	bc     *broadcast.Connection
}

func (c *connection) serve() {
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.reply(errFrame("", "bad_frame", "invalid JSON frame"))
			continue
		}
		if f.Type != "request" {
			continue
		}
		c.dispatch(f)
	}
}

func (c *connection) dispatch(f frame) {
	handler, ok := methods[f.Method]
	if !ok {
		c.reply(errFrame(f.ID, "unknown_method", "no such method: "+f.Method))
		return
	}

	payload, err := handler(c, f.Params)
	if err != nil {
		c.reply(errFrame(f.ID, "method_failed", err.Error()))
		return
	}
	c.reply(okFrame(f.ID, payload))
}

func (c *connection) reply(f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.server.logger.Error("encode reply failed", "error", err)
		return
	}
	if !c.bc.SendRaw(data) {
		c.server.logger.Warn("dropped reply, send buffer full", "connection", c.id)
	}
}
