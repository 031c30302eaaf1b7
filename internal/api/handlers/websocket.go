package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/rental-access-control/backend/internal/api/middleware"
	ws "github.com/rental-access-control/backend/internal/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the marketplace edge in front of us.
		return true
	},
}

// WebSocketUpgrade upgrades an authenticated HTTP connection to the event
// channel. The client then subscribes to per-property channels; each
// subscription is authorized against property ownership before any event is
// delivered.
func WebSocketUpgrade(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserID(r.Context())

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			deps.Logger.Warn("websocket upgrade", zap.Error(err))
			return
		}

		client := ws.NewClient(deps.Hub, userID)
		deps.Hub.Register(client)

		go writePump(conn, client)
		go readPump(conn, client, deps)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send():
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub.
func readPump(conn *websocket.Conn, client *ws.Client, deps *Deps) {
	defer func() {
		deps.Hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(65536)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				deps.Logger.Debug("websocket read", zap.Error(err))
			}
			break
		}

		handleClientMessage(message, client, deps)
	}
}

// handleClientMessage processes subscribe/unsubscribe/ping commands.
// Responses go through the client's send channel so writePump stays the only
// writer on the connection.
func handleClientMessage(raw []byte, client *ws.Client, deps *Deps) {
	var msg ws.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		reply(client, ws.NewMessage(ws.TypeError, ws.ErrorPayload{
			Code:    "bad_message",
			Message: "Malformed message",
		}))
		return
	}

	switch msg.Type {
	case ws.TypePing:
		reply(client, ws.NewMessage(ws.TypePong, nil))

	case ws.TypeSubscribe:
		payload, ok := subscribePayload(msg)
		if !ok {
			reply(client, ws.NewMessage(ws.TypeError, ws.ErrorPayload{
				Code:         "bad_message",
				Message:      "property_id is required",
				OriginalType: string(msg.Type),
			}))
			return
		}

		allowed, err := deps.Authorizer.CanAccessProperty(
			context.Background(), client.UserID(), payload.PropertyID)
		if err != nil || !allowed {
			reply(client, ws.NewMessage(ws.TypeError, ws.ErrorPayload{
				Code:         "forbidden",
				Message:      "Not authorized for this property",
				OriginalType: string(msg.Type),
			}))
			return
		}

		client.Subscribe(payload.PropertyID)
		reply(client, ws.NewMessage(ws.TypeSubscribeAck, ws.SubscribeAckPayload{
			PropertyID: payload.PropertyID,
		}))

	case ws.TypeUnsubscribe:
		if payload, ok := subscribePayload(msg); ok {
			client.Unsubscribe(payload.PropertyID)
		}

	default:
		reply(client, ws.NewMessage(ws.TypeError, ws.ErrorPayload{
			Code:         "unknown_type",
			Message:      "Unknown message type",
			OriginalType: string(msg.Type),
		}))
	}
}

func subscribePayload(msg ws.Message) (ws.SubscribePayload, bool) {
	raw, err := json.Marshal(msg.Payload)
	if err != nil {
		return ws.SubscribePayload{}, false
	}
	var payload ws.SubscribePayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.PropertyID == "" {
		return ws.SubscribePayload{}, false
	}
	return payload, true
}

func reply(client *ws.Client, msg ws.Message) {
	data, err := msg.JSON()
	if err != nil {
		return
	}
	client.Enqueue(data)
}
