package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"dm-lab/contract"
	"dm-lab/domain"
	"dm-lab/domain/event"
	"dm-lab/observability"
	"dm-lab/services"
	"dm-lab/sink"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second
	// Time allowed to read the next pong from the peer
	pongWait = 60 * time.Second
	// Pings must be sent more often than pongs are expected
	pingPeriod = (pongWait * 9) / 10
	// Inbound frames are small control messages only
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is token-authenticated, origin checks add nothing here
	CheckOrigin: func(r *http.Request) bool { return true },
}

// frame is the wire shape in both directions.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// WSHandler upgrades authenticated requests and runs the two pumps for
// the lifetime of the socket.
type WSHandler struct {
	log        *slog.Logger
	registry   contract.IRegistry
	presence   contract.IPresence
	messages   *services.MessageService
	monitoring *observability.Monitoring
	bufferSize int
}

func NewWSHandler(log *slog.Logger, registry contract.IRegistry, presence contract.IPresence,
	messages *services.MessageService, monitoring *observability.Monitoring, bufferSize int) *WSHandler {
	return &WSHandler{
		log:        log,
		registry:   registry,
		presence:   presence,
		messages:   messages,
		monitoring: monitoring,
		bufferSize: bufferSize,
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	connID := domain.NewConnectionID()
	snk := sink.NewConnection(h.bufferSize)

	first, err := h.registry.Register(userID, connID, snk)
	if err != nil {
		h.log.Warn("Registration rejected", "error", err)
		conn.Close()
		return
	}
	h.monitoring.IncrConnectionsOpened()
	h.log.Info("Connection opened", "user", userID, "conn", connID, "first", first)

	h.presence.HandleConnect(r.Context(), userID, first)

	go h.writePump(conn, snk, userID)
	h.readPump(conn, connID, userID)
}

// readPump consumes inbound control frames until the socket dies, then
// runs the disconnect path exactly once.
func (h *WSHandler) readPump(conn *websocket.Conn, connID domain.ConnectionID, userID string) {
	defer func() {
		conn.Close()
		owner, last := h.registry.Unregister(connID)
		h.monitoring.IncrConnectionsClosed()
		h.log.Info("Connection closed", "user", owner, "conn", connID, "last", last)
		if owner != "" {
			h.presence.HandleDisconnect(context.Background(), owner, last, time.Now().UTC())
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("Socket read error", "user", userID, "error", err)
			}
			return
		}
		h.handleInbound(userID, f)
	}
}

func (h *WSHandler) handleInbound(userID string, f frame) {
	switch f.Event {
	case "typing":
		var payload struct {
			ReceiverID string `json:"receiverId"`
			IsTyping   bool   `json:"isTyping"`
		}
		if err := json.Unmarshal(f.Data, &payload); err != nil {
			return
		}
		h.messages.Typing(context.Background(), userID, payload.ReceiverID, payload.IsTyping)
	case "updatePresence":
		var payload struct {
			Status domain.Status `json:"status"`
		}
		if err := json.Unmarshal(f.Data, &payload); err != nil {
			return
		}
		if payload.Status == "" {
			payload.Status = domain.StatusOnline
		}
		h.presence.Touch(context.Background(), userID, payload.Status)
	default:
		h.log.Debug("Ignoring unknown inbound event", "event", f.Event)
	}
}

// writePump drains the sink channel in FIFO order and keeps the socket
// alive with pings. It exits when the channel source dies or a write
// fails, which tears the whole connection down via the read side.
func (h *WSHandler) writePump(conn *websocket.Conn, snk *sink.Connection, userID string) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case e, ok := <-snk.Events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(encodeEvent(e)); err != nil {
				h.log.Warn("Socket write failed", "user", userID, "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// encodeEvent builds the outbound frame. Roster and message events unwrap
// to the payload shapes the original clients expect.
func encodeEvent(e event.DeliveryEvent) outFrame {
	switch ev := e.(type) {
	case event.NewMessage:
		return outFrame{Event: ev.Name(), Data: ev.Message}
	case event.OnlineRoster:
		return outFrame{Event: ev.Name(), Data: ev.UserIDs}
	default:
		return outFrame{Event: e.Name(), Data: e}
	}
}
