package notify

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wolfman30/booking-assistant/internal/tenancy"
	"github.com/wolfman30/booking-assistant/pkg/logging"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// WebSocketHandler streams a tenant's booking events to a dashboard
// connection. The tenant comes from the request context or the "tenant"
// query parameter.
type WebSocketHandler struct {
	registry *Registry
	upgrader websocket.Upgrader
	logger   *logging.Logger
}

func NewWebSocketHandler(registry *Registry, logger *logging.Logger) *WebSocketHandler {
	if registry == nil {
		panic("notify: registry required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebSocketHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenancy.TenantIDFromContext(r.Context())
	if !ok {
		tenantID = r.URL.Query().Get("tenant")
	}
	if tenantID == "" {
		http.Error(w, "tenant required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "tenant_id", tenantID, "error", err)
		return
	}
	defer conn.Close()

	id, events := h.registry.Subscribe(tenantID)
	defer h.registry.Unsubscribe(id)
	h.logger.Info("dashboard subscribed", "tenant_id", tenantID, "subscriber_id", id)

	closed := make(chan struct{})
	go h.readLoop(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				h.logger.Debug("dashboard write failed", "tenant_id", tenantID, "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop drains client frames so pongs and close frames are processed.
func (h *WebSocketHandler) readLoop(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
