package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/uvc_stereo/internal/config"
	"github.com/relabs-tech/uvc_stereo/internal/publish"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const (
	wsSendBuffer   = 64
	wsWriteTimeout = 5 * time.Second
)

// hub fans events out to websocket viewers. A viewer that falls behind
// loses events instead of slowing the MQTT callback.
type hub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*wsClient]struct{})}
}

func (h *hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// broadcast returns the number of viewers the message was dropped for.
func (h *hub) broadcast(msg []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("web: websocket upgrade error", "err", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}
	h.add(c)
	go c.writeLoop()

	// Viewers only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("web: websocket error", "err", err)
			}
			break
		}
	}
	h.remove(c)
	conn.Close()
}

func (c *wsClient) writeLoop() {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.conn.Close()
			for range c.send {
			}
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("web: json encode error", "err", err)
	}
}

// newWebMux wires the HTTP API, the live websocket and the static viewer.
func newWebMux(monitor *Monitor, h *hub, staticDir string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, monitor.Status())
	})

	mux.HandleFunc("GET /api/imu", func(w http.ResponseWriter, r *http.Request) {
		s := monitor.Status()
		if s.Inertial == nil {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, struct {
			Inertial *publish.InertialPayload `json:"imu"`
			Pose     any                      `json:"pose"`
		}{s.Inertial, s.Pose})
	})

	mux.HandleFunc("GET /api/preview/{camera}", func(w http.ResponseWriter, r *http.Request) {
		cam, err := strconv.Atoi(r.PathValue("camera"))
		if err != nil || cam < 0 {
			http.Error(w, "bad camera index", http.StatusBadRequest)
			return
		}
		p, ok := monitor.LatestImage(cam)
		if !ok {
			http.Error(w, "no image yet", http.StatusNotFound)
			return
		}
		img, err := RenderPreview(p, r.URL.Query().Get("rectified") == "1")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, img); err != nil {
			slog.Warn("web: png encode error", "err", err)
		}
	})

	mux.HandleFunc("GET /ws", h.serveWS)

	// Static files from ./web as the root
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

// RunWeb relays the producer's MQTT stream to browsers until Ctrl+C.
func RunWeb(cfg *config.Config, staticDir string) error {
	client, err := publish.Connect(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	slog.Info("web: connected to MQTT broker", "broker", cfg.MQTTBroker)

	topics := publish.Topics{Prefix: cfg.TopicPrefix}
	monitor := NewMonitor(topics)
	h := newHub()

	token := client.Subscribe(topics.Wildcard(), 0, func(_ mqtt.Client, msg mqtt.Message) {
		ev, err := monitor.Handle(msg.Topic(), msg.Payload())
		if err != nil {
			if !errors.Is(err, ErrUnknownTopic) {
				slog.Warn("web: bad message", "topic", msg.Topic(), "err", err)
			}
			return
		}
		data, err := json.Marshal(ev)
		if err != nil {
			slog.Warn("web: event marshal error", "err", err)
			return
		}
		if dropped := h.broadcast(data); dropped > 0 {
			slog.Debug("web: slow viewers skipped an event", "viewers", dropped)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	slog.Info("web: subscribed", "topic", topics.Wildcard())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler:           newWebMux(monitor, h, staticDir),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("web: server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
