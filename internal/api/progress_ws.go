package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/annel0/minesim/internal/eventbus"
)

const wsSendBuffer = 256

var wsClients atomic.Int64

// handleProgressWS отдаёт события шины в websocket: по одному JSON Envelope на сообщение.
// ?types=RunFinished,BatchFinished ограничивает типы событий.
// Медленный клиент теряет события, но не тормозит симуляцию.
func (s *Server) handleProgressWS(c *gin.Context) {
	if s.cfg.Bus == nil {
		c.JSON(http.StatusServiceUnavailable, GenericResponse{
			Success: false,
			Message: "Шина событий отключена",
		})
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var filter eventbus.Filter
	if raw := c.Query("types"); raw != "" {
		filter.Types = strings.Split(raw, ",")
	}

	out := make(chan []byte, wsSendBuffer)
	var dropped atomic.Int64

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	sub, err := s.cfg.Bus.Subscribe(ctx, filter, func(_ context.Context, ev *eventbus.Envelope) {
		b, err := json.Marshal(ev)
		if err != nil {
			return
		}
		select {
		case out <- b:
		default:
			dropped.Add(1)
		}
	})
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "bus unavailable"), time.Now().Add(time.Second))
		return
	}
	defer sub.Unsubscribe()

	n := wsClients.Add(1)
	defer wsClients.Add(-1)
	s.log.Info("🔌 Подключён websocket клиент прогресса (%d всего)", n)

	// Чтение нужно только чтобы заметить закрытие соединения клиентом
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
			if d := dropped.Load(); d > 0 {
				s.log.Warn("⚠️ Websocket клиент не успел получить %d событий", d)
			}
			return
		case b := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
