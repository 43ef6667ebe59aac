package handler

import (
	"context"
	"net/http"
	"time"

	"virkum-respond/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// streamRunEvents отдает события прогона по WebSocket начиная с ?offset=.
// Для живого прогона соединение держится до его завершения, для архивного
// отправляются сохраненные события и соединение закрывается.
func (h *Handler) streamRunEvents(c *gin.Context) {
	runID, ok := parseRunID(c)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0, 0)
	if !ok {
		return
	}

	events, live := h.runs.EventLog(runID)
	var archived []worker.Event
	if !live {
		var err error
		archived, err = h.runs.Events(c.Request.Context(), runID, offset)
		if err != nil {
			handleServiceError(c, err)
			return
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.String("runID", runID.String()), zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With(zap.String("runID", runID.String()))
	log.Info("Event stream client connected", zap.Bool("live", live), zap.Int("offset", offset))

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	go readPump(conn, cancel)
	go pingLoop(ctx, conn)

	send := func(e worker.Event) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(e); err != nil {
			log.Debug("Event stream write failed", zap.Error(err))
			return false
		}
		return true
	}

	sent := 0
	if live {
		for e := range events.Follow(ctx, offset) {
			if !send(e) {
				return
			}
			sent++
		}
	} else {
		for _, e := range archived {
			if !send(e) {
				return
			}
			sent++
		}
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
		time.Now().Add(writeWait))
	log.Info("Event stream finished", zap.Int("sent", sent))
}

// readPump читает управляющие кадры клиента. Ошибка чтения означает отключение.
func readPump(conn *websocket.Conn, disconnected context.CancelFunc) {
	defer disconnected()
	conn.SetReadLimit(maxMessageSize)
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

func pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
