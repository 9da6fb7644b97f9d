package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"osce-prep-service/internal/app"
	"osce-prep-service/internal/domain"
)

// RankingWSHandler streams leaderboard snapshots to websocket clients as the
// global ranking changes.
type RankingWSHandler struct {
	service  *app.PracticeService
	upgrader websocket.Upgrader
}

func NewRankingWSHandler(service *app.PracticeService) *RankingWSHandler {
	return &RankingWSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage struct {
	Type    string             `json:"type"`
	Payload domain.Leaderboard `json:"payload"`
}

// ServeWS upgrades the connection and pumps ranking updates until the client
// disconnects.
func (h *RankingWSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.service.SubscribeRanking(r.Context())
	defer cancel()

	// Reader only exists to notice the client going away.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snapshot, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(outboundMessage{Type: "leaderboard", Payload: snapshot}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-clientGone:
			return
		}
	}
}
