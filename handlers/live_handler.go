package handlers

import (
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"fitTribeAPI/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type LiveHandler struct {
	feed *services.LiveFeed
}

func NewLiveHandler(feed *services.LiveFeed) *LiveHandler {
	return &LiveHandler{
		feed: feed,
	}
}

// WatchChallenge upgrades the connection and streams progress events for one
// challenge until the client disconnects.
func (h *LiveHandler) WatchChallenge(w http.ResponseWriter, r *http.Request) {
	challengeID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid challenge id")
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Could not upgrade connection: %v", err)
		return
	}

	room := h.feed.Join(challengeID)
	client := services.NewFeedClient(room, ws)

	go client.WritePump()
	go client.ReadPump()
}
