package services

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	feedWriteWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	feedPongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than feedPongWait.
	feedPingPeriod = (feedPongWait * 9) / 10

	// Maximum message size allowed from peer.
	feedMaxMessageSize = 512
)

// ProgressEvent is what subscribers of a challenge feed receive every time
// a participant's progress changes.
type ProgressEvent struct {
	ChallengeID uuid.UUID `json:"challengeId"`
	UserID      uuid.UUID `json:"userId"`
	Progress    int       `json:"progress"`
	Completed   bool      `json:"completed"`
	At          time.Time `json:"at"`
}

// LiveFeed manages one room per challenge. Rooms are created lazily on the
// first subscriber and destroyed when the last one leaves.
type LiveFeed struct {
	rooms map[uuid.UUID]*feedRoom
	mu    sync.RWMutex
}

func NewLiveFeed() *LiveFeed {
	return &LiveFeed{
		rooms: make(map[uuid.UUID]*feedRoom),
	}
}

// Publish fans the event out to everyone watching the challenge. No room
// means no watchers, which is fine.
func (f *LiveFeed) Publish(event ProgressEvent) {
	f.mu.RLock()
	room, ok := f.rooms[event.ChallengeID]
	f.mu.RUnlock()
	if !ok {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Publish: failed to encode progress event: %v", err)
		return
	}

	select {
	case room.broadcast <- data:
	default:
		log.Printf("Publish: feed for challenge %s is backed up, dropping event", event.ChallengeID)
	}
}

// Join returns the room for a challenge, creating and starting it if needed.
// The caller is counted as a pending watcher until it registers a client, so
// the room's run loop cannot tear the room down underneath it.
func (f *LiveFeed) Join(challengeID uuid.UUID) *feedRoom {
	f.mu.Lock()
	defer f.mu.Unlock()

	if room, ok := f.rooms[challengeID]; ok {
		room.pending++
		return room
	}

	room := &feedRoom{
		challengeID: challengeID,
		feed:        f,
		pending:     1,
		clients:     make(map[*FeedClient]bool),
		broadcast:   make(chan []byte, 16),
		register:    make(chan *FeedClient),
		unregister:  make(chan *FeedClient),
	}
	f.rooms[challengeID] = room
	go room.run()
	return room
}

// closeIfIdle removes the room from the map unless a Join handed out its
// pointer to a watcher that has not registered yet. Returns whether the room
// was removed; if not, the run loop must keep going.
func (f *LiveFeed) closeIfIdle(r *feedRoom) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.pending > 0 {
		return false
	}
	delete(f.rooms, r.challengeID)
	return true
}

func (f *LiveFeed) registered(r *feedRoom) {
	f.mu.Lock()
	r.pending--
	f.mu.Unlock()
}

type feedRoom struct {
	challengeID uuid.UUID
	feed        *LiveFeed
	// pending counts Join calls whose client has not hit register yet.
	// Guarded by feed.mu, not by the run loop.
	pending    int
	clients    map[*FeedClient]bool
	broadcast  chan []byte
	register   chan *FeedClient
	unregister chan *FeedClient
}

func (r *feedRoom) run() {
	for {
		select {
		case client := <-r.register:
			r.feed.registered(r)
			r.clients[client] = true
			log.Printf("[Feed %s] Watcher connected. Count: %d", r.challengeID, len(r.clients))

		case client := <-r.unregister:
			if _, ok := r.clients[client]; ok {
				delete(r.clients, client)
				close(client.Send)

				if len(r.clients) == 0 && r.feed.closeIfIdle(r) {
					log.Printf("[Feed %s] Empty, destroying.", r.challengeID)
					return
				}
			}

		case message := <-r.broadcast:
			for client := range r.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(r.clients, client)
				}
			}
		}
	}
}

// FeedClient sits between one websocket connection and its room.
type FeedClient struct {
	Room *feedRoom
	Conn *websocket.Conn
	Send chan []byte
}

func NewFeedClient(room *feedRoom, conn *websocket.Conn) *FeedClient {
	c := &FeedClient{
		Room: room,
		Conn: conn,
		Send: make(chan []byte, 16),
	}
	room.register <- c
	return c
}

// ReadPump discards inbound messages. The feed is one-way, but reading is
// still required to process pongs and notice disconnects.
func (c *FeedClient) ReadPump() {
	defer func() {
		c.Room.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(feedMaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(feedPongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(feedPongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			break
		}
	}
}

// WritePump handles messages going TO the frontend.
func (c *FeedClient) WritePump() {
	ticker := time.NewTicker(feedPingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if !ok {
				// The room closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
