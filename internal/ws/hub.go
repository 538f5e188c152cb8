package ws

import "sync/atomic"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

const broadcastBuffer = 256

// Hub fans analytics events out to live stream subscribers, keyed by
// organization ID. Broadcasts never block event ingestion: when the
// buffer is full the payload is dropped and counted.
type Hub struct {
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	closeOrg  chan string
	dropped   atomic.Int64
}

// message couples payload with organization identifier.
type message struct {
	orgID   string
	payload []byte
}

// subscription defines register/unregister requests.
type subscription struct {
	orgID  string
	client Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message, broadcastBuffer),
		closeOrg:  make(chan string),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.orgID]; !ok {
				h.clients[sub.orgID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.orgID][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.orgID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.orgID)
				}
			}
		case orgID := <-h.closeOrg:
			for c := range h.clients[orgID] {
				c.Close()
			}
			delete(h.clients, orgID)
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.orgID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.orgID)
				}
			}
		}
	}
}

// Register adds a client to an organization's event stream.
func (h *Hub) Register(orgID string, client Subscriber) {
	h.register <- subscription{orgID: orgID, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(orgID string, client Subscriber) {
	h.unreg <- subscription{orgID: orgID, client: client}
}

// CloseOrg disconnects every subscriber of the organization. Called when
// the organization is deleted so its streams do not outlive it.
func (h *Hub) CloseOrg(orgID string) {
	h.closeOrg <- orgID
}

// Broadcast sends payload to every subscriber of the organization. The
// payload is dropped when the hub cannot keep up.
func (h *Hub) Broadcast(orgID string, payload []byte) {
	select {
	case h.broadcast <- message{orgID: orgID, payload: payload}:
	default:
		h.dropped.Add(1)
	}
}

// Dropped reports how many broadcasts have been discarded since start.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
