package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/warp/card-wallet/generic"
)

// =============================================================================
// SNAPSHOT STREAM - Push full wallet snapshots over a websocket
// =============================================================================
//
// Each message is a JSON array of active card documents for one user (see
// wallet.EncodeSnapshot). A slow subscriber only ever holds the newest
// snapshot: older undelivered ones are dropped, since each message
// supersedes the last.

const wsWriteTimeout = 10 * time.Second

type subscriber struct {
	ch chan []byte
}

// Hub fans snapshots out to the subscribers of each user.
type Hub struct {
	mu   sync.Mutex
	subs map[generic.UserID]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[generic.UserID]map[*subscriber]struct{})}
}

func (h *Hub) subscribe(user generic.UserID) (*subscriber, func()) {
	sub := &subscriber{ch: make(chan []byte, 1)}

	h.mu.Lock()
	if h.subs[user] == nil {
		h.subs[user] = make(map[*subscriber]struct{})
	}
	h.subs[user][sub] = struct{}{}
	h.mu.Unlock()

	return sub, func() {
		h.mu.Lock()
		delete(h.subs[user], sub)
		if len(h.subs[user]) == 0 {
			delete(h.subs, user)
		}
		h.mu.Unlock()
	}
}

// Publish delivers a snapshot to every subscriber of user.
func (h *Hub) Publish(user generic.UserID, snapshot []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[user] {
		offer(sub.ch, snapshot)
	}
	return len(h.subs[user])
}

// Users returns the users with at least one live subscriber.
func (h *Hub) Users() []generic.UserID {
	h.mu.Lock()
	defer h.mu.Unlock()

	users := make([]generic.UserID, 0, len(h.subs))
	for u := range h.subs {
		users = append(users, u)
	}
	return users
}

// Subscribers counts live subscribers across users.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}

// offer replaces any undelivered snapshot with the new one.
func offer(ch chan []byte, snapshot []byte) {
	for {
		select {
		case ch <- snapshot:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Stream upgrades to a websocket and pushes the user's snapshot on connect
// and after every change.
// GET /wallet/stream/
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	user := h.userID(r)
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns()})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	sub, cancel := h.Hub.subscribe(user)
	defer cancel()
	h.Metrics.setSubscribers(h.Hub.Subscribers())
	defer func() { h.Metrics.setSubscribers(h.Hub.Subscribers()) }()

	// Clients never send; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	initial, err := h.snapshot(ctx, user)
	if err != nil {
		h.Logger.Error("stream initial snapshot failed", "user", user, "error", err)
		conn.Close(websocket.StatusInternalError, "snapshot unavailable")
		return
	}
	offer(sub.ch, initial)

	h.Logger.Debug("stream subscribed", "user", user)
	if err := pump(ctx, conn, sub.ch); err != nil && websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
		h.Logger.Warn("stream write failed", "user", user, "error", err)
	}
}

func pump(ctx context.Context, conn *websocket.Conn, updates <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-updates:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
