package client

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/warp/card-wallet/generic"
	"github.com/warp/card-wallet/wallet"
)

const streamReadLimit = 4 << 20

// SnapshotFunc is called after each snapshot has been applied.
type SnapshotFunc func(holdings []wallet.Holding, discarded []wallet.DiscardedChange)

// Subscribe connects to the user's snapshot stream and applies every
// snapshot to state until ctx is done or the connection drops. Pending
// changes the stream gives up on are logged as discarded.
func (c *Client) Subscribe(ctx context.Context, state *wallet.State, onSnapshot SnapshotFunc) error {
	header := http.Header{}
	if c.user != "" {
		header.Set(UserHeader, string(c.user))
	}

	dialCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	// websocket.Dial rejects clients with a Timeout; the dial context bounds it
	conn, _, err := websocket.Dial(dialCtx, c.streamURL(), &websocket.DialOptions{HTTPHeader: header})
	cancel()
	if err != nil {
		return transportError("stream", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "unsubscribe")
	conn.SetReadLimit(streamReadLimit)

	logger := slog.Default().With("component", "stream", "user", c.user)
	logger.Debug("subscribed")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			return &generic.NetworkError{Op: "stream", Message: "connection lost", Retryable: true, Err: err}
		}

		holdings, err := wallet.DecodeSnapshot(data)
		if err != nil {
			logger.Warn("skipping malformed snapshot", "error", err)
			continue
		}
		discarded := state.ApplySnapshot(holdings)
		for _, d := range discarded {
			logger.Warn("pending change discarded", "change", d.Error())
		}
		if onSnapshot != nil {
			onSnapshot(holdings, discarded)
		}
	}
}

// SubscribeWithRetry keeps a subscription alive, reconnecting with
// exponential backoff after retryable failures.
func (c *Client) SubscribeWithRetry(ctx context.Context, state *wallet.State, onSnapshot SnapshotFunc) error {
	backoff := 500 * time.Millisecond
	for {
		err := c.Subscribe(ctx, state, onSnapshot)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil && !generic.IsRetryable(err) {
			return err
		}
		slog.Warn("stream disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func (c *Client) streamURL() string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/wallet/stream/"
}

var errNoSnapshot = errors.New("stream closed before first snapshot")

// WaitForSnapshot applies the first snapshot from the stream and returns.
func (c *Client) WaitForSnapshot(ctx context.Context, state *wallet.State) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	got := false
	err := c.Subscribe(ctx, state, func([]wallet.Holding, []wallet.DiscardedChange) {
		got = true
		cancel()
	})
	if err != nil {
		return err
	}
	if !got {
		return errNoSnapshot
	}
	return nil
}
