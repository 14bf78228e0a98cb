// Package gateway is the WebSocket transport: it authenticates upgrades,
// runs a read and a write pump per connection and dispatches inbound
// events to the engine components.
package gateway

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/matheus3301/chatd/internal/auth"
	"github.com/matheus3301/chatd/internal/delivery"
	"github.com/matheus3301/chatd/internal/event"
	"github.com/matheus3301/chatd/internal/presence"
	"github.com/matheus3301/chatd/internal/reaction"
	"github.com/matheus3301/chatd/internal/receipt"
	"github.com/matheus3301/chatd/internal/typing"
)

// handlerTimeout bounds the storage work of one inbound event.
const handlerTimeout = 10 * time.Second

// Services are the components inbound events are dispatched to.
type Services struct {
	Presence  *presence.Publisher
	Typing    *typing.Tracker
	Router    *delivery.Router
	Reactions *reaction.Coordinator
	Receipts  *receipt.Synchronizer
}

type Options struct {
	SendBuffer      int
	MaxMessageBytes int64
	AllowedOrigins  []string
	CookieName      string
}

// Gateway accepts WebSocket connections.
type Gateway struct {
	svc      Services
	verifier *auth.Verifier
	opts     Options
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

func New(svc Services, verifier *auth.Verifier, opts Options, logger *zap.Logger) *Gateway {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = 64 << 10
	}
	if opts.CookieName == "" {
		opts.CookieName = "auth_token"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		svc:      svc,
		verifier: verifier,
		opts:     opts,
		logger:   logger,
		clients:  make(map[*Client]struct{}),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.opts.AllowedOrigins) == 0 {
		return true
	}
	if slices.Contains(g.opts.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}

// ServeHTTP verifies the session token and upgrades the connection. The
// user is not registered until it sends user_connected.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := auth.TokenFromRequest(r, g.opts.CookieName)
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	claims, err := g.verifier.Verify(token)
	if err != nil {
		g.logger.Debug("websocket unauthorized", zap.Error(err))
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := newClient(uuid.NewString(), claims.UserID, conn, g.opts.SendBuffer, g.logger)
	g.track(c)
	c.logger.Debug("websocket connected")

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		c.writePump()
	}()
	go func() {
		defer g.wg.Done()
		defer g.untrack(c)
		defer g.disconnect(c)
		c.readPump(g.opts.MaxMessageBytes, func(in event.Inbound) { g.dispatch(c, in) })
	}()
}

func (g *Gateway) track(c *Client) {
	g.mu.Lock()
	g.clients[c] = struct{}{}
	g.mu.Unlock()
}

func (g *Gateway) untrack(c *Client) {
	g.mu.Lock()
	delete(g.clients, c)
	g.mu.Unlock()
}

// disconnect runs once the read pump exits. The presence publisher's
// offline hook clears typing state, and only when this was still the
// user's current connection.
func (g *Gateway) disconnect(c *Client) {
	if !c.registered {
		return
	}
	g.svc.Presence.Disconnect(context.Background(), c.userID, c.id)
	c.logger.Debug("websocket disconnected")
}

// Shutdown closes every connection and waits for their pumps to exit.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	for c := range g.clients {
		c.Close()
	}
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connections returns the number of open sockets, registered or not.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}
