// Package auth gates the console behind the shared password endpoint.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ThomasChan/Farm-Land/internal/logger"
	"github.com/ThomasChan/Farm-Land/internal/metrics"
	"github.com/ThomasChan/Farm-Land/internal/upstream"
)

// OpLogin labels auth calls in metrics.
const OpLogin = "login"

// Auth errors
var (
	ErrEmptyPassword = errors.New("password is empty")
	ErrAuthRejected  = errors.New("password rejected")
	ErrTransport     = errors.New("auth endpoint unreachable")
)

// loginRequest is the body the password endpoint expects.
type loginRequest struct {
	Body string `json:"body"`
}

// Gate holds the authenticated flag of one screen. Nothing is persisted:
// a new Gate always starts logged out.
type Gate struct {
	client   *upstream.Client
	log      *logger.Logger
	endpoint string
	mu       sync.Mutex
	authed   bool
}

// NewGate creates a gate posting to endpoint.
func NewGate(client *upstream.Client, endpoint string, log *logger.Logger) *Gate {
	return &Gate{
		client:   client,
		endpoint: endpoint,
		log:      log.WithComponent("auth"),
	}
}

// Login submits password. Only an HTTP 200 authenticates; any other answer
// or a transport failure leaves the gate logged out. A blank password sends
// nothing.
func (g *Gate) Login(ctx context.Context, password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrEmptyPassword
	}

	start := time.Now()
	resp, err := g.client.PostJSON(ctx, g.endpoint, loginRequest{Body: password})
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrTransport, err)
	} else if resp.Status != http.StatusOK {
		err = fmt.Errorf("%w: status %d", ErrAuthRejected, resp.Status)
	}
	metrics.ObserveUpstream(OpLogin, float64(time.Since(start).Milliseconds()), err)

	g.mu.Lock()
	g.authed = err == nil
	g.mu.Unlock()

	if err != nil {
		g.log.Warn("Login failed", map[string]interface{}{"error": err.Error()})
		return err
	}
	g.log.Info("Login succeeded", nil)
	return nil
}

// Authenticated reports the flag.
func (g *Gate) Authenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authed
}

// Logout clears the flag.
func (g *Gate) Logout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authed = false
}
