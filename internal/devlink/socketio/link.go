// Package socketio implements devlink.Link over a socket.io connection to
// the firmware bridge that fronts one microcontroller. A command is
// dispatched as a "command" event carrying a token; the bridge answers with
// a "command:done" event carrying the same token and the terminal status.
package socketio

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/crucible-lab/crucible/internal/ctxlog"
	"github.com/crucible-lab/crucible/internal/devlink"
)

// completion is one terminal report from the bridge.
type completion struct {
	status string
	detail string
}

// Link is one socket.io-backed device link.
type Link struct {
	name    string
	manager *socket.Manager
	io      *socket.Socket

	mu      sync.Mutex
	pending map[string]chan completion
}

// connectTimeout bounds the initial connection handshake.
const connectTimeout = 10 * time.Second

// Dial connects to the bridge and subscribes to completion events.
func Dial(ctx context.Context, name, rawURL, namespace string) (*Link, error) {
	logger := ctxlog.FromContext(ctx).With("link", name, "url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("link %s: parse URL: %w", name, err)
	}
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	opts.SetTransports(types.NewSet(transports.WebSocket))

	l := &Link{
		name:    name,
		pending: make(map[string]chan completion),
	}
	l.manager = socket.NewManager(baseURL, opts)
	l.io = l.manager.Socket(namespace, opts)

	connected := make(chan error, 1)
	l.io.On(types.EventName("connect"), func(...any) {
		logger.Info("Device link connected.", "sid", l.io.Id())
		select {
		case connected <- nil:
		default:
		}
	})
	l.io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if err, ok := errs[0].(error); ok {
				select {
				case connected <- err:
				default:
				}
			}
		}
	})
	l.io.On(types.EventName("command:done"), func(data ...any) {
		l.deliver(data...)
	})

	l.io.Connect()
	select {
	case err := <-connected:
		if err != nil {
			l.io.Disconnect()
			return nil, fmt.Errorf("link %s: connect: %w", name, err)
		}
	case <-time.After(connectTimeout):
		l.io.Disconnect()
		return nil, fmt.Errorf("link %s: timed out waiting for initial connection", name)
	case <-ctx.Done():
		l.io.Disconnect()
		return nil, ctx.Err()
	}
	return l, nil
}

// Name returns the stable logical device name.
func (l *Link) Name() string { return l.name }

// Dispatch emits the named command and registers its completion channel.
func (l *Link) Dispatch(ctx context.Context, command string, args map[string]float64) (devlink.Handle, error) {
	token := uuid.NewString()
	ch := make(chan completion, 1)
	l.mu.Lock()
	l.pending[token] = ch
	l.mu.Unlock()

	payload := map[string]any{
		"token":   token,
		"command": command,
		"args":    args,
	}
	l.io.Emit("command", payload)
	return devlink.Handle{Token: token}, nil
}

// Await blocks until the bridge reports the command terminal, or the
// bounded wait elapses.
func (l *Link) Await(ctx context.Context, h devlink.Handle, timeout time.Duration) (devlink.AwaitStatus, string) {
	l.mu.Lock()
	ch, ok := l.pending[h.Token]
	l.mu.Unlock()
	if !ok {
		return devlink.Error, fmt.Sprintf("unknown command token %q", h.Token)
	}
	defer l.drop(h.Token)

	select {
	case c := <-ch:
		if c.status == "ok" {
			return devlink.Completed, c.detail
		}
		return devlink.Error, c.detail
	case <-time.After(timeout):
		return devlink.Timeout, fmt.Sprintf("no completion within %s", timeout)
	case <-ctx.Done():
		return devlink.Timeout, ctx.Err().Error()
	}
}

// Close disconnects from the bridge.
func (l *Link) Close() error {
	l.io.Disconnect()
	return nil
}

// deliver routes a "command:done" event to its waiting dispatch.
func (l *Link) deliver(data ...any) {
	if len(data) == 0 {
		return
	}
	payload, ok := data[0].(map[string]any)
	if !ok {
		return
	}
	token, _ := payload["token"].(string)
	status, _ := payload["status"].(string)
	detail, _ := payload["detail"].(string)

	l.mu.Lock()
	ch, ok := l.pending[token]
	l.mu.Unlock()
	if !ok {
		// Completion for a command nobody is waiting on anymore.
		return
	}
	select {
	case ch <- completion{status: status, detail: detail}:
	default:
	}
}

// drop forgets a pending token.
func (l *Link) drop(token string) {
	l.mu.Lock()
	delete(l.pending, token)
	l.mu.Unlock()
}
