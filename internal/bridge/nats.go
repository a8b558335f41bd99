package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"

	"github.com/and2long/tcm/bridge/internal/dispatch"
)

// QueueGroup load-balances requests when several bridges share a subject.
const QueueGroup = "tcm-bridge"

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	Servers  string // comma-separated server URLs
	NKeySeed string // user seed, empty for no auth
	Subject  string // subject prefix, requests arrive on <Subject>.<method>
	Name     string // connection name shown by the server
}

// NATSServer serves dispatch requests over NATS request/reply.
type NATSServer struct {
	config  NATSConfig
	handler Handler
	logger  *slog.Logger

	mu     sync.Mutex
	nc     *nats.Conn
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

// NewNATSServer creates an unconnected NATS transport.
func NewNATSServer(cfg NATSConfig, handler Handler, logger *slog.Logger) *NATSServer {
	return &NATSServer{
		config:  cfg,
		handler: handler,
		logger:  logger.With(slog.String("component", "nats")),
		ctx:     context.Background(),
	}
}

// authOption returns the NKey option for seed, or nil when seed is empty.
func authOption(seed string) (nats.Option, error) {
	if seed == "" {
		return nil, nil
	}
	kp, err := nkeys.FromSeed([]byte(seed))
	if err != nil {
		return nil, fmt.Errorf("invalid nkey seed: %w", err)
	}
	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}
	return nats.Nkey(pub, kp.Sign), nil
}

// Start connects and subscribes to <Subject>.*. Requests run with ctx's
// values but are cancelled only by Shutdown.
func (n *NATSServer) Start(ctx context.Context) error {
	opts := []nats.Option{
		nats.Name(n.config.Name),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
		nats.PingInterval(30 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			n.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			n.logger.Info("NATS reconnected", "server", nc.ConnectedUrl())
		}),
	}
	auth, err := authOption(n.config.NKeySeed)
	if err != nil {
		return err
	}
	if auth != nil {
		opts = append(opts, auth)
	}

	nc, err := nats.Connect(n.config.Servers, opts...)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}

	sub, err := nc.QueueSubscribe(n.config.Subject+".*", QueueGroup, n.onMessage)
	if err != nil {
		nc.Close()
		return fmt.Errorf("nats subscribe: %w", err)
	}

	reqCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	n.mu.Lock()
	n.nc, n.sub, n.ctx, n.cancel = nc, sub, reqCtx, cancel
	n.mu.Unlock()

	n.logger.Info("NATS connected", "server", nc.ConnectedUrl(), "subject", n.config.Subject+".*")
	return nil
}

func (n *NATSServer) onMessage(msg *nats.Msg) {
	n.mu.Lock()
	ctx := n.ctx
	n.mu.Unlock()

	reply := n.process(ctx, msg.Subject, msg.Data)
	if msg.Reply == "" {
		return
	}
	if err := msg.Respond(reply); err != nil {
		n.logger.Warn("failed to respond", "subject", msg.Subject, "error", err)
	}
}

// process decodes one message and returns the encoded response. The method
// comes from the subject; a method in the body must agree with it.
func (n *NATSServer) process(ctx context.Context, subject string, data []byte) []byte {
	var resp dispatch.Response

	method, ok := methodFromSubject(n.config.Subject, subject)
	var req dispatch.Request
	switch {
	case !ok:
		resp = dispatch.Response{Error: fmt.Sprintf("unexpected subject %q", subject)}
	case len(data) > 0 && json.Unmarshal(data, &req) != nil:
		resp = dispatch.Response{Error: "invalid request body"}
	case req.Method != "" && req.Method != method:
		resp = dispatch.Response{Error: fmt.Sprintf("method %q does not match subject", req.Method)}
	default:
		req.Method = method
		resp = n.handler.Handle(ctx, req)
	}

	out, err := json.Marshal(&resp)
	if err != nil {
		out = []byte(`{"success":false,"error":"failed to encode response"}`)
	}
	return out
}

// Publish sends v as JSON on <Subject>.events.<kind>. It is a no-op before
// Start.
func (n *NATSServer) Publish(kind string, v any) error {
	n.mu.Lock()
	nc := n.nc
	n.mu.Unlock()
	if nc == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return nc.Publish(n.config.Subject+".events."+kind, data)
}

// Shutdown drains the subscription, letting handlers in flight finish until
// ctx is done, and closes the connection.
func (n *NATSServer) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	nc, cancel := n.nc, n.cancel
	n.mu.Unlock()
	if nc == nil {
		return nil
	}
	defer cancel()

	closed := make(chan struct{})
	nc.SetClosedHandler(func(*nats.Conn) { close(closed) })
	if err := nc.Drain(); err != nil {
		nc.Close()
		return fmt.Errorf("nats drain: %w", err)
	}

	select {
	case <-closed:
		return nil
	case <-ctx.Done():
		cancel()
		nc.Close()
		return ctx.Err()
	}
}

// methodFromSubject extracts <method> from <prefix>.<method>.
func methodFromSubject(prefix, subject string) (string, bool) {
	method, ok := strings.CutPrefix(subject, prefix+".")
	if !ok || method == "" || strings.Contains(method, ".") {
		return "", false
	}
	return method, true
}
