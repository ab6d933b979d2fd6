// Package relay connects the assistant to a websocket relay. Remote peers
// send text messages through it; they are dispatched like spoken commands
// and the responses are sent back as replies.
package relay

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"voiceassistant/internal/dispatch"
	"voiceassistant/pkg/plugin"
	"voiceassistant/pkg/speech"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/net/proxy"
)

// ErrNotConnected is returned when sending while the relay is down.
var ErrNotConnected = errors.New("relay not connected")

const (
	DefaultQueueSize = 16
	DefaultBusyText  = "I'm busy right now, please try again in a moment."

	handshakeTimeout = 10 * time.Second
	writeTimeout     = 10 * time.Second
	minBackoff       = time.Second
	maxBackoff       = 30 * time.Second
)

// Router is the part of dispatch.Router the relay worker needs.
type Router interface {
	Route(ctx context.Context, utt plugin.Utterance, speaker speech.Speaker) dispatch.RouteResult
}

// Config configures a Channel.
type Config struct {
	URL   string
	Token string

	// Proxy is a SOCKS5 proxy, as host:port or socks5://host:port.
	Proxy string

	// QueueSize bounds messages waiting for the worker. Messages arriving
	// while it is full get BusyText as their reply.
	QueueSize int
	BusyText  string

	// EchoSpeech also speaks replies on the local speaker.
	EchoSpeech bool
}

// Option configures a Channel.
type Option func(*Channel)

// WithBackoff overrides the reconnect back-off bounds.
func WithBackoff(min, max time.Duration) Option {
	return func(c *Channel) {
		c.minBackoff = min
		c.maxBackoff = max
	}
}

// Channel is the supervised relay connection plus the worker that
// dispatches inbound messages. It implements plugin.Messenger.
type Channel struct {
	config     Config
	router     Router
	echo       speech.Speaker
	dialer     *websocket.Dialer
	logger     *zap.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	connMu  sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex // Protects websocket writes

	inbox chan Message

	received   atomic.Int64
	dropped    atomic.Int64
	replies    atomic.Int64
	posts      atomic.Int64
	reconnects atomic.Int64

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewChannel creates a relay channel. echo receives replies when
// config.EchoSpeech is set and may be nil otherwise.
func NewChannel(config Config, router Router, echo speech.Speaker, logger *zap.Logger, opts ...Option) (*Channel, error) {
	if config.URL == "" {
		return nil, errors.New("relay url is required")
	}
	if router == nil {
		return nil, errors.New("relay router is required")
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.BusyText == "" {
		config.BusyText = DefaultBusyText
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dialer, err := newDialer(config.Proxy)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		config:     config,
		router:     router,
		echo:       echo,
		dialer:     dialer,
		logger:     logger.Named("relay"),
		minBackoff: minBackoff,
		maxBackoff: maxBackoff,
		inbox:      make(chan Message, config.QueueSize),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func newDialer(proxyAddr string) (*websocket.Dialer, error) {
	d := &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	if proxyAddr == "" {
		return d, nil
	}

	var (
		pd  proxy.Dialer
		err error
	)
	if strings.Contains(proxyAddr, "://") {
		u, perr := url.Parse(proxyAddr)
		if perr != nil {
			return nil, fmt.Errorf("invalid relay proxy %q: %w", proxyAddr, perr)
		}
		pd, err = proxy.FromURL(u, proxy.Direct)
	} else {
		pd, err = proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	}
	if err != nil {
		return nil, fmt.Errorf("relay proxy: %w", err)
	}

	if cd, ok := pd.(proxy.ContextDialer); ok {
		d.NetDialContext = cd.DialContext
	} else {
		d.NetDial = pd.Dial
	}
	return d, nil
}

// Start launches the connection supervisor and the worker. They run until
// ctx is cancelled or Stop is called.
func (c *Channel) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.cancel != nil {
		return errors.New("relay already started")
	}
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(2)
	go c.supervise(ctx)
	go c.work(ctx)
	return nil
}

// Stop closes the connection and waits for the supervisor and worker.
func (c *Channel) Stop() {
	c.runMu.Lock()
	cancel := c.cancel
	c.runMu.Unlock()
	if cancel == nil {
		return
	}

	if conn := c.currentConn(); conn != nil {
		c.writeMu.Lock()
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
	}

	cancel()
	c.wg.Wait()
	c.logger.Info("Relay stopped")
}

// Connected reports whether the relay is connected and authenticated.
func (c *Channel) Connected() bool {
	return c.currentConn() != nil
}

// Stats returns traffic counters.
func (c *Channel) Stats() Stats {
	return Stats{
		Connected:  c.Connected(),
		Received:   c.received.Load(),
		Dropped:    c.dropped.Load(),
		Replies:    c.replies.Load(),
		Posts:      c.posts.Load(),
		Reconnects: c.reconnects.Load(),
	}
}

// Post pushes a message to the relay's peers.
func (c *Channel) Post(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return errors.New("relay post: empty text")
	}
	if err := c.send(Message{Type: TypePost, Text: text}); err != nil {
		return err
	}
	c.posts.Add(1)
	return nil
}

func (c *Channel) currentConn() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

func (c *Channel) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

// supervise keeps the connection up, backing off exponentially between
// failed attempts.
func (c *Channel) supervise(ctx context.Context) {
	defer c.wg.Done()

	backoff := c.minBackoff
	connectedOnce := false
	for {
		conn, err := c.connect(ctx)
		if err == nil {
			if connectedOnce {
				c.reconnects.Add(1)
			}
			connectedOnce = true
			backoff = c.minBackoff

			err = c.receive(ctx, conn)
			c.setConn(nil)
		}
		if ctx.Err() != nil {
			return
		}
		c.logger.Warn("Relay connection failed",
			zap.Error(err),
			zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// connect dials and authenticates.
func (c *Channel) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	if err := c.authenticate(conn); err != nil {
		conn.Close()
		return nil, err
	}

	c.setConn(conn)
	c.logger.Info("Connected to relay", zap.String("url", c.config.URL))
	return conn, nil
}

func (c *Channel) authenticate(conn *websocket.Conn) error {
	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})

	var authRequired Message
	if err := conn.ReadJSON(&authRequired); err != nil {
		return fmt.Errorf("failed to read auth_required: %w", err)
	}
	if authRequired.Type != TypeAuthRequired {
		return fmt.Errorf("expected auth_required, got %s", authRequired.Type)
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(Message{Type: TypeAuth, AccessToken: c.config.Token}); err != nil {
		return fmt.Errorf("failed to send auth: %w", err)
	}

	var authResponse Message
	if err := conn.ReadJSON(&authResponse); err != nil {
		return fmt.Errorf("failed to read auth response: %w", err)
	}
	switch authResponse.Type {
	case TypeAuthOK:
		return nil
	case TypeAuthInvalid:
		return errors.New("authentication failed: invalid token")
	default:
		return fmt.Errorf("expected auth_ok, got %s", authResponse.Type)
	}
}

// receive reads frames until the connection fails or ctx ends.
func (c *Channel) receive(ctx context.Context, conn *websocket.Conn) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}

		switch msg.Type {
		case TypeMessage:
			c.enqueue(msg)
		case TypePing:
			if err := c.send(Message{Type: TypePong, ID: msg.ID}); err != nil {
				c.logger.Warn("Failed to answer ping", zap.Error(err))
			}
		case TypePong:
		default:
			c.logger.Debug("Ignoring relay frame", zap.String("type", msg.Type))
		}
	}
}

func (c *Channel) enqueue(msg Message) {
	if strings.TrimSpace(msg.Text) == "" {
		c.logger.Debug("Ignoring empty relay message", zap.String("from", msg.From))
		return
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	c.received.Add(1)

	select {
	case c.inbox <- msg:
	default:
		c.dropped.Add(1)
		c.logger.Warn("Relay inbox full, dropping message",
			zap.String("id", msg.ID),
			zap.String("from", msg.From),
			zap.String("text", msg.Text))
		busy := Message{Type: TypeReply, ID: msg.ID, To: msg.From, Text: c.config.BusyText}
		if err := c.send(busy); err != nil {
			c.logger.Warn("Failed to send busy reply", zap.Error(err))
		}
	}
}

// work is the single worker that dispatches relay messages.
func (c *Channel) work(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.inbox:
			c.handle(ctx, msg)
		}
	}
}

func (c *Channel) handle(ctx context.Context, msg Message) {
	utt := plugin.Utterance{
		ID:         msg.ID,
		Text:       strings.TrimSpace(msg.Text),
		Source:     plugin.SourceRelay,
		Sender:     msg.From,
		ReceivedAt: time.Now(),
	}
	c.logger.Info("Relay message",
		zap.String("id", utt.ID),
		zap.String("from", utt.Sender),
		zap.String("text", utt.Text))

	c.router.Route(ctx, utt, &responder{channel: c, request: msg})
}

func (c *Channel) send(msg Message) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

// responder is the speaker handed to plugins for relay utterances. It
// replies to the sender and optionally echoes on the local speaker.
type responder struct {
	channel *Channel
	request Message
}

func (r *responder) Speak(ctx context.Context, text string, opts speech.SpeakOptions) error {
	c := r.channel
	err := c.send(Message{Type: TypeReply, ID: r.request.ID, To: r.request.From, Text: text})
	if err == nil {
		c.replies.Add(1)
	}

	if c.config.EchoSpeech && c.echo != nil {
		if echoErr := c.echo.Speak(ctx, text, opts); echoErr != nil {
			c.logger.Warn("Failed to echo reply", zap.Error(echoErr))
		}
	}
	return err
}
