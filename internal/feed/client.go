package feed

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"ramzinex-alert-bot/internal/metrics"
	"ramzinex-alert-bot/internal/types"
)

// State of the push connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribing
	Streaming
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Streaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

// Sink receives every trade-derived price point.
type Sink interface {
	Put(p types.PricePoint)
}

// Catalog enumerates the instruments that can be subscribed.
type Catalog interface {
	Refresh(ctx context.Context) ([]types.Instrument, error)
}

type Config struct {
	URL string
	// ClientName is sent in the connect frame.
	ClientName string
	// Symbols restricts the subscription. Empty means every catalog instrument.
	Symbols          []string
	HandshakeTimeout time.Duration
	HeartbeatTimeout time.Duration
	BackoffMin       time.Duration
	BackoffMax       time.Duration
	// CatalogRefresh is how often the catalog is re-read while streaming.
	// Zero disables it.
	CatalogRefresh time.Duration
}

// Client keeps a subscription to the exchange's trade stream alive and
// writes every observed price to its sinks. It never gives up; Run only
// returns when its context ends.
type Client struct {
	cfg     Config
	catalog Catalog
	sinks   []Sink
	dialer  *websocket.Dialer
	state   atomic.Int32
	now     func() time.Time
}

func NewClient(cfg Config, catalog Catalog, sinks ...Sink) *Client {
	if cfg.ClientName == "" {
		cfg.ClientName = "ramzinex-alert-bot-" + uuid.NewString()
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 60 * time.Second
	}
	if cfg.BackoffMin <= 0 {
		cfg.BackoffMin = 3 * time.Second
	}
	if cfg.BackoffMax < cfg.BackoffMin {
		cfg.BackoffMax = cfg.BackoffMin
	}

	return &Client{
		cfg:     cfg,
		catalog: catalog,
		sinks:   sinks,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		now: time.Now,
	}
}

func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) != s {
		log.WithField("state", s).Info("Feed state changed")
	}
	metrics.FeedState.Set(float64(s))
}

// Run connects, subscribes and streams until ctx is cancelled, reconnecting
// with capped exponential backoff after every failure.
func (c *Client) Run(ctx context.Context) {
	backoff := c.cfg.BackoffMin
	for {
		streamed, err := c.session(ctx)
		c.setState(Disconnected)
		if ctx.Err() != nil {
			log.Info("Feed client stopped")
			return
		}
		if streamed {
			backoff = c.cfg.BackoffMin
		}

		metrics.FeedReconnects.Inc()
		log.WithError(err).WithField("backoff", backoff).Warn("Feed disconnected, reconnecting")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info("Feed client stopped")
			return
		case <-timer.C:
		}
		backoff = nextBackoff(backoff, c.cfg.BackoffMax)
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max || next <= 0 {
		return max
	}
	return next
}

func transportError(err error, msg string) error {
	return errors.Wrapf(types.ErrTransport, "%s: %v", msg, err)
}

// session runs one connection from dial to failure. streamed reports
// whether it reached the Streaming state.
func (c *Client) session(ctx context.Context) (streamed bool, err error) {
	c.setState(Connecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HandshakeTimeout)
	conn, _, err := c.dialer.DialContext(dialCtx, c.cfg.URL, nil)
	cancel()
	if err != nil {
		return false, transportError(err, "dial")
	}
	defer conn.Close()

	// a blocked read returns as soon as the connection is closed
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s := &session{
		client:   c,
		conn:     conn,
		channels: make(map[string]types.Instrument),
		pending:  make(map[int64]string),
	}

	if err := s.handshake(); err != nil {
		return false, err
	}

	c.setState(Subscribing)
	instruments, err := c.catalog.Refresh(ctx)
	if err != nil {
		return false, errors.Wrap(err, "enumerate catalog")
	}
	if err := s.subscribe(c.selectInstruments(instruments)); err != nil {
		return false, err
	}
	c.setState(Streaming)

	sessionCtx, cancelSession := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if c.cfg.CatalogRefresh > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.refreshLoop(sessionCtx)
		}()
	}

	err = s.stream()
	cancelSession()
	wg.Wait()
	return true, err
}

func (c *Client) selectInstruments(all []types.Instrument) []types.Instrument {
	if len(c.cfg.Symbols) == 0 {
		return all
	}

	bySymbol := make(map[string]types.Instrument, len(all))
	for _, inst := range all {
		bySymbol[inst.Symbol] = inst
	}

	selected := make([]types.Instrument, 0, len(c.cfg.Symbols))
	for _, symbol := range c.cfg.Symbols {
		inst, ok := bySymbol[strings.ToUpper(symbol)]
		if !ok {
			log.WithField("symbol", symbol).Warn("Configured symbol is not in the catalog, skipping")
			continue
		}
		selected = append(selected, inst)
	}
	return selected
}

type session struct {
	client *Client
	conn   *websocket.Conn

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu       sync.Mutex
	channels map[string]types.Instrument
	// subscribe commands awaiting a reply, by id
	pending map[int64]string
}

func (s *session) send(c command) error {
	b, err := encode(c)
	if err != nil {
		return errors.Wrap(err, "encode command")
	}
	return s.write(b)
}

func (s *session) write(b []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.client.cfg.HandshakeTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return transportError(err, "write")
	}
	return nil
}

func (s *session) read(timeout time.Duration) ([]*frame, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(timeout))
	_, msg, err := s.conn.ReadMessage()
	if err != nil {
		return nil, transportError(err, "read")
	}

	frames, bad := decodeFrames(msg)
	for _, b := range bad {
		metrics.FeedFrames.WithLabelValues(string(kindMalformed)).Inc()
		log.WithField("frame", string(b)).Warn("Dropping malformed feed frame")
	}
	return frames, nil
}

// handshake sends the connect frame and waits for its acknowledgement.
func (s *session) handshake() error {
	connectID := s.nextID.Add(1)
	if err := s.send(command{ID: connectID, Connect: &connectRequest{Name: s.client.cfg.ClientName}}); err != nil {
		return err
	}

	deadline := time.Now().Add(s.client.cfg.HandshakeTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return errors.Wrap(types.ErrTransport, "connect acknowledgement timed out")
		}
		frames, err := s.read(remaining)
		if err != nil {
			return err
		}
		for _, f := range frames {
			switch {
			case f.heartbeat:
				if err := s.write(heartbeat); err != nil {
					return err
				}
			case f.ID == connectID && f.Error != nil:
				return errors.Wrapf(types.ErrTransport, "connect rejected: %d %s", f.Error.Code, f.Error.Message)
			case f.ID == connectID:
				log.WithField("client", s.client.cfg.ClientName).Debug("Feed connect acknowledged")
				return nil
			}
		}
	}
}

// subscribe sends one subscribe frame per instrument not yet subscribed on
// this connection. Replies are handled by the stream loop.
func (s *session) subscribe(instruments []types.Instrument) error {
	for _, inst := range instruments {
		channel := inst.Channel()

		s.mu.Lock()
		if _, exists := s.channels[channel]; exists {
			s.mu.Unlock()
			continue
		}
		id := s.nextID.Add(1)
		s.channels[channel] = inst
		s.pending[id] = channel
		s.mu.Unlock()

		if err := s.send(command{ID: id, Subscribe: &subscribeRequest{Channel: channel}}); err != nil {
			return err
		}
		log.WithFields(log.Fields{"symbol": inst.Symbol, "channel": channel}).Debug("Subscribed")
	}
	return nil
}

// sync brings the subscriptions in line with a refreshed catalog. Market
// ids can be reassigned, so a subscribed channel whose id now belongs to
// another symbol is remapped, and channels that left the catalog are
// unsubscribed before new ones are added.
func (s *session) sync(instruments []types.Instrument) error {
	want := make(map[string]types.Instrument, len(instruments))
	for _, inst := range instruments {
		want[inst.Channel()] = inst
	}

	var stale []string
	s.mu.Lock()
	for channel, current := range s.channels {
		inst, ok := want[channel]
		switch {
		case !ok:
			delete(s.channels, channel)
			stale = append(stale, channel)
		case inst.Symbol != current.Symbol:
			log.WithFields(log.Fields{
				"channel": channel,
				"from":    current.Symbol,
				"to":      inst.Symbol,
			}).Warn("Market id reassigned, remapping channel")
			s.channels[channel] = inst
		}
	}
	s.mu.Unlock()

	for _, channel := range stale {
		if err := s.send(command{ID: s.nextID.Add(1), Unsubscribe: &subscribeRequest{Channel: channel}}); err != nil {
			return err
		}
		log.WithField("channel", channel).Debug("Unsubscribed")
	}
	return s.subscribe(instruments)
}

func (s *session) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.client.cfg.CatalogRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		instruments, err := s.client.catalog.Refresh(ctx)
		if err != nil {
			log.WithError(err).Warn("Periodic catalog refresh failed")
			continue
		}
		if err := s.sync(s.client.selectInstruments(instruments)); err != nil {
			log.WithError(err).Warn("Could not update subscriptions")
			return
		}
	}
}

func (s *session) stream() error {
	for {
		frames, err := s.read(s.client.cfg.HeartbeatTimeout)
		if err != nil {
			return err
		}
		for _, f := range frames {
			if err := s.handle(f); err != nil {
				return err
			}
		}
	}
}

func (s *session) handle(f *frame) error {
	kind := f.kind()
	metrics.FeedFrames.WithLabelValues(string(kind)).Inc()

	switch kind {
	case kindHeartbeat:
		return s.write(heartbeat)

	case kindReply:
		s.mu.Lock()
		channel, ok := s.pending[f.ID]
		delete(s.pending, f.ID)
		s.mu.Unlock()
		if ok && f.Error != nil {
			log.WithFields(log.Fields{
				"channel": channel,
				"code":    f.Error.Code,
			}).Warnf("Subscription rejected: %s", f.Error.Message)
		}

	case kindPush:
		s.mu.Lock()
		inst, ok := s.channels[f.Push.Channel]
		s.mu.Unlock()
		if !ok {
			log.WithField("channel", f.Push.Channel).Debug("Push for unknown channel")
			return nil
		}
		point, ok := f.Push.pricePoint(inst, s.client.now())
		if !ok {
			return nil
		}
		for _, sink := range s.client.sinks {
			sink.Put(point)
		}

	default:
		if log.IsLevelEnabled(log.DebugLevel) {
			log.Debugf("Unrecognised feed frame: %s", spew.Sdump(f))
		}
	}
	return nil
}
