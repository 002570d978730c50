// Package eventlog bridges Postgres LISTEN/NOTIFY channels into an
// in-process callback, so any number of components (the dashboard
// broadcaster, an audit logger) can react to order/fill/risk events
// without polling the database.
package eventlog

import (
	"context"
	"log"
	"time"

	"github.com/lib/pq"
)

// Channels are the default set of Postgres NOTIFY channels a Listener
// subscribes to. No package in this module issues NOTIFY on them; the
// payloads come from whatever writer runs `NOTIFY <channel>, '<json>'`
// against the database.
const (
	ChannelOrderFilled    = "order_filled"
	ChannelPositionOpened = "position_opened"
	ChannelTradeClosed    = "trade_closed"
	ChannelRiskTripped    = "risk_tripped"
)

var defaultChannels = []string{
	ChannelOrderFilled,
	ChannelPositionOpened,
	ChannelTradeClosed,
	ChannelRiskTripped,
}

// Notification is one LISTEN/NOTIFY payload delivered to a subscriber.
type Notification struct {
	Channel string
	Payload string
}

// Listener subscribes to Postgres notification channels and forwards every
// notification to a set of subscriber callbacks, reconnecting with
// exponential-style backoff (bounded by pq.NewListener's own min/max retry
// delay) on connection loss.
type Listener struct {
	dbURL    string
	channels []string
	logger   *log.Logger
	subs     []func(Notification)
	shutdown chan struct{}
}

// NewListener creates a Listener for the default channel set. Pass
// channels to override which channels are subscribed.
func NewListener(dbURL string, logger *log.Logger, channels ...string) *Listener {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	if len(channels) == 0 {
		channels = defaultChannels
	}
	return &Listener{
		dbURL:    dbURL,
		channels: channels,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

// Subscribe registers fn to be called for every notification received
// while the listener runs. Must be called before Start.
func (l *Listener) Subscribe(fn func(Notification)) {
	l.subs = append(l.subs, fn)
}

// Start begins listening in a background goroutine. It returns
// immediately; call Stop or cancel ctx to terminate.
func (l *Listener) Start(ctx context.Context) {
	go l.listenLoop(ctx)
}

// Stop terminates the listen loop.
func (l *Listener) Stop() {
	close(l.shutdown)
}

func (l *Listener) listenLoop(ctx context.Context) {
	defer l.logger.Println("eventlog: listener shutting down")

	const minRetryDelay = 100 * time.Millisecond
	const maxRetryDelay = 10 * time.Second
	retryDelay := minRetryDelay

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		default:
		}

		listener := pq.NewListener(l.dbURL, minRetryDelay, maxRetryDelay, func(_ pq.ListenerEventType, err error) {
			if err != nil {
				l.logger.Printf("eventlog: %v", err)
			}
		})

		if err := l.subscribeChannels(listener); err != nil {
			l.logger.Printf("eventlog: subscribe channels: %v", err)
			listener.Close()
			retryDelay = maxRetryDelay
			time.Sleep(retryDelay)
			continue
		}
		retryDelay = minRetryDelay

		if err := l.handle(ctx, listener); err != nil {
			l.logger.Printf("eventlog: %v", err)
		}
		listener.Close()

		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		default:
			time.Sleep(retryDelay)
		}
	}
}

func (l *Listener) subscribeChannels(listener *pq.Listener) error {
	for _, ch := range l.channels {
		if err := listener.Listen(ch); err != nil {
			return err
		}
		l.logger.Printf("eventlog: listening on channel %q", ch)
	}
	return nil
}

func (l *Listener) handle(ctx context.Context, listener *pq.Listener) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.shutdown:
			return nil
		case n := <-listener.Notify:
			if n == nil {
				return nil
			}
			notif := Notification{Channel: n.Channel, Payload: n.Extra}
			for _, fn := range l.subs {
				fn(notif)
			}
		}
	}
}
