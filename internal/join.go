package internal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
	"golang.org/x/exp/slog"

	"nhooyr.io/websocket"
)

const (
	DefaultPingInterval = 45 * time.Second
	DefaultWriteTimeout = 5 * time.Second
	DefaultQueueSize    = 64
)

type JoinOptions struct {
	OriginPatterns []string
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	QueueSize      int
}

func (o JoinOptions) withDefaults() JoinOptions {
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}

	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}

	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}

	return o
}

// socket is the relay's handle on one websocket. Send only ever queues; the
// writer loop in JoinRoute owns the actual socket writes.
type socket struct {
	id       string
	messages chan []byte
	mu       sync.Mutex
	closed   bool
}

func newSocket(id string, size int) *socket {
	return &socket{
		id:       id,
		messages: make(chan []byte, size),
	}
}

func (s *socket) ID() string {
	return s.id
}

func (s *socket) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *socket) Send(payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	select {
	case s.messages <- []byte(payload):
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *socket) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func JoinRoute(relay *Relay, logger *slog.Logger, tracker Tracker, opts JoinOptions) http.HandlerFunc {
	opts = opts.withDefaults()

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		kid, err := ksuid.NewRandom()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		id := kid.String()
		log := logger.With(slog.String("id", id))

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Error("failed to accept", err)
			return
		}

		//goland:noinspection GoUnhandledErrorResult
		defer conn.Close(websocket.StatusNormalClosure, "")

		log.Info("joined", slog.String("remote", r.RemoteAddr))

		s := newSocket(id, opts.QueueSize)

		if err := tracker.Join(ctx, id); err != nil {
			log.Error("failed to record presence", err)
		}

		defer func() {
			s.shutdown()
			relay.Drop(context.Background(), s)
			if err := tracker.Leave(context.Background(), id); err != nil {
				log.Error("failed to cleanup", err)
			}
		}()

		go func() {
			defer cancel()
			for {
				_, b, err := conn.Read(ctx)
				if err != nil {
					log.Debug("read loop ended", slog.String("error", err.Error()))
					return
				}

				if err := tracker.Count(ctx, id, "recv"); err != nil {
					log.Error("failed to update received messages stats", err)
				}

				relay.Handle(ctx, s, string(b))
			}
		}()

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(opts.PingInterval):
					if err := conn.Ping(ctx); err != nil {
						log.Error("failed to ping", err)
						cancel()
						return
					}

					if err := tracker.Touch(ctx, id); err != nil {
						log.Error("failed extend exp", err)
					}
				}
			}
		}()

		for {
			select {
			case <-ctx.Done():
				log.Info("left")
				return
			case b := <-s.messages:
				wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
				err := conn.Write(wctx, websocket.MessageText, b)
				wcancel()

				if err != nil {
					log.Error("failed to write message", err)
					return
				}

				if err := tracker.Count(ctx, id, "sent"); err != nil {
					log.Error("failed to update sent messages stats", err)
				}
			}
		}
	}
}
