// Package relay fans room broadcasts out to every server instance over
// Redis pub/sub, so members connected to different instances still see each
// other's events.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/vedran77/huddle/internal/metrics"
	"golang.org/x/sync/errgroup"
)

const (
	queueSize = 1024

	minResubscribeDelay = 100 * time.Millisecond
	maxResubscribeDelay = 10 * time.Second
)

// Receiver takes payloads published by other instances.
type Receiver interface {
	DeliverRemote(roomID string, data []byte)
}

type envelope struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room"`
	Data   json.RawMessage `json:"data"`
}

type Relay struct {
	client  *redis.Client
	channel string
	origin  string
	out     chan envelope
	log     zerolog.Logger
}

// New connects to Redis and checks the connection.
func New(ctx context.Context, redisURL, channel string, log zerolog.Logger) (*Relay, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return newRelay(client, channel, log), nil
}

func newRelay(client *redis.Client, channel string, log zerolog.Logger) *Relay {
	origin := uuid.NewString()
	return &Relay{
		client:  client,
		channel: channel,
		origin:  origin,
		out:     make(chan envelope, queueSize),
		log:     log.With().Str("component", "relay").Str("origin", origin).Logger(),
	}
}

// Forward queues a broadcast for publishing. It never blocks; when the queue
// is full the broadcast is dropped for remote instances only.
func (r *Relay) Forward(roomID string, data []byte) {
	select {
	case r.out <- envelope{Origin: r.origin, Room: roomID, Data: data}:
	default:
		metrics.RelayDropped.Inc()
		r.log.Warn().Str("room", roomID).Msg("relay queue full, dropping broadcast")
	}
}

// Run publishes queued broadcasts and delivers remote ones to recv until ctx
// is cancelled. A lost subscription is logged and re-established; while it is
// down the hub keeps delivering locally.
func (r *Relay) Run(ctx context.Context, recv Receiver) error {
	delay := minResubscribeDelay
	for {
		subscribed, err := r.runOnce(ctx, recv)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			delay = minResubscribeDelay
		}
		r.log.Warn().Err(err).Dur("retry_in", delay).Msg("relay subscription lost")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
		delay = min(delay*2, maxResubscribeDelay)
	}
}

// runOnce serves one subscription until it fails. It reports whether the
// subscription was established at all.
func (r *Relay) runOnce(ctx context.Context, recv Receiver) (bool, error) {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribing to %s: %w", r.channel, err)
	}
	r.log.Info().Str("channel", r.channel).Msg("relay subscribed")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.publishLoop(ctx) })
	g.Go(func() error { return r.receiveLoop(ctx, sub.Channel(), recv) })
	return true, g.Wait()
}

func (r *Relay) Close() error {
	return r.client.Close()
}

func (r *Relay) publishLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env := <-r.out:
			payload, err := json.Marshal(env)
			if err != nil {
				r.log.Error().Err(err).Str("room", env.Room).Msg("encoding relay envelope")
				continue
			}
			if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.Error().Err(err).Str("room", env.Room).Msg("publishing broadcast")
				continue
			}
			metrics.RelayPublished.Inc()
		}
	}
}

func (r *Relay) receiveLoop(ctx context.Context, ch <-chan *redis.Message, recv Receiver) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return errors.New("relay subscription closed")
			}
			r.handle(msg.Payload, recv)
		}
	}
}

// handle delivers one published envelope, skipping the ones this instance
// sent itself.
func (r *Relay) handle(payload string, recv Receiver) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Warn().Err(err).Msg("discarding malformed relay payload")
		return
	}
	if env.Origin == r.origin || env.Room == "" {
		return
	}
	metrics.RelayReceived.Inc()
	recv.DeliverRemote(env.Room, env.Data)
}
