// Package bus publishes chat server events (presence changes, room traffic)
// to Redis for external consumers, and carries operator announcements back
// in. The bus is optional: a nil *Service is single-instance mode and every
// method degrades to a no-op.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/chatwire/chatserver/internal/v1/metrics"
)

// Event is the envelope published for every room-level occurrence.
type Event struct {
	Room     string `json:"room,omitempty"`
	Kind     string `json:"kind"`               // "user_joined", "user_left", "chat", "user_entered", "user_departed"
	Username string `json:"username,omitempty"`
	Addr     string `json:"addr,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Announcement is an operator message consumed from the announce channel and
// broadcast to a room as a server-originated frame.
type Announcement struct {
	Room string `json:"room"`
	Text string `json:"text"`
}

// announceChannel is where operators publish Announcements.
const announceChannel = "chat:announce"

// Service handles all interaction with Redis.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService creates a Redis connection and verifies it immediately.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("redis").Set(stateVal)
		},
	}

	slog.Info("Connected to Redis event bus", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// Publish emits one event on the room's channel. Channel schema:
// "chat:room:{name}". Publish failures degrade gracefully: an open breaker
// drops the event rather than disturbing the session that produced it.
func (s *Service) Publish(ctx context.Context, event Event) error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(event)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event: %w", err)
		}

		channel := fmt.Sprintf("chat:room:%s", event.Room)
		err = s.client.Publish(ctx, channel, data).Err()
		if err != nil {
			metrics.RedisOperationsTotal.WithLabelValues("publish", "error").Inc()
			return nil, err
		}
		metrics.RedisOperationsTotal.WithLabelValues("publish", "ok").Inc()
		return nil, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Redis circuit breaker open: dropping event", "room", event.Room, "kind", event.Kind)
			return nil // Graceful degradation: drop event, don't crash caller
		}
		slog.Error("Redis publish failed", "room", event.Room, "kind", event.Kind, "error", err)
		return err
	}

	return nil
}

// SubscribeAnnouncements starts a background goroutine that listens for
// operator announcements and hands them to the application layer.
func (s *Service) SubscribeAnnouncements(ctx context.Context, wg *sync.WaitGroup, handler func(Announcement)) {
	if s == nil || s.client == nil {
		return // Single-instance mode, no Redis available
	}

	pubsub := s.client.Subscribe(ctx, announceChannel)

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}

		slog.Info("Subscribed to Redis channel", "channel", announceChannel)

		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Warn("Redis subscription channel closed", "channel", announceChannel)
					return
				}

				var ann Announcement
				if err := json.Unmarshal([]byte(msg.Payload), &ann); err != nil {
					slog.Error("Failed to unmarshal announcement", "error", err, "raw", msg.Payload)
					continue
				}

				handler(ann)
			}
		}
	}()
}

// Ping checks Redis connectivity using the PING command.
// Used by health checks to verify Redis is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close gracefully shuts down the Redis connection.
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil // Single-instance mode, no Redis available
	}
	return s.client.Close()
}
