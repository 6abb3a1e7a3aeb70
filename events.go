package main

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/factory_backend/config"
)

// EventRelay fans journal events from Redis out to connected SSE clients.
// Slow clients get events dropped rather than blocking the relay.
type EventRelay struct {
	logger *logrus.Logger
	mu     sync.Mutex
	subs   map[chan string]struct{}
}

func NewEventRelay(logger *logrus.Logger) *EventRelay {
	return &EventRelay{
		logger: logger,
		subs:   make(map[chan string]struct{}),
	}
}

func (r *EventRelay) subscribe() chan string {
	ch := make(chan string, 16)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch
}

func (r *EventRelay) unsubscribe(ch chan string) {
	r.mu.Lock()
	delete(r.subs, ch)
	r.mu.Unlock()
}

func (r *EventRelay) broadcast(payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- payload:
		default:
			// client is not keeping up; the poller covers the gap
		}
	}
}

func (r *EventRelay) Run(ctx context.Context) {
	channel := config.JournalEventsChannel()
	for {
		rdb := config.GetRedisDB()
		if rdb == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		sub := rdb.Subscribe(ctx, channel)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			config.LogError(r.logger, "server", "EventRelay.Run", "subscribe", channel, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		r.logger.WithFields(logrus.Fields{
			"field":   "events",
			"channel": channel,
		}).Info("event relay subscribed")
		msgs := sub.Channel()
	consume:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-msgs:
				if !ok {
					_ = sub.Close()
					break consume
				}
				r.broadcast(msg.Payload)
			}
		}
	}
}

// Handler streams journal events to one client. A heartbeat comment keeps
// proxies from closing idle connections.
func (r *EventRelay) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ch := r.subscribe()
		defer r.unsubscribe(ch)

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		heartbeat := time.NewTicker(25 * time.Second)
		defer heartbeat.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case <-c.Request.Context().Done():
				return false
			case payload := <-ch:
				c.SSEvent("journal", payload)
				return true
			case <-heartbeat.C:
				c.SSEvent("ping", time.Now().Unix())
				return true
			}
		})
	}
}
