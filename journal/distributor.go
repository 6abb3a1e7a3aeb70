package journal

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/factory_backend/config"
)

// Distributor subscribes to the journal event channel and feeds every decoded
// event into the store. Malformed payloads are logged and dropped; the poller
// covers anything a client misses.
type Distributor struct {
	logger  *logrus.Logger
	rdb     *redis.Client
	store   *Store
	channel string
}

func NewDistributor(logger *logrus.Logger, rdb *redis.Client, store *Store) *Distributor {
	return &Distributor{
		logger:  logger,
		rdb:     rdb,
		store:   store,
		channel: config.JournalEventsChannel(),
	}
}

func (d *Distributor) Run(ctx context.Context) error {
	sub := d.rdb.Subscribe(ctx, d.channel)
	defer func() { _ = sub.Close() }()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	d.logger.WithFields(logrus.Fields{
		"module":  "journal",
		"channel": d.channel,
	}).Info("subscribed to journal events")
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			d.Deliver([]byte(msg.Payload))
		}
	}
}

// Deliver decodes one raw event payload and hands it to the store.
func (d *Distributor) Deliver(payload []byte) {
	event, err := DecodePushEvent(payload)
	if err != nil {
		config.LogError(d.logger, "journal", "Deliver", "bad event payload", string(payload), err)
		return
	}
	d.store.Dispatch(ApplyEvent{Event: event})
}
