// Package bus fans relay frames out to every node serving a room.
//
// A frame is published once per sender and delivered to every subscriber of
// the room's topic; the sender id travels in message metadata so receivers
// can suppress echoes. Two backends exist: an in-process watermill gochannel
// for single-node relays and core NATS (JetStream disabled) for clusters.
// Delivery is at-most-once on both.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"

	"blackboard/internal/config"
	"blackboard/internal/logging"
)

// Metadata keys carried by every frame.
const (
	MetadataSender = "sender"
	MetadataRoom   = "room"
)

// Frame is one relayed protocol frame.
type Frame struct {
	RoomID   string
	SenderID string
	Payload  []byte
}

// Bus publishes and subscribes room frames.
type Bus struct {
	pub    message.Publisher
	sub    message.Subscriber
	prefix string
	closer func() error
}

// New builds a bus for the configured backend. url overrides cfg.NATSURL
// when non-empty (used with the embedded server).
func New(cfg config.BusConfig, url string) (*Bus, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(cfg.SubjectPrefix), nil
	case "nats":
		if url == "" {
			url = cfg.NATSURL
		}
		return NewNATS(url, cfg.SubjectPrefix)
	default:
		return nil, fmt.Errorf("unknown bus backend %q", cfg.Backend)
	}
}

// NewMemory returns an in-process bus.
func NewMemory(prefix string) *Bus {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
		// keeps per-publisher order; subscribers ack immediately
		BlockPublishUntilSubscriberAck: true,
	}, logging.NewWatermillAdapter("bus"))
	return &Bus{pub: ch, sub: ch, prefix: prefix, closer: ch.Close}
}

// NewNATS connects a publisher and a fan-out subscriber to a NATS server.
func NewNATS(url, prefix string) (*Bus, error) {
	logger := logging.NewWatermillAdapter("bus")
	opts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
	marshaler := &wmNats.NATSMarshaler{}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: opts,
		Marshaler:   marshaler,
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		SubscribersCount: 1,
		CloseTimeout:     5 * time.Second,
		AckWaitTimeout:   5 * time.Second,
		NatsOptions:      opts,
		Unmarshaler:      marshaler,
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}
	return &Bus{
		pub:    pub,
		sub:    sub,
		prefix: prefix,
		closer: func() error { return errors.Join(sub.Close(), pub.Close()) },
	}, nil
}

// Topic maps a room id onto a subject-safe topic.
func (b *Bus) Topic(roomID string) string {
	safe := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, roomID)
	if b.prefix == "" {
		return safe
	}
	return b.prefix + "." + safe
}

// Publish sends frame to every subscriber of roomID.
func (b *Bus) Publish(roomID, senderID string, payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(MetadataSender, senderID)
	msg.Metadata.Set(MetadataRoom, roomID)
	if err := b.pub.Publish(b.Topic(roomID), msg); err != nil {
		return fmt.Errorf("publish to room %s: %w", roomID, err)
	}
	return nil
}

// Subscribe delivers roomID's frames until ctx is cancelled. The returned
// channel is closed afterwards.
func (b *Bus) Subscribe(ctx context.Context, roomID string) (<-chan Frame, error) {
	msgs, err := b.sub.Subscribe(ctx, b.Topic(roomID))
	if err != nil {
		return nil, fmt.Errorf("subscribe to room %s: %w", roomID, err)
	}
	out := make(chan Frame, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			frame := Frame{
				RoomID:   msg.Metadata.Get(MetadataRoom),
				SenderID: msg.Metadata.Get(MetadataSender),
				Payload:  msg.Payload,
			}
			msg.Ack()
			select {
			case out <- frame:
			case <-ctx.Done():
				// drain so the publisher is never blocked on our ack
				for m := range msgs {
					m.Ack()
				}
				return
			}
		}
	}()
	return out, nil
}

// Close releases the backend.
func (b *Bus) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}
