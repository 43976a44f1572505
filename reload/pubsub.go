// Package reload implements the §4.6 ReloadStrategy variants: a Redis
// pub/sub subscriber, a polling fallback, and a supplemental filesystem
// watcher for embedded deployments without a shared control store.
package reload

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/fluxgate/fluxgate"
)

// DefaultChannel is the default Redis pub/sub channel for reload events.
const DefaultChannel = "fluxgate:rule-reload"

// DefaultSubscribeRetryInterval is how long the subscriber waits before
// retrying a failed subscription.
const DefaultSubscribeRetryInterval = 5 * time.Second

// wireMessage is the JSON wire format published on the reload channel:
// {ruleSetId?, source, timestamp, metadata?}.
type wireMessage struct {
	RuleSetId     string         `json:"ruleSetId,omitempty"`
	Source        string         `json:"source"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CorrelationId string         `json:"correlationId,omitempty"`
}

// PubSub is a ReloadStrategy backed by Redis pub/sub (§4.6). It runs as a
// dedicated long-lived task: subscription failures are retried at
// RetryInterval rather than giving up.
type PubSub struct {
	client        goredis.UniversalClient
	channel       string
	retryInterval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewPubSub builds a PubSub strategy. channel defaults to DefaultChannel
// and retryInterval to DefaultSubscribeRetryInterval when zero.
func NewPubSub(client goredis.UniversalClient, channel string, retryInterval time.Duration) *PubSub {
	if channel == "" {
		channel = DefaultChannel
	}
	if retryInterval <= 0 {
		retryInterval = DefaultSubscribeRetryInterval
	}
	return &PubSub{
		client:        client,
		channel:       channel,
		retryInterval: retryInterval,
		stopCh:        make(chan struct{}),
	}
}

// Run subscribes to the configured channel and delivers parsed
// ReloadEvents to sink until Stop is called. It blocks, re-subscribing
// after RetryInterval when subscribing fails, and at once when an
// established subscription's channel closes.
func (p *PubSub) Run(sink fluxgate.ReloadSink) error {
	for {
		select {
		case <-p.stopCh:
			return nil
		default:
		}

		if err := p.subscribeOnce(sink); err != nil {
			select {
			case <-p.stopCh:
				return nil
			case <-time.After(p.retryInterval):
			}
		}
	}
}

func (p *PubSub) subscribeOnce(sink fluxgate.ReloadSink) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-p.stopCh:
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			event, err := parseMessage(msg.Payload)
			if err != nil {
				continue
			}
			sink.HandleReloadEvent(event)
		}
	}
}

// Stop terminates the subscriber. Safe to call more than once.
func (p *PubSub) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func parseMessage(payload string) (fluxgate.ReloadEvent, error) {
	var msg wireMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return fluxgate.ReloadEvent{}, err
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.CorrelationId == "" {
		msg.CorrelationId = uuid.NewString()
	}
	return fluxgate.ReloadEvent{
		RuleSetId:     msg.RuleSetId,
		Source:        fluxgate.ReloadSourcePubSub,
		Timestamp:     msg.Timestamp,
		Metadata:      msg.Metadata,
		CorrelationId: msg.CorrelationId,
	}, nil
}

var _ fluxgate.ReloadStrategy = (*PubSub)(nil)
