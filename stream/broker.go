package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jhosm/ProductBundles-sub000/bundle"
	"github.com/jhosm/ProductBundles-sub000/event"
	"github.com/jhosm/ProductBundles-sub000/hook"
	"github.com/jhosm/ProductBundles-sub000/id"
	"github.com/jhosm/ProductBundles-sub000/instance"
)

// Compile-time interface checks.
var (
	_ hook.Hook              = (*Broker)(nil)
	_ hook.InstanceProcessed = (*Broker)(nil)
	_ hook.InstanceFailed    = (*Broker)(nil)
	_ hook.InstanceUpgraded  = (*Broker)(nil)
	_ hook.BundleLoaded      = (*Broker)(nil)
	_ hook.EventDispatched   = (*Broker)(nil)
	_ hook.RecurringJobFired = (*Broker)(nil)
	_ hook.Shutdown          = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It is registered as a
// lifecycle hook and fans events out to subscribers via topic-based
// pub/sub.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements hook.Hook.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
}

// publish broadcasts an event to all matching topics.
func (b *Broker) publish(evt *Event) {
	delivered := b.topics.Broadcast(resolveTopics(evt), evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// OnInstanceProcessed implements hook.InstanceProcessed.
func (b *Broker) OnInstanceProcessed(_ context.Context, bundleID, eventName string, inst *instance.Instance, elapsed time.Duration) error {
	var instanceID string
	if inst != nil {
		instanceID = inst.ID.String()
	}
	b.publish(&Event{
		Type:      EventInstanceProcessed,
		Timestamp: time.Now().UTC(),
		Topic:     BundleTopic(bundleID),
		Data: mustMarshal(InstanceEventData{
			InstanceID: instanceID,
			BundleID:   bundleID,
			EventName:  eventName,
			ElapsedMs:  elapsed.Milliseconds(),
		}),
	})
	return nil
}

// OnInstanceFailed implements hook.InstanceFailed.
func (b *Broker) OnInstanceFailed(_ context.Context, bundleID, eventName string, instanceID id.InstanceID, failure error) error {
	var failureText string
	if failure != nil {
		failureText = failure.Error()
	}
	b.publish(&Event{
		Type:      EventInstanceFailed,
		Timestamp: time.Now().UTC(),
		Topic:     BundleTopic(bundleID),
		Data: mustMarshal(InstanceEventData{
			InstanceID: instanceID.String(),
			BundleID:   bundleID,
			EventName:  eventName,
			Error:      failureText,
		}),
	})
	return nil
}

// OnInstanceUpgraded implements hook.InstanceUpgraded.
func (b *Broker) OnInstanceUpgraded(_ context.Context, bundleID, fromVersion, toVersion string, instanceID id.InstanceID) error {
	b.publish(&Event{
		Type:      EventInstanceUpgraded,
		Timestamp: time.Now().UTC(),
		Topic:     BundleTopic(bundleID),
		Data: mustMarshal(InstanceEventData{
			InstanceID:  instanceID.String(),
			BundleID:    bundleID,
			FromVersion: fromVersion,
			ToVersion:   toVersion,
		}),
	})
	return nil
}

// OnBundleLoaded implements hook.BundleLoaded.
func (b *Broker) OnBundleLoaded(_ context.Context, desc bundle.Descriptor) error {
	b.publish(&Event{
		Type:      EventBundleLoaded,
		Timestamp: time.Now().UTC(),
		Topic:     BundleTopic(desc.ID),
		Data: mustMarshal(BundleEventData{
			BundleID:     desc.ID,
			FriendlyName: desc.FriendlyName,
			Version:      desc.Version,
		}),
	})
	return nil
}

// OnEventDispatched implements hook.EventDispatched.
func (b *Broker) OnEventDispatched(_ context.Context, evt *event.EntityEvent) error {
	b.publish(&Event{
		Type:      EventDispatched,
		Timestamp: time.Now().UTC(),
		Data: mustMarshal(EntityEventData{
			EntityType: evt.EntityType,
			EntityID:   evt.EntityID,
			EventType:  string(evt.EventType),
			EventName:  evt.Name(),
		}),
	})
	return nil
}

// OnRecurringJobFired implements hook.RecurringJobFired.
func (b *Broker) OnRecurringJobFired(_ context.Context, bundleID, jobName string) error {
	b.publish(&Event{
		Type:      EventRecurringJobFired,
		Timestamp: time.Now().UTC(),
		Topic:     BundleTopic(bundleID),
		Data: mustMarshal(RecurringJobEventData{
			BundleID: bundleID,
			JobName:  jobName,
		}),
	})
	return nil
}

// OnShutdown implements hook.Shutdown. It closes every subscriber so
// readers observe channel close and disconnect.
func (b *Broker) OnShutdown(context.Context) error {
	b.subscribers.Range(func(key, val any) bool {
		b.topics.UnsubscribeAll(key.(string)) //nolint:errcheck // keys are subscriber IDs
		val.(*Subscriber).Close()             //nolint:errcheck // sync.Map always stores *Subscriber
		b.subscribers.Delete(key)
		return true
	})
	return nil
}
