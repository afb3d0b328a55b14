package testutil

import (
	"context"
	"sync"

	"github.com/prizeloop/backend/pkg/pubsub"
)

// MockPublisher records everything published. The zero value is usable.
type MockPublisher struct {
	PublishFunc func(context.Context, string, *pubsub.Pack) error

	mutex  sync.Mutex
	Packs  []*pubsub.Pack
	Topics []string
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, pack *pubsub.Pack) error {
	m.mutex.Lock()
	m.Packs = append(m.Packs, pack)
	m.Topics = append(m.Topics, topic)
	m.mutex.Unlock()

	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, pack)
	}

	return nil
}

func (m *MockPublisher) Stop(ctx context.Context) error {
	return nil
}
