package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"school-chat/internal/rabbitmq"
)

// PublisherMock records events routed to AMQP.
type PublisherMock struct {
	mock.Mock
}

var _ rabbitmq.Publisher = (*PublisherMock)(nil)

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, event any) error {
	args := m.Called(ctx, routingKey, event)
	return args.Error(0)
}

func (m *PublisherMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// Published returns the events sent to routingKey, oldest first.
func (m *PublisherMock) Published(routingKey string) []any {
	var out []any
	for _, call := range m.Calls {
		if call.Method == "Publish" && call.Arguments.String(1) == routingKey {
			out = append(out, call.Arguments.Get(2))
		}
	}
	return out
}
