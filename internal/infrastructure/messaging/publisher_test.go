package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/account-service/internal/domain/entity"
)

type fakeChannel struct {
	exchange, key string
	msgs          []amqp.Publishing
	err           error
	closed        bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.exchange, f.key = exchange, key
	f.msgs = append(f.msgs, msg)
	return f.err
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_PublishJSON(t *testing.T) {
	ch := &fakeChannel{}
	p := NewPublisher(ch, "account.events")

	ev := entity.NewAccountEvent(entity.EventAccountRegistered, &entity.Account{ID: "id-1", Username: "alice"}, nil)
	require.NoError(t, p.PublishJSON(context.Background(), ev))

	require.Len(t, ch.msgs, 1)
	assert.Equal(t, "", ch.exchange)
	assert.Equal(t, "account.events", ch.key)
	msg := ch.msgs[0]
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)

	var got entity.AccountEvent
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, entity.EventAccountRegistered, got.Type)
	assert.Equal(t, "id-1", got.AccountID)
}

func TestPublisher_Errors(t *testing.T) {
	var nilPub *Publisher
	assert.Error(t, nilPub.PublishJSON(context.Background(), "x"))

	ch := &fakeChannel{err: errors.New("channel closed")}
	assert.Error(t, NewPublisher(ch, "q").PublishJSON(context.Background(), "x"))

	assert.Error(t, NewPublisher(ch, "q").PublishJSON(context.Background(), make(chan int)))
}

func TestPublisher_Close(t *testing.T) {
	ch := &fakeChannel{}
	NewPublisher(ch, "q").Close()
	assert.True(t, ch.closed)

	var nilPub *Publisher
	nilPub.Close()
}
