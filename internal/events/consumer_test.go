package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/maltedev/catalog-scraper/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStreamClient struct {
	mock.Mock
}

func (m *MockStreamClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	args := m.Called(ctx, stream, group, start)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func (m *MockStreamClient) XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	args := m.Called(ctx, a)
	cmd := redis.NewXStreamSliceCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
		return cmd
	}
	cmd.SetVal(args.Get(0).([]redis.XStream))
	return cmd
}

func (m *MockStreamClient) XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd {
	m.Called(ctx, stream, group, ids)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

var testConfig = ConsumerConfig{
	Stream:   database.StreamCatalog,
	Group:    "catalog-events",
	Consumer: "consumer-1",
	Block:    10 * time.Millisecond,
}

func streamMessage(t *testing.T, id, eventType string, payload interface{}) redis.XMessage {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	data, err := json.Marshal(map[string]interface{}{
		"id":             id,
		"type":           eventType,
		"aggregate_type": database.AggregateCatalogRun,
		"aggregate_id":   "run-1",
		"payload":        json.RawMessage(raw),
	})
	require.NoError(t, err)

	return redis.XMessage{
		ID:     id,
		Values: map[string]interface{}{"data": string(data), "event_type": eventType},
	}
}

func TestDecodeEnvelope(t *testing.T) {
	msg := streamMessage(t, "1-0", database.EventRunCompleted, database.RunEventPayload{RunID: "run-1", ProductCount: 3})

	env, err := DecodeEnvelope(msg)
	require.NoError(t, err)
	assert.Equal(t, database.EventRunCompleted, env.Type)
	assert.Equal(t, "run-1", env.AggregateID)

	_, err = DecodeEnvelope(redis.XMessage{ID: "2-0", Values: map[string]interface{}{}})
	assert.Error(t, err)

	_, err = DecodeEnvelope(redis.XMessage{ID: "3-0", Values: map[string]interface{}{"data": "{"}})
	assert.Error(t, err)
}

func TestConsumerRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := new(MockStreamClient)
	client.On("XGroupCreateMkStream", mock.Anything, database.StreamCatalog, "catalog-events", "0").
		Return(errors.New("BUSYGROUP Consumer Group name already exists"))

	good := streamMessage(t, "1-0", database.EventRunCompleted, database.RunEventPayload{RunID: "run-1"})
	retry := streamMessage(t, "2-0", database.EventRunCompleted, database.RunEventPayload{RunID: "run-2"})
	malformed := redis.XMessage{ID: "3-0", Values: map[string]interface{}{"data": "not json"}}

	client.On("XReadGroup", mock.Anything, mock.MatchedBy(func(a *redis.XReadGroupArgs) bool {
		return a.Group == "catalog-events" && a.Streams[0] == database.StreamCatalog && a.Streams[1] == ">"
	})).Return([]redis.XStream{{Stream: database.StreamCatalog, Messages: []redis.XMessage{good, retry, malformed}}}, nil).Once()

	client.On("XAck", mock.Anything, database.StreamCatalog, "catalog-events", []string{"1-0"}).Return()
	client.On("XAck", mock.Anything, database.StreamCatalog, "catalog-events", []string{"3-0"}).Return()

	var handled []string
	handler := func(ctx context.Context, env Envelope) error {
		handled = append(handled, env.ID)
		if env.ID == "2-0" {
			cancel()
			return errors.New("temporary failure")
		}
		return nil
	}

	err := NewConsumer(client, testConfig, handler, nil).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, []string{"1-0", "2-0"}, handled)
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "XAck", mock.Anything, database.StreamCatalog, "catalog-events", []string{"2-0"})
}

func TestConsumerGroupCreateFailure(t *testing.T) {
	client := new(MockStreamClient)
	client.On("XGroupCreateMkStream", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("connection refused"))

	err := NewConsumer(client, testConfig, LogRunEvents(nil), nil).Run(context.Background())
	assert.Error(t, err)
	client.AssertNotCalled(t, "XReadGroup", mock.Anything, mock.Anything)
}

func TestLogRunEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	handler := LogRunEvents(logger)
	ctx := context.Background()

	decodeLast := func() map[string]interface{} {
		lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(lines[len(lines)-1], &entry))
		return entry
	}

	env, err := DecodeEnvelope(streamMessage(t, "1-0", database.EventRunCompleted, database.RunEventPayload{RunID: "run-1", ProductCount: 7}))
	require.NoError(t, err)
	require.NoError(t, handler(ctx, env))
	entry := decodeLast()
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, float64(7), entry["products"])

	env, err = DecodeEnvelope(streamMessage(t, "2-0", database.EventRunCompleted, database.RunEventPayload{
		RunID: "run-2", ContextsFailed: 1, FailedStores: []string{"11"},
	}))
	require.NoError(t, err)
	require.NoError(t, handler(ctx, env))
	assert.Equal(t, "WARN", decodeLast()["level"])

	env, err = DecodeEnvelope(streamMessage(t, "3-0", database.EventRunFailed, database.RunEventPayload{RunID: "run-3", Error: "disk full"}))
	require.NoError(t, err)
	require.NoError(t, handler(ctx, env))
	entry = decodeLast()
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "disk full", entry["error"])

	buf.Reset()
	require.NoError(t, handler(ctx, Envelope{AggregateType: "product"}))
	assert.Zero(t, buf.Len())

	assert.Error(t, handler(ctx, Envelope{AggregateType: database.AggregateCatalogRun, Payload: json.RawMessage(`[`)}))
}
