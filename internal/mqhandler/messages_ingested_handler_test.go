package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	mqcontracts "recruitrack/contracts/mq"
	"recruitrack/internal/service"
	"recruitrack/pkg/trace"
)

type fakeRunner struct {
	owner   int64
	limit   int
	traceID string
	err     error
	calls   int
}

func (f *fakeRunner) ProcessBatch(ctx context.Context, ownerID int64, limit int) (*service.BatchResult, error) {
	f.calls++
	f.owner = ownerID
	f.limit = limit
	f.traceID = trace.FromContext(ctx)
	if f.err != nil {
		return nil, f.err
	}
	return &service.BatchResult{BatchID: "b-1", OwnerID: ownerID, Processed: limit}, nil
}

type fakeDLQ struct {
	routingKey string
	body       []byte
	reason     string
}

func (f *fakeDLQ) PublishToDLQ(_ context.Context, routingKey string, body []byte, originalError string) error {
	f.routingKey = routingKey
	f.body = body
	f.reason = originalError
	return nil
}

func TestHandleRunsBatch(t *testing.T) {
	runner := &fakeRunner{}
	h := NewMessagesIngestedHandler(runner, &fakeDLQ{}, zap.NewNop())

	raw, err := json.Marshal(mqcontracts.MessagesIngestedPayload{OwnerID: 7, MessageIDs: []int64{1, 2, 3}, Count: 2, TraceID: "trace-1"})
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), raw))
	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, int64(7), runner.owner)
	assert.Equal(t, 3, runner.limit)
	assert.Equal(t, "trace-1", runner.traceID)
}

func TestHandleParksMalformedPayload(t *testing.T) {
	runner := &fakeRunner{}
	dlq := &fakeDLQ{}
	h := NewMessagesIngestedHandler(runner, dlq, zap.NewNop())

	require.NoError(t, h.Handle(context.Background(), json.RawMessage(`{"owner_id": "seven"`)))
	assert.Zero(t, runner.calls)
	assert.Equal(t, mqcontracts.RoutingKeyMessagesIngested, dlq.routingKey)
	assert.Contains(t, dlq.reason, "bad_payload")

	require.NoError(t, h.Handle(context.Background(), json.RawMessage(`{"count": 3}`)))
	assert.Zero(t, runner.calls)
	assert.Contains(t, dlq.reason, "owner_id missing")
}

func TestHandleRequeuesRetryableFailures(t *testing.T) {
	runner := &fakeRunner{err: errors.New("fetch new messages: connection refused")}
	h := NewMessagesIngestedHandler(runner, nil, zap.NewNop())

	err := h.Handle(context.Background(), json.RawMessage(`{"owner_id": 3}`))
	assert.Error(t, err)

	runner.err = errors.New("fetch new messages: syntax error at or near")
	assert.NoError(t, h.Handle(context.Background(), json.RawMessage(`{"owner_id": 3}`)))
}
