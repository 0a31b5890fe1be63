package consumers

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/multicurrency-ledger/internal/config"
	"github.com/multicurrency-ledger/internal/platform/retry"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages and records commits
type fakeReader struct {
	messages chan kafka.Message

	mu        sync.Mutex
	committed []int64
	fetchErrs []error
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{messages: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.messages <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	r.mu.Unlock()

	select {
	case m := <-r.messages:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func testConsumer(reader MessageReader) *KafkaConsumer {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	c := newKafkaConsumer(logger, reader, "ledger_operations", "test-group")
	c.backoff = retry.Backoff{Base: time.Millisecond, Max: 2 * time.Millisecond}
	return c
}

func TestNewKafkaConsumer(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	cfg := &config.KafkaConfig{
		Brokers:        "localhost:9092",
		OperationTopic: "test-topic",
		ConsumerGroup:  "test-group",
		MinBytes:       1024,
		MaxBytes:       10240,
		MaxWait:        time.Second,
	}

	consumer := NewKafkaConsumer(logger, cfg)
	require.NotNil(t, consumer)
	require.NotNil(t, consumer.reader, "Kafka reader should be initialized")
	assert.Equal(t, "test-topic", consumer.topic)
	assert.Equal(t, "test-group", consumer.groupID)
}

func TestKafkaConsumer_Subscribe(t *testing.T) {
	t.Run("NeverCommitsPastAFailingMessage", func(t *testing.T) {
		reader := newFakeReader(
			kafka.Message{Key: []byte("ok-1"), Offset: 6},
			kafka.Message{Key: []byte("stuck"), Offset: 7},
			kafka.Message{Key: []byte("ok-2"), Offset: 8},
		)
		consumer := testConsumer(reader)

		var mu sync.Mutex
		calls := map[string]int{}
		handler := func(_ context.Context, key, _ []byte) error {
			mu.Lock()
			defer mu.Unlock()
			calls[string(key)]++
			if string(key) == "stuck" {
				return errors.New("idempotency key still in flight")
			}
			return nil
		}
		stuckCalls := func() int {
			mu.Lock()
			defer mu.Unlock()
			return calls["stuck"]
		}

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, consumer.Subscribe(ctx, handler))

		assert.Eventually(t, func() bool {
			return stuckCalls() > escalateAfterAttempts+2
		}, time.Second, 5*time.Millisecond, "the failing message keeps being retried")

		cancel()
		require.NoError(t, consumer.Close())

		assert.Equal(t, []int64{6}, reader.commits(), "offset 8 must not be committed over 7")
		mu.Lock()
		assert.Zero(t, calls["ok-2"], "later messages wait for the stuck one")
		mu.Unlock()
		assert.True(t, reader.closed)
	})

	t.Run("RetriesUntilHandlerSucceeds", func(t *testing.T) {
		reader := newFakeReader(kafka.Message{Key: []byte("flaky"), Offset: 7})
		consumer := testConsumer(reader)

		var mu sync.Mutex
		attempts := 0
		handler := func(context.Context, []byte, []byte) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			if attempts < escalateAfterAttempts+2 {
				return errors.New("not yet")
			}
			return nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, consumer.Subscribe(ctx, handler))
		assert.Eventually(t, func() bool {
			return len(reader.commits()) == 1
		}, time.Second, 5*time.Millisecond)
		cancel()
		require.NoError(t, consumer.Close())

		assert.Equal(t, []int64{7}, reader.commits())
	})

	t.Run("SurvivesFetchErrors", func(t *testing.T) {
		reader := newFakeReader(kafka.Message{Key: []byte("after-error"), Offset: 4})
		reader.fetchErrs = []error{errors.New("broker unavailable"), errors.New("broker unavailable")}
		consumer := testConsumer(reader)

		ctx, cancel := context.WithCancel(context.Background())
		require.NoError(t, consumer.Subscribe(ctx, func(context.Context, []byte, []byte) error { return nil }))
		assert.Eventually(t, func() bool {
			return len(reader.commits()) == 1
		}, time.Second, 5*time.Millisecond)
		cancel()
		require.NoError(t, consumer.Close())
	})

	t.Run("NilHandler", func(t *testing.T) {
		consumer := testConsumer(newFakeReader())
		assert.Error(t, consumer.Subscribe(context.Background(), nil))
	})
}

func TestKafkaConsumer_Close(t *testing.T) {
	t.Run("CloseWithNilReader", func(t *testing.T) {
		consumer := &KafkaConsumer{reader: nil}
		err := consumer.Close()
		require.NoError(t, err, "Close should return nil if reader is nil")
	})
}
