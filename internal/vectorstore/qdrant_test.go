package vectorstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"unavailable", status.Error(grpccodes.Unavailable, "down"), true},
		{"deadline", status.Error(grpccodes.DeadlineExceeded, "slow"), true},
		{"aborted", status.Error(grpccodes.Aborted, "conflict"), true},
		{"exhausted", status.Error(grpccodes.ResourceExhausted, "busy"), true},
		{"invalid argument", status.Error(grpccodes.InvalidArgument, "bad"), false},
		{"not found", status.Error(grpccodes.NotFound, "gone"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransientError(tt.err))
		})
	}
}

func TestQdrantConfig_ApplyDefaults(t *testing.T) {
	cfg := QdrantConfig{Dimension: 384}
	cfg.ApplyDefaults()

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 6334, cfg.Port)
	assert.Equal(t, "knowledge", cfg.Collection)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 5, cfg.CircuitBreakerThreshold)
	assert.NoError(t, cfg.Validate())

	cfg.Dimension = 0
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func newRetryTable(maxRetries, threshold int) *QdrantTable {
	cfg := QdrantConfig{
		MaxRetries:              maxRetries,
		RetryBackoff:            time.Millisecond,
		Timeout:                 time.Second,
		CircuitBreakerThreshold: threshold,
		CircuitBreakerCooldown:  time.Hour,
	}
	return &QdrantTable{config: cfg, logger: zap.NewNop()}
}

func TestQdrantTable_RetryOperation(t *testing.T) {
	ctx := context.Background()

	t.Run("transient then success", func(t *testing.T) {
		table := newRetryTable(3, 10)
		calls := 0
		err := table.retryOperation(ctx, "op", func(context.Context) error {
			calls++
			if calls < 3 {
				return status.Error(grpccodes.Unavailable, "down")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.False(t, table.isCircuitOpen())
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		table := newRetryTable(3, 10)
		calls := 0
		err := table.retryOperation(ctx, "op", func(context.Context) error {
			calls++
			return status.Error(grpccodes.InvalidArgument, "bad")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permanent")
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		table := newRetryTable(2, 10)
		calls := 0
		err := table.retryOperation(ctx, "op", func(context.Context) error {
			calls++
			return status.Error(grpccodes.Unavailable, "down")
		})
		require.Error(t, err)
		assert.Equal(t, 3, calls)
		assert.Contains(t, err.Error(), "after 2 retries")
	})

	t.Run("circuit opens after threshold", func(t *testing.T) {
		table := newRetryTable(1, 2)
		fail := func(context.Context) error { return status.Error(grpccodes.Unavailable, "down") }

		require.Error(t, table.retryOperation(ctx, "op", fail))
		assert.True(t, table.isCircuitOpen())

		calls := 0
		err := table.retryOperation(ctx, "op", func(context.Context) error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, ErrCircuitOpen)
		assert.Zero(t, calls)
	})

	t.Run("canceled context stops backoff", func(t *testing.T) {
		table := newRetryTable(5, 100)
		table.config.RetryBackoff = time.Hour
		cctx, cancel := context.WithCancel(ctx)
		err := table.retryOperation(cctx, "op", func(context.Context) error {
			cancel()
			return status.Error(grpccodes.Unavailable, "down")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPointID(t *testing.T) {
	id := uuid.NewString()
	assert.Equal(t, id, pointID(id).GetUuid())

	derived := pointID("chunk-17").GetUuid()
	_, err := uuid.Parse(derived)
	require.NoError(t, err)
	assert.Equal(t, derived, pointID("chunk-17").GetUuid(), "derived ids are stable")
	assert.NotEqual(t, derived, pointID("chunk-18").GetUuid())
}

func TestPointRoundTrip(t *testing.T) {
	row := Row{
		ID:     "chunk-1",
		Text:   "syarat kualifikasi penyedia",
		Vector: []float32{0.6, 0.8},
		Metadata: map[string]interface{}{
			"project":     "kak_tor",
			"tahun":       2025,
			"chunk_index": 4,
		},
	}

	p := toPoint(row)
	assert.Equal(t, "syarat kualifikasi penyedia", p.Payload[payloadText].GetStringValue())
	assert.Equal(t, "chunk-1", p.Payload[payloadRowID].GetStringValue())
	assert.Equal(t, "2025", p.Payload["tahun"].GetStringValue())

	vectors := &qdrant.VectorsOutput{
		VectorsOptions: &qdrant.VectorsOutput_Vector{
			Vector: &qdrant.VectorOutput{Data: row.Vector},
		},
	}
	got := fromPayload(p.Id, p.Payload, vectors)

	assert.Equal(t, "chunk-1", got.ID)
	assert.Equal(t, row.Text, got.Text)
	assert.Equal(t, row.Vector, got.Vector)
	assert.Equal(t, map[string]interface{}{"project": "kak_tor", "tahun": "2025", "chunk_index": "4"}, got.Metadata)
}

func TestPayloadValue_TypedValues(t *testing.T) {
	assert.Equal(t, "12", payloadValue(qdrant.NewValueInt(12)))
	assert.Equal(t, "2.5", payloadValue(qdrant.NewValueDouble(2.5)))
	assert.Equal(t, "true", payloadValue(qdrant.NewValueBool(true)))
	assert.Equal(t, "x", payloadValue(qdrant.NewValueString("x")))
}

func TestQdrantFilter(t *testing.T) {
	assert.Nil(t, qdrantFilter(nil))

	f := qdrantFilter(Filter{"tahun": 2025, "project": "kak_tor"})
	require.Len(t, f.Must, 2)

	first := f.Must[0].GetField()
	assert.Equal(t, "project", first.GetKey())
	assert.Equal(t, "kak_tor", first.GetMatch().GetKeyword())

	second := f.Must[1].GetField()
	assert.Equal(t, "tahun", second.GetKey())
	assert.Equal(t, "2025", second.GetMatch().GetKeyword())
}
