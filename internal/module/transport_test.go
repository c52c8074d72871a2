package module

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedPayloadShapes(t *testing.T) {
	tests := []struct {
		module string
		keys   []string
	}{
		{"naver-securities", []string{"symbol", "name", "price", "change", "changePercent", "volume", "marketCap", "source"}},
		{"toss-securities", []string{"symbol", "realTimePrice", "bid", "ask", "volume", "source"}},
		{"yahoo-finance", []string{"symbol", "historicalData", "source"}},
		{"openai-analysis", []string{"analysis", "sentiment", "confidence", "recommendations", "source"}},
		{"krx-data", []string{"message", "parameters", "timestamp"}},
	}

	tr := NewSimulatedTransport(0, 0)
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			data, err := tr.Call(context.Background(), Module{ID: tt.module}, "analysis", nil)
			require.NoError(t, err)
			for _, k := range tt.keys {
				assert.Contains(t, data, k)
			}
		})
	}
}

func TestSimulatedDefaultSymbols(t *testing.T) {
	tr := NewSimulatedTransport(0, 0)

	data, err := tr.Call(context.Background(), Module{ID: "toss-securities"}, "quote", nil)
	require.NoError(t, err)
	assert.Equal(t, "TSLA", data["symbol"])

	data, err = tr.Call(context.Background(), Module{ID: "toss-securities"}, "quote", map[string]any{"symbol": "035420"})
	require.NoError(t, err)
	assert.Equal(t, "035420", data["symbol"])
}

func TestSimulatedHonoursCancellation(t *testing.T) {
	tr := NewSimulatedTransport(time.Minute, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Call(ctx, Module{ID: "krx-data"}, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewSimulatedTransport(0, 0).Call(ctx, Module{ID: "krx-data"}, "x", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedLatencyRange(t *testing.T) {
	tr := NewSimulatedTransport(10*time.Millisecond, 20*time.Millisecond)
	for i := 0; i < 50; i++ {
		d := tr.latency()
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.Less(t, d, 20*time.Millisecond)
	}
}
