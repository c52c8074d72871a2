package module

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// Transport performs the call to a module. Implementations must honour ctx.
type Transport interface {
	Call(ctx context.Context, m Module, method string, params map[string]any) (map[string]any, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, m Module, method string, params map[string]any) (map[string]any, error)

func (f TransportFunc) Call(ctx context.Context, m Module, method string, params map[string]any) (map[string]any, error) {
	return f(ctx, m, method, params)
}

// SimulatedTransport stands in for real module servers. It waits a random
// latency in [MinLatency, MaxLatency] and returns a fixed payload shape per module.
type SimulatedTransport struct {
	MinLatency time.Duration
	MaxLatency time.Duration
	Now        func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedTransport creates a transport with the given latency range.
func NewSimulatedTransport(minLatency, maxLatency time.Duration) *SimulatedTransport {
	return &SimulatedTransport{
		MinLatency: minLatency,
		MaxLatency: maxLatency,
		Now:        time.Now,
		rng:        rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func (t *SimulatedTransport) latency() time.Duration {
	if t.MaxLatency <= t.MinLatency {
		return t.MinLatency
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rng == nil {
		t.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return t.MinLatency + time.Duration(t.rng.Int64N(int64(t.MaxLatency-t.MinLatency)))
}

func (t *SimulatedTransport) Call(ctx context.Context, m Module, method string, params map[string]any) (map[string]any, error) {
	if d := t.latency(); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	return simulatedPayload(m.ID, method, params, now()), nil
}

func symbolOr(params map[string]any, def string) string {
	if s, ok := params["symbol"].(string); ok && s != "" {
		return s
	}
	return def
}

func simulatedPayload(moduleID, method string, params map[string]any, now time.Time) map[string]any {
	switch moduleID {
	case "naver-securities":
		return map[string]any{
			"symbol":        symbolOr(params, "AAPL"),
			"name":          "애플",
			"price":         150.25,
			"change":        2.35,
			"changePercent": 1.59,
			"volume":        45123456,
			"marketCap":     int64(2450000000000),
			"source":        moduleID,
		}
	case "toss-securities":
		return map[string]any{
			"symbol":        symbolOr(params, "TSLA"),
			"realTimePrice": 245.67,
			"bid":           245.50,
			"ask":           245.80,
			"volume":        12345678,
			"source":        moduleID,
		}
	case "yahoo-finance":
		return map[string]any{
			"symbol": symbolOr(params, "MSFT"),
			"historicalData": []any{
				map[string]any{"date": "2024-01-01", "open": 100, "high": 105, "low": 98, "close": 103, "volume": 1000000},
				map[string]any{"date": "2024-01-02", "open": 103, "high": 108, "low": 102, "close": 107, "volume": 1200000},
			},
			"source": moduleID,
		}
	case "openai-analysis":
		return map[string]any{
			"analysis":        fmt.Sprintf("%s에 대한 분석 결과입니다. 기술적 지표와 시장 동향을 종합해볼 때 긍정적인 전망을 보입니다.", symbolOr(params, "해당 종목")),
			"sentiment":       "positive",
			"confidence":      0.75,
			"recommendations": []any{"매수", "장기보유 권장"},
			"source":          moduleID,
		}
	default:
		echo := make(map[string]any, len(params))
		for k, v := range params {
			echo[k] = v
		}
		return map[string]any{
			"message":    fmt.Sprintf("%s 모듈의 %s 메서드가 실행되었습니다", moduleID, method),
			"parameters": echo,
			"timestamp":  now.UTC().Format(time.RFC3339Nano),
		}
	}
}
