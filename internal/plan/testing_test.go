package plan

import (
	"fmt"
	"sync/atomic"
	"time"
)

var testEpoch = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// fakeClock advances one second per call.
func fakeClock() func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return testEpoch.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("plan-%d", n.Add(1))
	}
}

func newTestStore() *Store {
	return NewStore(NewMemoryRepository(), WithClock(fakeClock()), WithIDGenerator(sequentialIDs()))
}

func sampleInput() CreateInput {
	return CreateInput{
		Title:       "Samsung review",
		Description: "Collect quotes then analyse",
		Steps: []StepInput{
			{
				Title:       "Collect",
				Description: "Fetch quotes",
				Order:       0,
				Type:        StepDataCollection,
				Modules:     []string{"naver-securities"},
				Parameters:  map[string]any{"symbol": "005930"},
			},
			{
				Title:       "Analyse",
				Description: "Sentiment",
				Order:       1,
				Type:        StepAnalysis,
				Modules:     []string{"openai-analysis"},
				Prompt:      "Summarise",
			},
		},
	}
}
