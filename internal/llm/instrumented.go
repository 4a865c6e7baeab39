package llm

import (
	"context"
	"time"
)

// LatencyObserver records completion latency by status ("ok" or "error").
type LatencyObserver interface {
	ObserveLLMLatency(status string, seconds float64)
}

// InstrumentedClient times every completion of the wrapped client.
type InstrumentedClient struct {
	next     Client
	observer LatencyObserver
}

func NewInstrumentedClient(next Client, observer LatencyObserver) *InstrumentedClient {
	if next == nil {
		panic("llm: client required")
	}
	return &InstrumentedClient{next: next, observer: observer}
}

func (c *InstrumentedClient) Complete(ctx context.Context, req Request) (Response, error) {
	start := time.Now()
	resp, err := c.next.Complete(ctx, req)
	if c.observer != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.observer.ObserveLLMLatency(status, time.Since(start).Seconds())
	}
	return resp, err
}
