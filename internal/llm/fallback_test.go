package llm

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/wolfman30/booking-assistant/pkg/logging"
)

type stubClient struct {
	resp  Response
	err   error
	calls int
}

func (s *stubClient) Complete(context.Context, Request) (Response, error) {
	s.calls++
	return s.resp, s.err
}

func TestFallbackClient(t *testing.T) {
	logger := logging.NewWithWriter("error", io.Discard)
	tests := []struct {
		name          string
		primary       *stubClient
		fallback      *stubClient
		wantText      string
		wantErr       bool
		wantFallbacks int
	}{
		{
			name:     "primary succeeds",
			primary:  &stubClient{resp: Response{Text: "primary"}},
			fallback: &stubClient{resp: Response{Text: "fallback"}},
			wantText: "primary",
		},
		{
			name:          "primary fails fallback succeeds",
			primary:       &stubClient{err: errors.New("down")},
			fallback:      &stubClient{resp: Response{Text: "fallback"}},
			wantText:      "fallback",
			wantFallbacks: 1,
		},
		{
			name:          "both fail",
			primary:       &stubClient{err: errors.New("down")},
			fallback:      &stubClient{err: errors.New("also down")},
			wantErr:       true,
			wantFallbacks: 1,
		},
		{
			name:    "no fallback configured",
			primary: &stubClient{err: errors.New("down")},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fallback Client
			if tt.fallback != nil {
				fallback = tt.fallback
			}
			resp, err := NewFallbackClient(tt.primary, fallback, logger).Complete(context.Background(), Request{})
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if resp.Text != tt.wantText {
				t.Fatalf("text = %q, want %q", resp.Text, tt.wantText)
			}
			if tt.fallback != nil && tt.fallback.calls != tt.wantFallbacks {
				t.Fatalf("fallback calls = %d, want %d", tt.fallback.calls, tt.wantFallbacks)
			}
		})
	}
}

func TestFallbackClientSkipsFallbackWhenContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fallback := &stubClient{resp: Response{Text: "fallback"}}
	_, err := NewFallbackClient(&stubClient{err: context.Canceled}, fallback, logging.NewWithWriter("error", io.Discard)).Complete(ctx, Request{})
	if !errors.Is(err, context.Canceled) || fallback.calls != 0 {
		t.Fatalf("expected cancellation without fallback, err=%v calls=%d", err, fallback.calls)
	}
}
