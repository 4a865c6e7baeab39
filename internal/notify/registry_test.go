package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryDeliversByTenant(t *testing.T) {
	reg := NewRegistry(4, nil)
	_, t1 := reg.Subscribe("t1")
	_, t2 := reg.Subscribe("t2")
	_, all := reg.Subscribe("")

	ev := Event{Type: EventBookingCreated, TenantID: "t1", AppointmentID: "a1"}
	require.NoError(t, reg.Publish(context.Background(), ev))

	assert.Equal(t, ev, <-t1)
	assert.Equal(t, ev, <-all)
	select {
	case got := <-t2:
		t.Fatalf("tenant t2 received %+v", got)
	default:
	}
}

func TestRegistryPublishNeverBlocks(t *testing.T) {
	reg := NewRegistry(1, nil)
	_, ch := reg.Subscribe("t1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = reg.Publish(context.Background(), Event{TenantID: "t1"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
}

func TestRegistryUnsubscribeClosesChannel(t *testing.T) {
	reg := NewRegistry(0, nil)
	id, ch := reg.Subscribe("t1")
	reg.Unsubscribe(id)
	reg.Unsubscribe(id)

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, reg.Len())
	require.NoError(t, reg.Publish(context.Background(), Event{TenantID: "t1"}))
}

func TestRegistryPublishHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRegistry(0, nil).Publish(ctx, Event{TenantID: "t1"})
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.payloads = append(f.payloads, data)
	return nil
}

func (f *fakeConn) Drain() error { return nil }

func TestNATSRelayPublishesTenantSubject(t *testing.T) {
	conn := &fakeConn{}
	relay := newNATSRelay(conn, nil)

	ev := Event{Type: EventBookingCreated, TenantID: "t1", AppointmentID: "a1", ClientName: "Maria Silva"}
	require.NoError(t, relay.Publish(context.Background(), ev))

	require.Equal(t, []string{"booking.created.t1"}, conn.subjects)
	var decoded Event
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, "a1", decoded.AppointmentID)
	assert.Equal(t, "Maria Silva", decoded.ClientName)
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("nats down")
	reg := NewRegistry(1, nil)
	_, ch := reg.Subscribe("t1")

	err := Multi{reg, newNATSRelay(&fakeConn{err: boom}, nil), nil}.Publish(context.Background(), Event{TenantID: "t1"})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ch, 1)
}

func TestWebSocketHandlerStreamsTenantEvents(t *testing.T) {
	reg := NewRegistry(4, nil)
	srv := httptest.NewServer(NewWebSocketHandler(reg, nil))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?tenant=t1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return reg.Len() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, reg.Publish(context.Background(), Event{Type: EventBookingCreated, TenantID: "t1", AppointmentID: "a1"}))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Event
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "a1", got.AppointmentID)
}

func TestWebSocketHandlerRequiresTenant(t *testing.T) {
	rec := httptest.NewRecorder()
	NewWebSocketHandler(NewRegistry(0, nil), nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/dashboard", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
