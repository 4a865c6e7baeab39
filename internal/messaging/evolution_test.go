package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendTextPostsToInstance(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("apikey")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client, err := NewEvolutionClient(EvolutionConfig{BaseURL: srv.URL + "/", APIKey: "key-1"})
	require.NoError(t, err)
	require.NoError(t, client.SendText(context.Background(), "bela", "+55 (11) 98888-7777", "Olá!"))

	assert.Equal(t, "/message/sendText/bela", gotPath)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, "5511988887777", gotBody["number"])
	assert.Equal(t, "Olá!", gotBody["text"])
}

func TestSendTextRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := NewEvolutionClient(EvolutionConfig{BaseURL: srv.URL, APIKey: "k", MaxRetries: 2, Backoff: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, client.SendText(context.Background(), "bela", "5511988887777", "oi"))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSendTextDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, `{"message":"instance not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewEvolutionClient(EvolutionConfig{BaseURL: srv.URL, APIKey: "k", MaxRetries: 3, Backoff: time.Millisecond})
	require.NoError(t, err)
	err = client.SendText(context.Background(), "nope", "5511988887777", "oi")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestNewEvolutionClientValidates(t *testing.T) {
	_, err := NewEvolutionClient(EvolutionConfig{APIKey: "k"})
	assert.Error(t, err)
	_, err = NewEvolutionClient(EvolutionConfig{BaseURL: "http://x"})
	assert.Error(t, err)

	client, err := NewEvolutionClient(EvolutionConfig{BaseURL: "http://x", APIKey: "k"})
	require.NoError(t, err)
	assert.Error(t, client.SendText(context.Background(), "bela", "", "oi"))
	assert.Error(t, client.SendText(context.Background(), "bela", "5511988887777", "  "))
}
