package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifierPostsEmbeds(t *testing.T) {
	var got []DiscordMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var msg DiscordMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		got = append(got, msg)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewNotifier(server.URL, server.URL)
	require.NoError(t, n.Success(context.Background(), "2 dates processed"))
	require.NoError(t, n.Error(context.Background(), "NDVI failed"))

	require.Len(t, got, 2)
	assert.Equal(t, colorGreen, got[0].Embeds[0].Color)
	assert.Equal(t, "2 dates processed", got[0].Embeds[0].Description)
	assert.Equal(t, colorRed, got[1].Embeds[0].Color)
	assert.Contains(t, got[1].Embeds[0].Description, "NDVI failed")
}

func TestNotifierStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	err := NewNotifier(server.URL, "").Error(context.Background(), "boom")
	assert.ErrorContains(t, err, "429")
}

func TestNotifierDisabled(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	n := NewNotifier("", "")
	assert.NoError(t, n.Success(context.Background(), "done"))
	assert.NoError(t, n.Error(context.Background(), "boom"))

	var nilNotifier *Notifier
	assert.NoError(t, nilNotifier.Success(context.Background(), "done"))
	assert.False(t, called)
}
