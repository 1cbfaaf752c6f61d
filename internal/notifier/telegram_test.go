package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramNotifyDelivers(t *testing.T) {
	var gotPath string
	var gotBody sendMessageRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := NewTelegram(map[Channel]Route{
		ChannelAdmin: {BotToken: "test-token", ChatID: "4242"},
	}).WithAPIBase(srv.URL)

	tg.Notify(context.Background(), ChannelAdmin, "deposit dep-1 failed: member not found")

	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, "4242", gotBody.ChatID)
	assert.Equal(t, "deposit dep-1 failed: member not found", gotBody.Text)
}

func TestTelegramNotifySwallowsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	tg := NewTelegram(map[Channel]Route{
		ChannelMarket: {BotToken: "tok", ChatID: "1"},
	}).WithAPIBase(srv.URL)

	// Must not panic or propagate anything.
	tg.Notify(context.Background(), ChannelMarket, "hello")
}

func TestTelegramNotifySkipsUnconfiguredChannel(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	tg := NewTelegram(map[Channel]Route{}).WithAPIBase(srv.URL)
	tg.Notify(context.Background(), ChannelAdmin, "nobody is listening")

	assert.False(t, called)
}
