package ws_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/parley/internal/api/ws"
	redisstore "github.com/gosuda/parley/internal/store/redis"
)

type mockSubscriber struct {
	subscribeFunc func(ctx context.Context, channel string) (<-chan []byte, func(), error)
}

func (m *mockSubscriber) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	return m.subscribeFunc(ctx, channel)
}

func newServer(t *testing.T, sub ws.Subscriber) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Get("/ws/campaigns/{campaignID}", ws.NewHub(sub).ServeCampaign)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestHub_ServeCampaign_ForwardsEvents(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	events := make(chan []byte, 2)
	events <- []byte(`{"type":"campaign_started"}`)
	events <- []byte(`{"type":"message_sent"}`)

	gotChannel := make(chan string, 1)
	sub := &mockSubscriber{
		subscribeFunc: func(_ context.Context, channel string) (<-chan []byte, func(), error) {
			gotChannel <- channel
			return events, func() {}, nil
		},
	}
	srv := newServer(t, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/ws/campaigns/"+id.String()), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, first, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"campaign_started"}`, string(first))

	_, second, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"message_sent"}`, string(second))

	assert.Equal(t, redisstore.CampaignChannel(id), <-gotChannel)
}

func TestHub_ServeCampaign_ClosesWhenChannelEnds(t *testing.T) {
	t.Parallel()

	events := make(chan []byte)
	close(events)

	sub := &mockSubscriber{
		subscribeFunc: func(context.Context, string) (<-chan []byte, func(), error) {
			return events, func() {}, nil
		},
	}
	srv := newServer(t, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/ws/campaigns/"+uuid.NewString()), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestHub_ServeCampaign_SubscribeError(t *testing.T) {
	t.Parallel()

	sub := &mockSubscriber{
		subscribeFunc: func(context.Context, string) (<-chan []byte, func(), error) {
			return nil, nil, errors.New("redis down")
		},
	}
	srv := newServer(t, sub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/ws/campaigns/"+uuid.NewString()), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusInternalError, websocket.CloseStatus(err))
}

func TestHub_ServeCampaign_InvalidID(t *testing.T) {
	t.Parallel()

	srv := newServer(t, &mockSubscriber{})

	resp, err := http.Get(srv.URL + "/ws/campaigns/not-a-uuid")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
