package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu      sync.Mutex
	sent    []map[string]interface{}
	offsets []float64
	updates [][]Update
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var params map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&params)
		f.mu.Lock()
		defer f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/botTOKEN/getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"relay","username":"relay_bot"}}`))
		case "/botTOKEN/sendMessage":
			f.sent = append(f.sent, params)
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":9,"chat":{"id":42,"type":"private"},"date":0}}`))
		case "/botTOKEN/getUpdates":
			f.offsets = append(f.offsets, params["offset"].(float64))
			var batch []Update
			if len(f.updates) > 0 {
				batch, f.updates = f.updates[0], f.updates[1:]
			}
			raw, _ := json.Marshal(batch)
			if batch == nil {
				raw = []byte("[]")
			}
			_, _ = w.Write([]byte(`{"ok":true,"result":` + string(raw) + `}`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
		}
	})
}

func TestClient_GetMeAndSendMessage(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	c, err := NewClient("TOKEN", srv.URL, srv.Client())
	require.NoError(t, err)

	me, err := c.GetMe(context.Background())
	require.NoError(t, err)
	require.Equal(t, "relay_bot", me.Username)

	require.NoError(t, c.SendMessage(context.Background(), "42", "hello"))
	require.NoError(t, c.SendMessage(context.Background(), "@news", "hi all"))
	require.Len(t, api.sent, 2)
	require.Equal(t, float64(42), api.sent[0]["chat_id"])
	require.Equal(t, "@news", api.sent[1]["chat_id"])
}

func TestClient_APIError(t *testing.T) {
	api := &fakeAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	c, err := NewClient("WRONG", srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = c.GetMe(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, 401, apiErr.Code)
	require.NotContains(t, err.Error(), "WRONG")
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(" ", "", nil)
	require.Error(t, err)
}

func TestPoller_AdvancesOffset(t *testing.T) {
	api := &fakeAPI{updates: [][]Update{
		{{UpdateID: 10, Message: &Message{Text: "a", Chat: Chat{ID: 1}}}, {UpdateID: 11, Message: &Message{Text: "b", Chat: Chat{ID: 1}}}},
		{{UpdateID: 12, Message: &Message{Text: "c", Chat: Chat{ID: 1}}}},
	}}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	c, err := NewClient("TOKEN", srv.URL, srv.Client())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []string
	done := make(chan error, 1)
	go func() {
		done <- NewPoller(c, time.Second).Run(ctx, func(ctx context.Context, u Update) error {
			got = append(got, u.Message.Text)
			if len(got) == 3 {
				cancel()
			}
			return nil
		})
	}()
	require.NoError(t, <-done)
	require.Equal(t, []string{"a", "b", "c"}, got)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.GreaterOrEqual(t, len(api.offsets), 2)
	require.Equal(t, float64(0), api.offsets[0])
	require.Equal(t, float64(12), api.offsets[1])
}
