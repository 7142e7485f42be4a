package restclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahmedsaleh747/go-creative-utils/pkg/common"
)

type note struct{ kind, title, message string }

type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *recordingNotifier) Notify(kind, title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{kind, title, message})
}

func (n *recordingNotifier) all() []note {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]note(nil), n.notes...)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *TokenGate, *recordingNotifier, *int) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gate := NewTokenGate("secret")
	expired := 0
	gate.OnExpire = func() { expired++ }
	notifier := &recordingNotifier{}
	return New(server.URL, gate, WithNotifier(notifier), WithHTTPClient(server.Client())), gate, notifier, &expired
}

func TestClientSendsCredentialAndRequestID(t *testing.T) {
	var got *http.Request
	var gotBody map[string]interface{}
	client, _, _, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			if len(data) > 0 {
				_ = json.Unmarshal(data, &gotBody)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[],"total":0}`))
	})

	resp, err := client.Get(context.Background(), "/api/players", url.Values{"page": {"2"}, "sort": {"name asc"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Bearer secret", got.Header.Get("Authorization"))
	_, err = uuid.Parse(got.Header.Get("X-Request-ID"))
	assert.NoError(t, err, "request id must be a uuid")
	assert.Equal(t, "2", got.URL.Query().Get("page"))
	assert.Equal(t, "name asc", got.URL.Query().Get("sort"))

	var decoded struct {
		Total int `json:"total"`
	}
	require.NoError(t, resp.Decode(&decoded))

	_, err = client.Do(context.Background(), http.MethodPost, "/api/players", map[string]interface{}{"name": "x"})
	require.NoError(t, err)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, map[string]interface{}{"name": "x"}, gotBody)
}

func TestClientWithoutCredential(t *testing.T) {
	calls := 0
	client, gate, _, expired := newTestClient(t, func(w http.ResponseWriter, r *http.Request) { calls++ })
	gate.SetToken("")

	_, err := client.Get(context.Background(), "/api/players", nil)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Equal(t, 1, *expired)
	assert.Zero(t, calls, "no request is sent without a credential")
}

func TestClientStatusHandling(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantErr   error
		wantCode  int
		expires   bool
		notifyErr bool
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized, 0, true, false},
		{"forbidden", http.StatusForbidden, ErrUnauthorized, 0, true, false},
		{"server error", http.StatusInternalServerError, nil, 500, false, true},
		{"not found", http.StatusNotFound, nil, 404, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, gate, notifier, expired := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"success":false}`))
			})

			_, err := client.Get(context.Background(), "/api/players", nil)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantCode != 0 {
				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, tt.wantCode, statusErr.Code)
				assert.Equal(t, `{"success":false}`, statusErr.Body)
			}

			_, hasToken := gate.Token()
			assert.Equal(t, tt.expires, !hasToken)
			assert.Equal(t, tt.expires, *expired == 1)

			notes := notifier.all()
			if tt.notifyErr {
				require.Len(t, notes, 1)
				assert.Equal(t, NotifyError, notes[0].kind)
			} else {
				assert.Empty(t, notes)
			}
		})
	}
}

func TestClientEmptyBodyNotifiesSuccess(t *testing.T) {
	client, _, notifier, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	resp, err := client.Get(context.Background(), "/api/players/1/retire", nil)
	require.NoError(t, err)
	assert.False(t, resp.Stopped)
	assert.Equal(t, []note{{NotifySuccess, "Success!", "Request sent successfully!"}}, notifier.all())
}

func TestClientDispatchesActions(t *testing.T) {
	body := ""
	client, _, notifier, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
	refreshed := 0
	client.dispatcher.(*DefaultDispatcher).OnRefresh = func(context.Context) { refreshed++ }

	body = `{"action":"Toast","message":"Record deleted"}`
	resp, err := client.Do(context.Background(), http.MethodDelete, "/api/players/1", nil)
	require.NoError(t, err)
	assert.False(t, resp.Stopped)
	assert.Equal(t, []note{{NotifySuccess, "Success!", "Record deleted"}}, notifier.all())

	notifier.notes = nil
	body = `{"actions":[{"action":"Toast","message":"one"},{"action":"Refresh"},{"action":"Toast","message":"two"}]}`
	resp, err = client.Get(context.Background(), "/api/players/1/retire", nil)
	require.NoError(t, err)
	assert.True(t, resp.Stopped)
	assert.Equal(t, 1, refreshed)
	assert.Equal(t, []note{{NotifySuccess, "Success!", "one"}}, notifier.all(), "actions after Refresh do not run")

	notifier.notes = nil
	body = `{"items":[{"name":"x"}],"total":1}`
	resp, err = client.Get(context.Background(), "/api/players", nil)
	require.NoError(t, err)
	assert.False(t, resp.Stopped)
	assert.Empty(t, notifier.all())
}

func TestDefaultDispatcher(t *testing.T) {
	var redirected string
	d := &DefaultDispatcher{OnRedirect: func(_ context.Context, url string) { redirected = url }}

	assert.True(t, d.Dispatch(context.Background(), actionOf("Redirect", "https://example.com")))
	assert.Equal(t, "https://example.com", redirected)
	assert.True(t, d.Dispatch(context.Background(), actionOf("Refresh", "")))
	assert.False(t, d.Dispatch(context.Background(), actionOf("Dialog", "")))
	assert.False(t, d.Dispatch(context.Background(), actionOf("Toast", "")))
	assert.False(t, d.Dispatch(context.Background(), actionOf("Explode", "")))
}

func actionOf(kind, url string) common.Action {
	return common.Action{Action: kind, URL: url}
}
