package ecobee_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/mutker/ecobee-exporter/internal/ecobee"
	"codeberg.org/mutker/ecobee-exporter/internal/extract"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T, handler http.HandlerFunc) (*ecobee.HTTPClient, clockwork.FakeClock) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC))
	client, err := ecobee.NewHTTPClient(ecobee.Config{
		APIKey:  "test-api-key",
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	}, clock)
	require.NoError(t, err)

	return client, clock
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestAuthorize(t *testing.T) {
	client, clock := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/authorize", r.URL.Path)
		assert.Equal(t, "ecobeePin", r.URL.Query().Get("response_type"))
		assert.Equal(t, "test-api-key", r.URL.Query().Get("client_id"))
		assert.Equal(t, "smartRead", r.URL.Query().Get("scope"))

		writeJSON(w, http.StatusOK, map[string]any{
			"ecobeePin":  "bv29",
			"code":       "auth-code-1",
			"scope":      "smartRead",
			"expires_in": 9,
			"interval":   30,
		})
	})

	auth, err := client.Authorize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bv29", auth.Pin)
	assert.Equal(t, "auth-code-1", auth.Code)
	assert.Equal(t, clock.Now().Add(9*time.Minute), auth.ExpiresAt)
	assert.Equal(t, 30*time.Second, auth.Interval)
}

func TestRequestTokens(t *testing.T) {
	client, clock := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "ecobeePin", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "auth-code-1", r.URL.Query().Get("code"))
		assert.Equal(t, "test-api-key", r.URL.Query().Get("client_id"))

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-1",
			"token_type":    "Bearer",
			"expires_in":    3599,
			"refresh_token": "refresh-1",
			"scope":         "smartRead",
		})
	})

	tokens, err := client.RequestTokens(context.Background(), "auth-code-1")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tokens.AccessToken)
	assert.Equal(t, "refresh-1", tokens.RefreshToken)
	assert.Equal(t, clock.Now().Add(3599*time.Second), tokens.AccessTokenExpiresAt)
	assert.Equal(t, clock.Now().Add(365*24*time.Hour), tokens.RefreshTokenExpiresAt)
}

func TestRefresh(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "refresh-1", r.URL.Query().Get("code"))

		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "access-2",
			"expires_in":    3599,
			"refresh_token": "refresh-2",
		})
	})

	tokens, err := client.Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", tokens.AccessToken)
	assert.Equal(t, "refresh-2", tokens.RefreshToken)
}

func TestTokenErrorEnvelope(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "authorization_pending",
			"error_description": "Waiting for user to authorize application.",
		})
	})

	_, err := client.RequestTokens(context.Background(), "auth-code-1")
	require.Error(t, err)

	var remoteErr *ecobee.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusBadRequest, remoteErr.Status)
	assert.Equal(t, "authorization_pending: Waiting for user to authorize application.", remoteErr.Message)
}

func TestListRegistered(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1/thermostatSummary", r.URL.Path)
		assert.Equal(t, "Bearer access-1", r.Header.Get("Authorization"))

		var query struct {
			Selection map[string]any `json:"selection"`
		}
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("json")), &query))
		assert.Equal(t, "registered", query.Selection["selectionType"])
		assert.Equal(t, true, query.Selection["includeEquipmentStatus"])

		writeJSON(w, http.StatusOK, map[string]any{
			"thermostatCount": 2,
			"statusList":      []string{"318324702718:", "411111111111:fan,compCool1"},
			"status":          map[string]any{"code": 0, "message": ""},
		})
	})

	ids, err := client.ListRegistered(context.Background(), "access-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"318324702718", "411111111111"}, ids)
}

func TestDataStatusError(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status": map[string]any{"code": 14, "message": "Authentication token has expired."},
		})
	})

	_, err := client.ListRegistered(context.Background(), "stale")
	var remoteErr *ecobee.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusInternalServerError, remoteErr.Status)
	assert.Equal(t, "code 14: Authentication token has expired.", remoteErr.Message)
}

func TestEmbeddedStatusErrorOnOK(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": map[string]any{"code": 3, "message": "Processing error."},
		})
	})

	_, err := client.FetchDetail(context.Background(), "access-1", "318324702718")
	var remoteErr *ecobee.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "code 3: Processing error.", remoteErr.Message)
}

func TestFetchDetail(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/1/thermostat", r.URL.Path)

		var query struct {
			Selection map[string]any `json:"selection"`
		}
		require.NoError(t, json.Unmarshal([]byte(r.URL.Query().Get("json")), &query))
		assert.Equal(t, "thermostats", query.Selection["selectionType"])
		assert.Equal(t, "318324702718", query.Selection["selectionMatch"])
		assert.Equal(t, true, query.Selection["includeRuntime"])
		assert.Equal(t, true, query.Selection["includeSensors"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
		  "thermostatList": [{
		    "identifier": "318324702718",
		    "name": "Living Room",
		    "equipmentStatus": "fan,compCool1",
		    "brand": "ecobee",
		    "runtime": {"desiredHeatRange": [450, 790], "desiredCoolRange": [680, 720], "connected": true},
		    "remoteSensors": [{
		      "id": "ei:0",
		      "name": "Living Room",
		      "capability": [
		        {"id": "1", "type": "temperature", "value": "715"},
		        {"id": "2", "type": "humidity", "value": "41"},
		        {"id": "3", "type": "occupancy", "value": "true"}
		      ]
		    }]
		  }],
		  "status": {"code": 0, "message": ""}
		}`))
	})

	thermostat, err := client.FetchDetail(context.Background(), "access-1", "318324702718")
	require.NoError(t, err)
	assert.Equal(t, "Living Room", thermostat.Name)
	require.NotNil(t, thermostat.EquipmentStatus)
	assert.Equal(t, "fan,compCool1", *thermostat.EquipmentStatus)
	require.NotNil(t, thermostat.Runtime)
	assert.Equal(t, []int{680, 720}, thermostat.Runtime.DesiredCoolRange)
	assert.Equal(t, []int{450, 790}, thermostat.Runtime.DesiredHeatRange)
	require.Len(t, thermostat.RemoteSensors, 1)
	assert.Len(t, thermostat.RemoteSensors[0].Capability, 3)
}

func TestFetchDetailEmptyList(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"thermostatList": []any{},
			"status":         map[string]any{"code": 0},
		})
	})

	_, err := client.FetchDetail(context.Background(), "access-1", "318324702718")
	var remoteErr *ecobee.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Contains(t, remoteErr.Message, "not returned")
}

func TestFetchDetailKeepsGoodBlocksWhenRuntimeIsMalformed(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
		  "thermostatList": [{
		    "identifier": "318324702718",
		    "name": "Living Room",
		    "equipmentStatus": "fan",
		    "runtime": {"desiredCoolRange": "broken"},
		    "remoteSensors": [{
		      "name": "Living Room",
		      "capability": [
		        {"type": "temperature", "value": 715},
		        {"type": "occupancy", "value": true}
		      ]
		    }]
		  }],
		  "status": {"code": 0, "message": ""}
		}`))
	})

	thermostat, err := client.FetchDetail(context.Background(), "access-1", "318324702718")
	require.NoError(t, err)
	assert.Nil(t, thermostat.Runtime)
	assert.Contains(t, thermostat.Malformed[ecobee.FieldRuntime], "desiredCoolRange")
	require.NotNil(t, thermostat.EquipmentStatus)
	require.Len(t, thermostat.RemoteSensors, 1)
	assert.Equal(t, "715", thermostat.RemoteSensors[0].Capability[0].Value)
	assert.Equal(t, "true", thermostat.RemoteSensors[0].Capability[1].Value)

	results := map[string]int{}
	for _, e := range extract.Default() {
		obs, err := e.Extract(thermostat)
		if err != nil {
			results[e.Name] = -1
			continue
		}
		results[e.Name] = len(obs)
	}
	assert.Equal(t, map[string]int{"equipment": 3, "setpoints": -1, "sensors": 2}, results)
}

func TestFetchDetailMalformedBlocks(t *testing.T) {
	tests := []struct {
		name  string
		entry string
		field string
	}{
		{name: "numeric equipment status", entry: `{"name": "A", "equipmentStatus": 3}`, field: ecobee.FieldEquipmentStatus},
		{name: "runtime not an object", entry: `{"name": "A", "runtime": [1, 2]}`, field: ecobee.FieldRuntime},
		{name: "range with text element", entry: `{"name": "A", "runtime": {"desiredHeatRange": [450, "x"]}}`, field: ecobee.FieldRuntime},
		{name: "sensors not an array", entry: `{"name": "A", "remoteSensors": {}}`, field: ecobee.FieldRemoteSensors},
		{name: "capability not an array", entry: `{"name": "A", "remoteSensors": [{"name": "s", "capability": "x"}]}`, field: ecobee.FieldRemoteSensors},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"thermostatList": [` + tt.entry + `], "status": {"code": 0}}`))
			})

			thermostat, err := client.FetchDetail(context.Background(), "access-1", "1")
			require.NoError(t, err)
			assert.Equal(t, "A", thermostat.Name)
			assert.Len(t, thermostat.Malformed, 1)
			assert.NotEmpty(t, thermostat.Malformed[tt.field])
		})
	}
}

func TestFetchDetailNullBlocksAreAbsent(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"thermostatList": [{"name": "A", "runtime": null, "equipmentStatus": null}], "status": {"code": 0}}`))
	})

	thermostat, err := client.FetchDetail(context.Background(), "access-1", "1")
	require.NoError(t, err)
	assert.Nil(t, thermostat.Runtime)
	assert.Nil(t, thermostat.EquipmentStatus)
	assert.Empty(t, thermostat.Malformed)
}

func TestFetchDetailNonObjectEntry(t *testing.T) {
	client, _ := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"thermostatList": ["oops"], "status": {"code": 0}}`))
	})

	_, err := client.FetchDetail(context.Background(), "access-1", "1")
	var remoteErr *ecobee.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Contains(t, remoteErr.Message, "decode thermostat")
}

func TestTransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := ecobee.NewHTTPClient(ecobee.Config{
		APIKey:  "k",
		BaseURL: url,
		Timeout: time.Second,
	}, clockwork.NewFakeClock())
	require.NoError(t, err)

	_, err = client.Authorize(context.Background())
	var remoteErr *ecobee.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, 0, remoteErr.Status)
}

func TestTimeoutIsRemoteError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client, err := ecobee.NewHTTPClient(ecobee.Config{
		APIKey:  "k",
		BaseURL: server.URL,
		Timeout: 50 * time.Millisecond,
	}, clockwork.NewFakeClock())
	require.NoError(t, err)

	_, err = client.Refresh(context.Background(), "refresh-1")
	var remoteErr *ecobee.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, 0, remoteErr.Status)
}

func TestConfigValidate(t *testing.T) {
	cfg := ecobee.DefaultConfig()
	assert.Error(t, cfg.Validate(), "API key is required")

	cfg.APIKey = "k"
	assert.NoError(t, cfg.Validate())

	cfg.Timeout = 0
	assert.Error(t, cfg.Validate())
}
