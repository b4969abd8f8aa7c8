package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/headlight-network/headlight/x/gateway"
	"github.com/headlight-network/headlight/x/lightclient"
	"github.com/headlight-network/headlight/x/lightclient/store"
)

var (
	headerRangeFn = common.HexToHash("0x" + strings.Repeat("01", 32))
	rotateFn      = common.HexToHash("0x" + strings.Repeat("02", 32))

	genesisHeader    = common.HexToHash("0x" + strings.Repeat("aa", 32))
	genesisAuthority = common.HexToHash("0x" + strings.Repeat("bb", 32))
)

func newTestServer(t *testing.T, bootstrapped bool) (*httptest.Server, *store.State, *gateway.Fake) {
	t.Helper()

	state := store.NewState(store.Config{
		GatewayID:             "test-gateway",
		HeaderRangeFunctionID: headerRangeFn,
		RotateFunctionID:      rotateFn,
	})
	if bootstrapped {
		require.NoError(t, state.Bootstrap(100, genesisHeader, 1, genesisAuthority))
	}

	fake := gateway.NewFake()
	coordinator, err := lightclient.New(
		zerolog.New(io.Discard),
		state,
		fake,
		lightclient.WithAuthorizer(lightclient.NewAllowList("admin")),
	)
	require.NoError(t, err)

	router := mux.NewRouter()
	NewHandler(coordinator, zerolog.New(io.Discard)).RegisterMux(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, state, fake
}

func getJSON(t *testing.T, srv *httptest.Server, path string, wantStatus int) map[string]any {
	t.Helper()

	res, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, wantStatus, res.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

func postJSON(t *testing.T, srv *httptest.Server, path, adminKey string, payload any, wantStatus int) map[string]any {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+path, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if adminKey != "" {
		req.Header.Set("X-Admin-Key", adminKey)
	}

	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, wantStatus, res.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

func TestHandler_Head(t *testing.T) {
	srv, _, _ := newTestServer(t, true)

	body := getJSON(t, srv, "/v1/head", http.StatusOK)
	require.Equal(t, float64(100), body["head"])
	require.Equal(t, genesisHeader.Hex(), body["header_hash"])
}

func TestHandler_Header(t *testing.T) {
	srv, _, _ := newTestServer(t, true)

	body := getJSON(t, srv, "/v1/headers/100", http.StatusOK)
	require.Equal(t, genesisHeader.Hex(), body["header_hash"])

	getJSON(t, srv, "/v1/headers/101", http.StatusNotFound)

	res, err := srv.Client().Get(srv.URL + "/v1/headers/notanumber")
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestHandler_AuthoritySet(t *testing.T) {
	srv, _, _ := newTestServer(t, true)

	body := getJSON(t, srv, "/v1/authority-sets/1", http.StatusOK)
	require.Equal(t, genesisAuthority.Hex(), body["authority_hash"])

	getJSON(t, srv, "/v1/authority-sets/2", http.StatusNotFound)
}

func TestHandler_Commitment(t *testing.T) {
	srv, state, _ := newTestServer(t, true)

	dataRoot := common.HexToHash("0x" + strings.Repeat("dd", 32))
	stateRoot := common.HexToHash("0x" + strings.Repeat("ee", 32))
	require.NoError(t, state.PutCommitment(100, 300, store.Commitment{
		DataRoot:  dataRoot,
		StateRoot: stateRoot,
	}))

	body := getJSON(t, srv, "/v1/commitments/100/300", http.StatusOK)
	require.Equal(t, dataRoot.Hex(), body["data_root"])
	require.Equal(t, stateRoot.Hex(), body["state_root"])
	require.Equal(t, store.RangeKey(100, 300).Hex(), body["range_key"])

	getJSON(t, srv, "/v1/commitments/100/301", http.StatusNotFound)
}

func TestHandler_RequestHeaderRange(t *testing.T) {
	srv, _, fake := newTestServer(t, true)

	body := postJSON(t, srv, "/v1/requests/header-range", "", map[string]any{
		"trusted_height":   100,
		"authority_set_id": 1,
		"requested_height": 300,
		"payment":          "1000",
	}, http.StatusAccepted)
	require.Equal(t, "requested", body["status"])

	req, ok := fake.LastRequest()
	require.True(t, ok)
	require.Equal(t, headerRangeFn, req.FunctionID)
	require.Equal(t, "1000", req.Payment.String())
}

func TestHandler_RequestHeaderRange_Errors(t *testing.T) {
	srv, _, fake := newTestServer(t, true)

	// unknown trusted height
	postJSON(t, srv, "/v1/requests/header-range", "", map[string]any{
		"trusted_height":   99,
		"authority_set_id": 1,
		"requested_height": 300,
	}, http.StatusNotFound)

	// range bound exceeded
	postJSON(t, srv, "/v1/requests/header-range", "", map[string]any{
		"trusted_height":   100,
		"authority_set_id": 1,
		"requested_height": 400,
	}, http.StatusConflict)

	// negative payment
	postJSON(t, srv, "/v1/requests/header-range", "", map[string]any{
		"trusted_height":   100,
		"authority_set_id": 1,
		"requested_height": 300,
		"payment":          "-5",
	}, http.StatusBadRequest)

	require.Empty(t, fake.Requests())
}

func TestHandler_RequestRotate(t *testing.T) {
	srv, _, fake := newTestServer(t, true)

	body := postJSON(t, srv, "/v1/requests/rotate", "", map[string]any{
		"epoch_end_height":         100,
		"current_authority_set_id": 1,
	}, http.StatusAccepted)
	require.Equal(t, "requested", body["status"])

	req, ok := fake.LastRequest()
	require.True(t, ok)
	require.Equal(t, rotateFn, req.FunctionID)

	postJSON(t, srv, "/v1/requests/rotate", "", map[string]any{
		"epoch_end_height":         99,
		"current_authority_set_id": 1,
	}, http.StatusConflict)
}

func TestHandler_AdminBootstrap(t *testing.T) {
	srv, state, _ := newTestServer(t, false)

	payload := map[string]any{
		"height":           100,
		"header_hash":      genesisHeader.Hex(),
		"authority_set_id": 1,
		"authority_hash":   genesisAuthority.Hex(),
	}

	postJSON(t, srv, "/v1/admin/bootstrap", "", payload, http.StatusForbidden)
	require.False(t, state.Bootstrapped())

	body := postJSON(t, srv, "/v1/admin/bootstrap", "admin", payload, http.StatusOK)
	require.Equal(t, "bootstrapped", body["status"])
	require.True(t, state.Bootstrapped())
	require.Equal(t, uint32(100), state.Head())

	// malformed hash
	bad := map[string]any{
		"height":           100,
		"header_hash":      "0x1234",
		"authority_set_id": 1,
		"authority_hash":   genesisAuthority.Hex(),
	}
	postJSON(t, srv, "/v1/admin/bootstrap", "admin", bad, http.StatusBadRequest)
}

func TestHandler_AdminConfig(t *testing.T) {
	srv, state, _ := newTestServer(t, true)

	newFn := common.HexToHash("0x" + strings.Repeat("09", 32))
	payload := map[string]any{
		"gateway_id":               "gateway-2",
		"header_range_function_id": newFn.Hex(),
		"rotate_function_id":       newFn.Hex(),
	}

	postJSON(t, srv, "/v1/admin/config", "intruder", payload, http.StatusForbidden)
	require.Equal(t, "test-gateway", state.Configuration().GatewayID)

	body := postJSON(t, srv, "/v1/admin/config", "admin", payload, http.StatusOK)
	require.Equal(t, "updated", body["status"])

	cfg := state.Configuration()
	require.Equal(t, "gateway-2", cfg.GatewayID)
	require.Equal(t, newFn, cfg.HeaderRangeFunctionID)
	require.Equal(t, newFn, cfg.RotateFunctionID)
}
