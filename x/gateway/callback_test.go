package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/headlight-network/headlight/x/lightclient"
)

// stubCoordinator records dispatched entry points and optionally verifies
// the minted capability against the gateway window.
type stubCoordinator struct {
	gw *Gateway

	commitErr error
	rotateErr error

	commits []struct {
		trusted uint32
		setID   uint64
		target  uint32
	}
	rotates []struct {
		setID    uint64
		epochEnd uint32
	}

	fetched []byte
}

func (s *stubCoordinator) CommitHeaderRange(ctx context.Context, auth lightclient.CallbackAuth,
	trustedHeight uint32, authoritySetID uint64, targetHeight uint32) error {
	s.commits = append(s.commits, struct {
		trusted uint32
		setID   uint64
		target  uint32
	}{trustedHeight, authoritySetID, targetHeight})

	if s.gw != nil {
		input := lightclient.EncodeHeaderRangeInput(trustedHeight, testFn, authoritySetID, otherFn, targetHeight)
		out, err := s.gw.VerifiedOutput(ctx, auth, testFn, input)
		if err != nil {
			return err
		}
		s.fetched = out
	}
	return s.commitErr
}

func (s *stubCoordinator) AddNextAuthoritySetID(_ context.Context, _ lightclient.CallbackAuth,
	currentAuthoritySetID uint64, epochEndHeight uint32) error {
	s.rotates = append(s.rotates, struct {
		setID    uint64
		epochEnd uint32
	}{currentAuthoritySetID, epochEndHeight})
	return s.rotateErr
}

func newCallbackFixture(t *testing.T, coordinator *stubCoordinator, bearerToken string) (*httptest.Server, *Gateway) {
	t.Helper()

	gw, err := New("http://gateway.local", "", nil, zerolog.New(io.Discard))
	require.NoError(t, err)
	coordinator.gw = gw

	handler := NewCallbackHandler(gw, coordinator, bearerToken, zerolog.New(io.Discard))
	router := mux.NewRouter()
	handler.RegisterMux(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, gw
}

func postCallback(t *testing.T, srv *httptest.Server, bearerToken string, body callbackBody) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/gateway/callback", bytes.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+bearerToken)
	}

	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { res.Body.Close() })
	return res
}

func headerRangeCallbackBody() callbackBody {
	input := lightclient.EncodeHeaderRangeInput(100, testFn, 1, otherFn, 300)
	return callbackBody{
		RequestID:       "req-1",
		FunctionID:      testFn.Hex(),
		Input:           hexutil.Encode(input),
		Output:          hexutil.Encode(testOut),
		CallbackTarget:  string(lightclient.CallbackCommitHeaderRange),
		CallbackPayload: hexutil.Encode(lightclient.EncodeHeaderRangeCallback(100, 1, 300)),
	}
}

func TestCallbackHandler_CommitHeaderRange(t *testing.T) {
	coordinator := &stubCoordinator{}
	srv, _ := newCallbackFixture(t, coordinator, "")

	res := postCallback(t, srv, "", headerRangeCallbackBody())
	require.Equal(t, http.StatusOK, res.StatusCode)

	require.Len(t, coordinator.commits, 1)
	require.Equal(t, uint32(100), coordinator.commits[0].trusted)
	require.Equal(t, uint64(1), coordinator.commits[0].setID)
	require.Equal(t, uint32(300), coordinator.commits[0].target)

	// the verified output was live inside the dispatch
	require.Equal(t, testOut, coordinator.fetched)
}

func TestCallbackHandler_AddNextAuthoritySetID(t *testing.T) {
	coordinator := &stubCoordinator{}
	srv, _ := newCallbackFixture(t, coordinator, "")
	coordinator.gw = nil

	body := callbackBody{
		RequestID:       "req-2",
		FunctionID:      otherFn.Hex(),
		Input:           hexutil.Encode(lightclient.EncodeRotateInput(1, testFn, 300)),
		Output:          hexutil.Encode(testFn.Bytes()),
		CallbackTarget:  string(lightclient.CallbackAddNextAuthoritySetID),
		CallbackPayload: hexutil.Encode(lightclient.EncodeRotateCallback(1, 300)),
	}
	res := postCallback(t, srv, "", body)
	require.Equal(t, http.StatusOK, res.StatusCode)

	require.Len(t, coordinator.rotates, 1)
	require.Equal(t, uint64(1), coordinator.rotates[0].setID)
	require.Equal(t, uint32(300), coordinator.rotates[0].epochEnd)
}

func TestCallbackHandler_BearerAuth(t *testing.T) {
	coordinator := &stubCoordinator{}
	srv, _ := newCallbackFixture(t, coordinator, "hook-secret")
	coordinator.gw = nil

	res := postCallback(t, srv, "", headerRangeCallbackBody())
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)

	res = postCallback(t, srv, "wrong", headerRangeCallbackBody())
	require.Equal(t, http.StatusUnauthorized, res.StatusCode)
	require.Empty(t, coordinator.commits)

	res = postCallback(t, srv, "hook-secret", headerRangeCallbackBody())
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, coordinator.commits, 1)
}

func TestCallbackHandler_RejectsMalformedBodies(t *testing.T) {
	coordinator := &stubCoordinator{}
	srv, _ := newCallbackFixture(t, coordinator, "")
	coordinator.gw = nil

	t.Run("invalid json", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/gateway/callback", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		res, err := srv.Client().Do(req)
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("short function id", func(t *testing.T) {
		body := headerRangeCallbackBody()
		body.FunctionID = "0x0102"
		res := postCallback(t, srv, "", body)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("non-hex input", func(t *testing.T) {
		body := headerRangeCallbackBody()
		body.Input = "not-hex"
		res := postCallback(t, srv, "", body)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("unknown target", func(t *testing.T) {
		body := headerRangeCallbackBody()
		body.CallbackTarget = "mint_tokens"
		res := postCallback(t, srv, "", body)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("truncated payload", func(t *testing.T) {
		body := headerRangeCallbackBody()
		body.CallbackPayload = hexutil.Encode([]byte{0x01, 0x02})
		res := postCallback(t, srv, "", body)
		require.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	require.Empty(t, coordinator.commits)
	require.Empty(t, coordinator.rotates)
}

func TestCallbackHandler_MapsCoordinatorErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", lightclient.ErrNotFound, http.StatusNotFound},
		{"invalid range", lightclient.ErrInvalidRange, http.StatusConflict},
		{"proof unverified", lightclient.ErrProofUnverified, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coordinator := &stubCoordinator{commitErr: tt.err}
			srv, _ := newCallbackFixture(t, coordinator, "")
			coordinator.gw = nil

			res := postCallback(t, srv, "", headerRangeCallbackBody())
			require.Equal(t, tt.wantStatus, res.StatusCode)
		})
	}
}

func TestCallbackHandler_WindowTornDownAfterDispatch(t *testing.T) {
	coordinator := &stubCoordinator{}
	srv, gw := newCallbackFixture(t, coordinator, "")

	res := postCallback(t, srv, "", headerRangeCallbackBody())
	require.Equal(t, http.StatusOK, res.StatusCode)

	// nothing left to fetch once the callback has returned
	input := lightclient.EncodeHeaderRangeInput(100, testFn, 1, otherFn, 300)
	_, err := gw.VerifiedOutput(context.Background(), lightclient.NewCallbackAuth("stale"), testFn, input)
	require.Error(t, err)

	// and the next callback can begin
	res = postCallback(t, srv, "", headerRangeCallbackBody())
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Len(t, coordinator.commits, 2)
}
