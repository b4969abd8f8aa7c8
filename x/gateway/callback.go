package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apicommon "github.com/headlight-network/headlight/server/api"
	"github.com/headlight-network/headlight/x/lightclient"
)

// Coordinator is the slice of the light client surface the callback
// dispatcher drives.
type Coordinator interface {
	CommitHeaderRange(ctx context.Context, auth lightclient.CallbackAuth,
		trustedHeight uint32, authoritySetID uint64, targetHeight uint32) error
	AddNextAuthoritySetID(ctx context.Context, auth lightclient.CallbackAuth,
		currentAuthoritySetID uint64, epochEndHeight uint32) error
}

// CallbackHandler terminates the gateway's verified-result channel. Each
// authenticated callback installs its verified output in the gateway's
// result window, mints the capability token, and drives the matching
// coordinator entry point; the window is torn down when the entry point
// returns, so the output is fetchable only inside that call.
type CallbackHandler struct {
	gw          *Gateway
	coordinator Coordinator
	bearerToken string
	log         zerolog.Logger
}

// NewCallbackHandler wires the handler to a gateway and coordinator.
func NewCallbackHandler(gw *Gateway, coordinator Coordinator, bearerToken string, log zerolog.Logger) *CallbackHandler {
	return &CallbackHandler{
		gw:          gw,
		coordinator: coordinator,
		bearerToken: bearerToken,
		log:         log.With().Str("component", "gateway-callback").Logger(),
	}
}

// RegisterMux mounts the callback route.
func (h *CallbackHandler) RegisterMux(r *mux.Router) {
	r.HandleFunc("/gateway/callback", h.handleCallback).Methods(http.MethodPost)
}

type callbackBody struct {
	RequestID       string `json:"request_id"`
	FunctionID      string `json:"function_id"`
	Input           string `json:"input"`
	Output          string `json:"output"`
	CallbackTarget  string `json:"callback_target"`
	CallbackPayload string `json:"callback_payload"`
}

func (h *CallbackHandler) handleCallback(w http.ResponseWriter, r *http.Request) {
	if !h.authenticated(r) {
		apicommon.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "callback authentication failed", nil)
		return
	}

	defer r.Body.Close()

	var body callbackBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode callback", nil)
		return
	}

	functionIDBytes, err := hexutil.Decode(body.FunctionID)
	if err != nil || len(functionIDBytes) != common.HashLength {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_function_id", "expect 32-byte function id", nil)
		return
	}
	functionID := common.BytesToHash(functionIDBytes)

	input, err := hexutil.Decode(body.Input)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_input", "input must be hex", nil)
		return
	}
	output, err := hexutil.Decode(body.Output)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_output", "output must be hex", nil)
		return
	}
	payload, err := hexutil.Decode(body.CallbackPayload)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_callback_payload", "payload must be hex", nil)
		return
	}

	auth, err := h.gw.window.begin(functionID, input, output)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusConflict, "callback_in_flight", err.Error(), nil)
		return
	}
	defer h.gw.window.end(auth.Token())

	err = h.dispatch(r.Context(), auth, lightclient.CallbackTarget(body.CallbackTarget), payload)
	if err != nil {
		h.log.Warn().
			Err(err).
			Str("request_id", body.RequestID).
			Str("callback_target", body.CallbackTarget).
			Msg("callback rejected")
		apicommon.WriteError(w, r, callbackStatus(err), "callback_rejected", err.Error(), nil)
		return
	}

	h.log.Info().
		Str("request_id", body.RequestID).
		Str("callback_target", body.CallbackTarget).
		Msg("callback committed")
	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"status": "committed"})
}

func (h *CallbackHandler) dispatch(
	ctx context.Context,
	auth lightclient.CallbackAuth,
	target lightclient.CallbackTarget,
	payload []byte,
) error {
	switch target {
	case lightclient.CallbackCommitHeaderRange:
		trustedHeight, authoritySetID, targetHeight, err := lightclient.DecodeHeaderRangeCallback(payload)
		if err != nil {
			return err
		}
		return h.coordinator.CommitHeaderRange(ctx, auth, trustedHeight, authoritySetID, targetHeight)

	case lightclient.CallbackAddNextAuthoritySetID:
		currentAuthoritySetID, epochEndHeight, err := lightclient.DecodeRotateCallback(payload)
		if err != nil {
			return err
		}
		return h.coordinator.AddNextAuthoritySetID(ctx, auth, currentAuthoritySetID, epochEndHeight)

	default:
		return errors.New("unknown callback target " + string(target))
	}
}

func (h *CallbackHandler) authenticated(r *http.Request) bool {
	if h.bearerToken == "" {
		return true
	}
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(h.bearerToken)) == 1
}

func callbackStatus(err error) int {
	switch {
	case errors.Is(err, lightclient.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lightclient.ErrInvalidRange):
		return http.StatusConflict
	case errors.Is(err, lightclient.ErrProofUnverified):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}
