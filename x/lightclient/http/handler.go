package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	apicommon "github.com/headlight-network/headlight/server/api"
	"github.com/headlight-network/headlight/x/lightclient"
	"github.com/headlight-network/headlight/x/lightclient/store"
)

// Service is the coordinator surface the HTTP handler exposes.
type Service interface {
	RequestHeaderRange(ctx context.Context, trustedHeight uint32, authoritySetID uint64,
		requestedHeight uint32, payment *big.Int) error
	RequestNextAuthoritySetID(ctx context.Context, epochEndHeight uint32,
		currentAuthoritySetID uint64, payment *big.Int) error

	Bootstrap(caller string, height uint32, headerHash common.Hash,
		authoritySetID uint64, authorityHash common.Hash) error
	SetGatewayID(caller, id string) error
	SetHeaderRangeFunctionID(caller string, id common.Hash) error
	SetRotateFunctionID(caller string, id common.Hash) error

	State() *store.State
}

// Handler serves the light client read queries and request entry points.
type Handler struct {
	svc Service
	log zerolog.Logger
}

// NewHandler builds a Handler over the coordinator.
func NewHandler(svc Service, log zerolog.Logger) *Handler {
	return &Handler{
		svc: svc,
		log: log.With().Str("component", "lightclient-http").Logger(),
	}
}

func (h *Handler) handleHead(w http.ResponseWriter, r *http.Request) {
	state := h.svc.State()
	head := state.Head()
	hash, _ := state.HeaderHash(head)

	apicommon.WriteJSON(w, http.StatusOK, map[string]any{
		"head":        head,
		"header_hash": hash.Hex(),
	})
}

func (h *Handler) handleHeader(w http.ResponseWriter, r *http.Request) {
	height, ok := parseUint32(w, r, mux.Vars(r)["height"], "height")
	if !ok {
		return
	}

	hash, found := h.svc.State().HeaderHash(height)
	if !found {
		apicommon.WriteError(w, r, http.StatusNotFound, "not_found",
			fmt.Sprintf("no header recorded at height %d", height), nil)
		return
	}

	apicommon.WriteJSON(w, http.StatusOK, map[string]any{
		"height":      height,
		"header_hash": hash.Hex(),
	})
}

func (h *Handler) handleAuthoritySet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_id", "id must be a uint64", nil)
		return
	}

	hash, found := h.svc.State().AuthoritySetHash(id)
	if !found {
		apicommon.WriteError(w, r, http.StatusNotFound, "not_found",
			fmt.Sprintf("no authority set recorded for id %d", id), nil)
		return
	}

	apicommon.WriteJSON(w, http.StatusOK, map[string]any{
		"id":             id,
		"authority_hash": hash.Hex(),
	})
}

func (h *Handler) handleCommitment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trusted, ok := parseUint32(w, r, vars["trusted"], "trusted")
	if !ok {
		return
	}
	target, ok := parseUint32(w, r, vars["target"], "target")
	if !ok {
		return
	}

	c, found := h.svc.State().Commitment(trusted, target)
	if !found {
		apicommon.WriteError(w, r, http.StatusNotFound, "not_found",
			fmt.Sprintf("no commitment recorded for range (%d, %d)", trusted, target), nil)
		return
	}

	apicommon.WriteJSON(w, http.StatusOK, map[string]any{
		"trusted_height": trusted,
		"target_height":  target,
		"range_key":      store.RangeKey(trusted, target).Hex(),
		"data_root":      c.DataRoot.Hex(),
		"state_root":     c.StateRoot.Hex(),
	})
}

type headerRangeRequest struct {
	TrustedHeight   uint32 `json:"trusted_height"`
	AuthoritySetID  uint64 `json:"authority_set_id"`
	RequestedHeight uint32 `json:"requested_height"`
	Payment         string `json:"payment"`
}

func (h *Handler) handleRequestHeaderRange(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req headerRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return
	}

	payment, ok := parsePayment(w, r, req.Payment)
	if !ok {
		return
	}

	err := h.svc.RequestHeaderRange(r.Context(), req.TrustedHeight, req.AuthoritySetID, req.RequestedHeight, payment)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	apicommon.WriteJSON(w, http.StatusAccepted, map[string]any{"status": "requested"})
}

type rotateRequest struct {
	EpochEndHeight        uint32 `json:"epoch_end_height"`
	CurrentAuthoritySetID uint64 `json:"current_authority_set_id"`
	Payment               string `json:"payment"`
}

func (h *Handler) handleRequestRotate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req rotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return
	}

	payment, ok := parsePayment(w, r, req.Payment)
	if !ok {
		return
	}

	err := h.svc.RequestNextAuthoritySetID(r.Context(), req.EpochEndHeight, req.CurrentAuthoritySetID, payment)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	apicommon.WriteJSON(w, http.StatusAccepted, map[string]any{"status": "requested"})
}

type bootstrapRequest struct {
	Height         uint32 `json:"height"`
	HeaderHash     string `json:"header_hash"`
	AuthoritySetID uint64 `json:"authority_set_id"`
	AuthorityHash  string `json:"authority_hash"`
}

func (h *Handler) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req bootstrapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return
	}

	headerHash, ok := parseHash(w, r, req.HeaderHash, "header_hash")
	if !ok {
		return
	}
	authorityHash, ok := parseHash(w, r, req.AuthorityHash, "authority_hash")
	if !ok {
		return
	}

	err := h.svc.Bootstrap(adminCaller(r), req.Height, headerHash, req.AuthoritySetID, authorityHash)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"status": "bootstrapped"})
}

type configRequest struct {
	GatewayID             *string `json:"gateway_id"`
	HeaderRangeFunctionID *string `json:"header_range_function_id"`
	RotateFunctionID      *string `json:"rotate_function_id"`
}

func (h *Handler) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_json", "failed to decode request", nil)
		return
	}

	caller := adminCaller(r)

	if req.GatewayID != nil {
		if err := h.svc.SetGatewayID(caller, *req.GatewayID); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if req.HeaderRangeFunctionID != nil {
		id, ok := parseHash(w, r, *req.HeaderRangeFunctionID, "header_range_function_id")
		if !ok {
			return
		}
		if err := h.svc.SetHeaderRangeFunctionID(caller, id); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}
	if req.RotateFunctionID != nil {
		id, ok := parseHash(w, r, *req.RotateFunctionID, "rotate_function_id")
		if !ok {
			return
		}
		if err := h.svc.SetRotateFunctionID(caller, id); err != nil {
			writeServiceError(w, r, err)
			return
		}
	}

	apicommon.WriteJSON(w, http.StatusOK, map[string]any{"status": "updated"})
}

func adminCaller(r *http.Request) string {
	return r.Header.Get("X-Admin-Key")
}

func parseUint32(w http.ResponseWriter, r *http.Request, raw, field string) (uint32, bool) {
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_"+field, field+" must be a uint32", nil)
		return 0, false
	}
	return uint32(v), true
}

func parseHash(w http.ResponseWriter, r *http.Request, raw, field string) (common.Hash, bool) {
	b, err := hexutil.Decode(raw)
	if err != nil || len(b) != common.HashLength {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_"+field,
			fmt.Sprintf("%s must be a %d-byte hex hash", field, common.HashLength), nil)
		return common.Hash{}, false
	}
	return common.BytesToHash(b), true
}

func parsePayment(w http.ResponseWriter, r *http.Request, raw string) (*big.Int, bool) {
	if raw == "" {
		return new(big.Int), true
	}
	payment, ok := new(big.Int).SetString(raw, 10)
	if !ok || payment.Sign() < 0 {
		apicommon.WriteError(w, r, http.StatusBadRequest, "invalid_payment",
			"payment must be a non-negative decimal wei amount", nil)
		return nil, false
	}
	return payment, true
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lightclient.ErrNotFound):
		apicommon.WriteError(w, r, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, lightclient.ErrInvalidRange):
		apicommon.WriteError(w, r, http.StatusConflict, "invalid_range", err.Error(), nil)
	case errors.Is(err, lightclient.ErrProofUnverified):
		apicommon.WriteError(w, r, http.StatusConflict, "proof_unverified", err.Error(), nil)
	case errors.Is(err, lightclient.ErrUnauthorized):
		apicommon.WriteError(w, r, http.StatusForbidden, "unauthorized", err.Error(), nil)
	default:
		apicommon.WriteError(w, r, http.StatusInternalServerError, "internal_error", err.Error(), nil)
	}
}
