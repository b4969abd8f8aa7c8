// Package gateway connects the light client coordinator to a remote
// proof-verification gateway. Requests travel out over the gateway's REST
// API; verified results come back through an authenticated callback, and
// are fetchable exactly once while that callback executes.
package gateway

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/headlight-network/headlight/x/lightclient"
)

var _ lightclient.ProofGateway = (*Gateway)(nil)

// Gateway implements lightclient.ProofGateway over the remote gateway REST
// API. The verified-output side is backed by the callback window: a result
// exists only while the matching authorized callback is executing, and is
// consumed by the first successful fetch.
type Gateway struct {
	client *Client
	window *resultWindow
	log    zerolog.Logger
}

// New constructs a Gateway for the given endpoint.
func New(endpoint, bearerToken string, httpClient *http.Client, log zerolog.Logger) (*Gateway, error) {
	client, err := NewClient(endpoint, bearerToken, httpClient, log)
	if err != nil {
		return nil, err
	}
	return &Gateway{
		client: client,
		window: newResultWindow(),
		log:    log.With().Str("component", "proof-gateway").Logger(),
	}, nil
}

// RequestCall submits an asynchronous proof request. The payment is
// consumed regardless of the eventual proof outcome.
func (g *Gateway) RequestCall(
	ctx context.Context,
	functionID common.Hash,
	input []byte,
	callback lightclient.CallbackDescriptor,
	gasLimit uint64,
	payment *big.Int,
) error {
	return g.client.RequestCall(ctx, functionID, input, callback, gasLimit, payment)
}

// VerifiedOutput returns the result the gateway verified for exactly this
// function id and input, provided auth belongs to the currently executing
// callback. Each result is single-use.
func (g *Gateway) VerifiedOutput(
	_ context.Context,
	auth lightclient.CallbackAuth,
	functionID common.Hash,
	input []byte,
) ([]byte, error) {
	return g.window.fetch(auth, functionID, input)
}

// resultWindow holds the single verified result of the callback currently
// in flight. begin installs it and mints the capability token; fetch hands
// it out once for a matching (token, function id, input) triple; end tears
// the window down when the callback returns.
type resultWindow struct {
	mu sync.Mutex

	active     bool
	token      string
	functionID common.Hash
	inputHash  common.Hash
	output     []byte
	consumed   bool
}

func newResultWindow() *resultWindow {
	return &resultWindow{}
}

func (w *resultWindow) begin(functionID common.Hash, input, output []byte) (lightclient.CallbackAuth, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active {
		return lightclient.CallbackAuth{}, fmt.Errorf("a callback is already executing")
	}

	w.active = true
	w.token = uuid.NewString()
	w.functionID = functionID
	w.inputHash = crypto.Keccak256Hash(input)
	w.output = output
	w.consumed = false

	return lightclient.NewCallbackAuth(w.token), nil
}

func (w *resultWindow) fetch(auth lightclient.CallbackAuth, functionID common.Hash, input []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active {
		return nil, fmt.Errorf("no authorized callback is executing")
	}
	if auth.Token() != w.token {
		return nil, fmt.Errorf("callback capability does not match the executing callback")
	}
	if w.consumed {
		return nil, fmt.Errorf("verified output already consumed")
	}
	if functionID != w.functionID || crypto.Keccak256Hash(input) != w.inputHash {
		return nil, fmt.Errorf("no verified result for the requested function id and input")
	}

	w.consumed = true
	return w.output, nil
}

func (w *resultWindow) end(token string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.active || token != w.token {
		return
	}
	w.active = false
	w.token = ""
	w.functionID = common.Hash{}
	w.inputHash = common.Hash{}
	w.output = nil
	w.consumed = false
}
