package gateway

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/headlight-network/headlight/x/lightclient"
)

var _ lightclient.ProofGateway = (*Fake)(nil)

// FakeRequest is a recorded RequestCall invocation.
type FakeRequest struct {
	FunctionID common.Hash
	Input      []byte
	Callback   lightclient.CallbackDescriptor
	GasLimit   uint64
	Payment    *big.Int
}

// Fake is a deterministic in-memory gateway for tests. Stage verified
// results with SetOutput, then drive the callback path with Deliver; the
// result is fetchable exactly once while the delivered callback runs.
type Fake struct {
	mu       sync.Mutex
	requests []FakeRequest
	outputs  map[common.Hash][]byte

	window *resultWindow
}

// NewFake returns an empty fake gateway.
func NewFake() *Fake {
	return &Fake{
		outputs: make(map[common.Hash][]byte),
		window:  newResultWindow(),
	}
}

func resultKey(functionID common.Hash, input []byte) common.Hash {
	return crypto.Keccak256Hash(functionID.Bytes(), input)
}

// RequestCall records the request and succeeds.
func (f *Fake) RequestCall(
	_ context.Context,
	functionID common.Hash,
	input []byte,
	callback lightclient.CallbackDescriptor,
	gasLimit uint64,
	payment *big.Int,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, FakeRequest{
		FunctionID: functionID,
		Input:      append([]byte(nil), input...),
		Callback:   callback,
		GasLimit:   gasLimit,
		Payment:    payment,
	})
	return nil
}

// VerifiedOutput serves the result staged for the currently delivered
// callback.
func (f *Fake) VerifiedOutput(
	_ context.Context,
	auth lightclient.CallbackAuth,
	functionID common.Hash,
	input []byte,
) ([]byte, error) {
	return f.window.fetch(auth, functionID, input)
}

// SetOutput stages a verified result for a (function id, input) pair.
func (f *Fake) SetOutput(functionID common.Hash, input, output []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs[resultKey(functionID, input)] = append([]byte(nil), output...)
}

// Deliver simulates the gateway invoking the authorized callback for the
// staged (function id, input) result. invoke receives the minted capability
// and must call the coordinator entry point under test.
func (f *Fake) Deliver(
	functionID common.Hash,
	input []byte,
	invoke func(auth lightclient.CallbackAuth) error,
) error {
	f.mu.Lock()
	output, ok := f.outputs[resultKey(functionID, input)]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("no staged output for function %s", functionID.Hex())
	}

	auth, err := f.window.begin(functionID, input, output)
	if err != nil {
		return err
	}
	defer f.window.end(auth.Token())

	return invoke(auth)
}

// Requests returns the recorded RequestCall invocations.
func (f *Fake) Requests() []FakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// LastRequest returns the most recent recorded request.
func (f *Fake) LastRequest() (FakeRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return FakeRequest{}, false
	}
	return f.requests[len(f.requests)-1], true
}
