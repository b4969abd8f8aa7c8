package lightclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/headlight-network/headlight/x/lightclient/store"
)

const (
	flowHeaderRange = "header_range"
	flowRotate      = "rotate"
)

// Coordinator implements the header-range and rotate request/commit
// protocols against the light client state. Every entry point executes as a
// single indivisible step under one mutex, mirroring the atomic-transaction
// model the protocol was designed for. A precondition failure aborts the
// whole call with no state change.
type Coordinator struct {
	mu sync.Mutex

	state   *store.State
	gateway ProofGateway
	emitter Emitter
	auth    Authorizer
	metrics *Metrics
	log     zerolog.Logger

	gasBudget uint64
}

// New constructs a Coordinator over the given state and gateway.
func New(log zerolog.Logger, state *store.State, gateway ProofGateway, opts ...Option) (*Coordinator, error) {
	if state == nil {
		return nil, fmt.Errorf("state is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}

	cfg := coordinatorConfig{GasBudget: DefaultGasBudget}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := log.With().Str("component", "lightclient").Logger()

	if cfg.Emitter == nil {
		cfg.Emitter = NewLogEmitter(logger)
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = NewAllowList()
	}

	var m *Metrics
	if cfg.MetricsEnabled {
		m = NewMetrics()
	}

	return &Coordinator{
		state:     state,
		gateway:   gateway,
		emitter:   cfg.Emitter,
		auth:      cfg.Authorizer,
		metrics:   m,
		log:       logger,
		gasBudget: cfg.GasBudget,
	}, nil
}

// RequestHeaderRange asks the gateway to prove the header chain from
// trustedHeight up to requestedHeight under the given authority set, and
// arranges for CommitHeaderRange to run once the proof is verified. The
// payment is forwarded unconditionally and is not recoverable, even if no
// matching callback ever arrives.
//
// If the trusted block is an epoch-end block, authoritySetID must be the
// next epoch's set id.
func (c *Coordinator) RequestHeaderRange(
	ctx context.Context,
	trustedHeight uint32,
	authoritySetID uint64,
	requestedHeight uint32,
	payment *big.Int,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	trustedHash, authorityHash, err := c.validateHeaderRange(trustedHeight, authoritySetID, requestedHeight)
	if err != nil {
		c.recordRequest(flowHeaderRange, "rejected")
		return err
	}

	input := EncodeHeaderRangeInput(trustedHeight, trustedHash, authoritySetID, authorityHash, requestedHeight)
	callback := CallbackDescriptor{
		Target:  CallbackCommitHeaderRange,
		Payload: EncodeHeaderRangeCallback(trustedHeight, authoritySetID, requestedHeight),
	}

	cfg := c.state.Configuration()
	if err := c.gateway.RequestCall(ctx, cfg.HeaderRangeFunctionID, input, callback, c.gasBudget, payment); err != nil {
		c.recordRequest(flowHeaderRange, "gateway_error")
		return fmt.Errorf("request header range proof: %w", err)
	}

	c.recordRequest(flowHeaderRange, "submitted")
	c.emitter.HeaderRangeRequested(HeaderRangeRequestedEvent{
		TrustedHeight:     trustedHeight,
		TrustedHeaderHash: trustedHash,
		AuthoritySetID:    authoritySetID,
		AuthorityHash:     authorityHash,
		RequestedHeight:   requestedHeight,
	})

	c.log.Debug().
		Uint32("trusted_height", trustedHeight).
		Uint64("authority_set_id", authoritySetID).
		Uint32("requested_height", requestedHeight).
		Msg("header range proof requested")

	return nil
}

// CommitHeaderRange finalizes a header-range request. It runs only through
// the gateway's authorized callback path; auth is the capability minted for
// the currently executing callback.
//
// All preconditions are re-checked against current state and the canonical
// input is re-derived from store-resident hashes, never from callback
// values. A stale or duplicate callback racing an advanced head fails here
// with ErrInvalidRange; an input that does not match what the gateway
// verified fails the verified-output fetch with ErrProofUnverified.
func (c *Coordinator) CommitHeaderRange(
	ctx context.Context,
	auth CallbackAuth,
	trustedHeight uint32,
	authoritySetID uint64,
	targetHeight uint32,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	trustedHash, authorityHash, err := c.validateHeaderRange(trustedHeight, authoritySetID, targetHeight)
	if err != nil {
		c.recordCommitFailure(flowHeaderRange, err)
		return err
	}

	input := EncodeHeaderRangeInput(trustedHeight, trustedHash, authoritySetID, authorityHash, targetHeight)

	cfg := c.state.Configuration()
	out, err := c.gateway.VerifiedOutput(ctx, auth, cfg.HeaderRangeFunctionID, input)
	if err != nil {
		c.recordCommitFailure(flowHeaderRange, ErrProofUnverified)
		return fmt.Errorf("%w: header range (%d, %d): %v", ErrProofUnverified, trustedHeight, targetHeight, err)
	}

	targetHash, stateRoot, dataRoot, err := DecodeHeaderRangeOutput(out)
	if err != nil {
		c.recordCommitFailure(flowHeaderRange, ErrProofUnverified)
		return fmt.Errorf("%w: %v", ErrProofUnverified, err)
	}

	err = c.state.ApplyCommit(trustedHeight, targetHeight, targetHash, store.Commitment{
		DataRoot:  dataRoot,
		StateRoot: stateRoot,
	})
	if err != nil {
		c.recordCommitFailure(flowHeaderRange, ErrInvalidRange)
		return fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}

	c.metrics.RecordCommit(flowHeaderRange, "committed")
	c.metrics.RecordHead(targetHeight, targetHeight-trustedHeight)

	c.emitter.HeadUpdated(HeadUpdatedEvent{
		TargetHeight:     targetHeight,
		TargetHeaderHash: targetHash,
	})
	c.emitter.CommitmentStored(CommitmentStoredEvent{
		TrustedHeight: trustedHeight,
		TargetHeight:  targetHeight,
		DataRoot:      dataRoot,
		StateRoot:     stateRoot,
	})

	c.log.Info().
		Uint32("trusted_height", trustedHeight).
		Uint32("target_height", targetHeight).
		Str("target_header_hash", targetHash.Hex()).
		Msg("header range committed")

	return nil
}

// RequestNextAuthoritySetID asks the gateway to prove the authority set
// rotation at epochEndHeight and arranges for AddNextAuthoritySetID to run
// once the proof is verified. An epoch end equal to the current head is
// permitted. The payment is forwarded unconditionally.
func (c *Coordinator) RequestNextAuthoritySetID(
	ctx context.Context,
	epochEndHeight uint32,
	currentAuthoritySetID uint64,
	payment *big.Int,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epochEndHeight < c.state.Head() {
		c.recordRequest(flowRotate, "rejected")
		return fmt.Errorf("%w: epoch end %d below head %d", ErrInvalidRange, epochEndHeight, c.state.Head())
	}
	authorityHash, ok := c.state.AuthoritySetHash(currentAuthoritySetID)
	if !ok {
		c.recordRequest(flowRotate, "rejected")
		return fmt.Errorf("%w: authority set %d", ErrNotFound, currentAuthoritySetID)
	}

	input := EncodeRotateInput(currentAuthoritySetID, authorityHash, epochEndHeight)
	callback := CallbackDescriptor{
		Target:  CallbackAddNextAuthoritySetID,
		Payload: EncodeRotateCallback(currentAuthoritySetID, epochEndHeight),
	}

	cfg := c.state.Configuration()
	if err := c.gateway.RequestCall(ctx, cfg.RotateFunctionID, input, callback, c.gasBudget, payment); err != nil {
		c.recordRequest(flowRotate, "gateway_error")
		return fmt.Errorf("request rotate proof: %w", err)
	}

	c.recordRequest(flowRotate, "submitted")
	c.emitter.RotateRequested(RotateRequestedEvent{
		CurrentAuthoritySetID: currentAuthoritySetID,
		CurrentAuthorityHash:  authorityHash,
		EpochEndHeight:        epochEndHeight,
	})

	c.log.Debug().
		Uint64("current_authority_set_id", currentAuthoritySetID).
		Uint32("epoch_end_height", epochEndHeight).
		Msg("rotate proof requested")

	return nil
}

// AddNextAuthoritySetID finalizes a rotate request. Callback-only, like
// CommitHeaderRange. The registry stays append-only: a second verified
// result for the same current set id is rejected once id+1 is recorded.
func (c *Coordinator) AddNextAuthoritySetID(
	ctx context.Context,
	auth CallbackAuth,
	currentAuthoritySetID uint64,
	epochEndHeight uint32,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	authorityHash, ok := c.state.AuthoritySetHash(currentAuthoritySetID)
	if !ok {
		c.recordCommitFailure(flowRotate, ErrNotFound)
		return fmt.Errorf("%w: authority set %d", ErrNotFound, currentAuthoritySetID)
	}
	if _, ok := c.state.AuthoritySetHash(currentAuthoritySetID + 1); ok {
		c.recordCommitFailure(flowRotate, ErrInvalidRange)
		return fmt.Errorf("%w: authority set %d already recorded", ErrInvalidRange, currentAuthoritySetID+1)
	}

	input := EncodeRotateInput(currentAuthoritySetID, authorityHash, epochEndHeight)

	cfg := c.state.Configuration()
	out, err := c.gateway.VerifiedOutput(ctx, auth, cfg.RotateFunctionID, input)
	if err != nil {
		c.recordCommitFailure(flowRotate, ErrProofUnverified)
		return fmt.Errorf("%w: rotate for set %d: %v", ErrProofUnverified, currentAuthoritySetID, err)
	}

	newAuthorityHash, err := DecodeRotateOutput(out)
	if err != nil {
		c.recordCommitFailure(flowRotate, ErrProofUnverified)
		return fmt.Errorf("%w: %v", ErrProofUnverified, err)
	}

	if err := c.state.PutAuthoritySet(currentAuthoritySetID+1, newAuthorityHash); err != nil {
		c.recordCommitFailure(flowRotate, ErrInvalidRange)
		return fmt.Errorf("%w: %v", ErrInvalidRange, err)
	}

	c.metrics.RecordCommit(flowRotate, "committed")
	c.metrics.RecordAuthoritySet(currentAuthoritySetID + 1)

	c.emitter.AuthoritySetStored(AuthoritySetStoredEvent{
		NewSetID:         currentAuthoritySetID + 1,
		NewAuthorityHash: newAuthorityHash,
		EpochEndHeight:   epochEndHeight,
	})

	c.log.Info().
		Uint64("new_set_id", currentAuthoritySetID+1).
		Str("new_authority_hash", newAuthorityHash.Hex()).
		Msg("authority set rotated")

	return nil
}

// validateHeaderRange checks the header-range preconditions shared by the
// request and commit paths and returns the store-resident hashes the
// canonical input is built from.
func (c *Coordinator) validateHeaderRange(
	trustedHeight uint32,
	authoritySetID uint64,
	requestedHeight uint32,
) (trustedHash, authorityHash common.Hash, err error) {
	trustedHash, ok := c.state.HeaderHash(trustedHeight)
	if !ok {
		return common.Hash{}, common.Hash{}, fmt.Errorf("%w: header at height %d", ErrNotFound, trustedHeight)
	}
	authorityHash, ok = c.state.AuthoritySetHash(authoritySetID)
	if !ok {
		return common.Hash{}, common.Hash{}, fmt.Errorf("%w: authority set %d", ErrNotFound, authoritySetID)
	}
	if requestedHeight <= trustedHeight {
		return common.Hash{}, common.Hash{}, fmt.Errorf("%w: requested height %d not beyond trusted height %d",
			ErrInvalidRange, requestedHeight, trustedHeight)
	}
	if requestedHeight-trustedHeight > MaxHeaderRange {
		return common.Hash{}, common.Hash{}, fmt.Errorf("%w: range (%d, %d) exceeds %d blocks",
			ErrInvalidRange, trustedHeight, requestedHeight, MaxHeaderRange)
	}
	if requestedHeight <= c.state.Head() {
		return common.Hash{}, common.Hash{}, fmt.Errorf("%w: requested height %d does not advance head %d",
			ErrInvalidRange, requestedHeight, c.state.Head())
	}
	return trustedHash, authorityHash, nil
}

func (c *Coordinator) recordRequest(flow, status string) {
	c.metrics.RecordRequest(flow, status)
}

func (c *Coordinator) recordCommitFailure(flow string, reason error) {
	c.metrics.RecordCommit(flow, "rejected")
	c.metrics.RecordCallbackFailure(flow, failureReason(reason))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRange):
		return "invalid_range"
	case errors.Is(err, ErrProofUnverified):
		return "proof_unverified"
	default:
		return "other"
	}
}

// Bootstrap seeds genesis state. Privileged.
func (c *Coordinator) Bootstrap(
	caller string,
	height uint32,
	headerHash common.Hash,
	authoritySetID uint64,
	authorityHash common.Hash,
) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.auth.Authorize(caller); err != nil {
		return err
	}
	if err := c.state.Bootstrap(height, headerHash, authoritySetID, authorityHash); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	c.metrics.RecordHead(height, 0)
	c.metrics.RecordAuthoritySet(authoritySetID)

	c.log.Info().
		Uint32("genesis_height", height).
		Uint64("authority_set_id", authoritySetID).
		Msg("light client bootstrapped")
	return nil
}

// SetGatewayID updates the gateway endpoint identity. Privileged.
func (c *Coordinator) SetGatewayID(caller, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.auth.Authorize(caller); err != nil {
		return err
	}
	c.state.SetGatewayID(id)
	return nil
}

// SetHeaderRangeFunctionID updates the header-range proof program id.
// Privileged.
func (c *Coordinator) SetHeaderRangeFunctionID(caller string, id common.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.auth.Authorize(caller); err != nil {
		return err
	}
	c.state.SetHeaderRangeFunctionID(id)
	return nil
}

// SetRotateFunctionID updates the rotate proof program id. Privileged.
func (c *Coordinator) SetRotateFunctionID(caller string, id common.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.auth.Authorize(caller); err != nil {
		return err
	}
	c.state.SetRotateFunctionID(id)
	return nil
}

// State exposes the underlying store for read queries.
func (c *Coordinator) State() *store.State {
	return c.state
}
