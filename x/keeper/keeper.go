// Package keeper drives the light client forward without external
// prompting: on a fixed cadence it asks the coordinator to extend the
// head by a configured step, the way an operator process would.
package keeper

import (
	"context"
	"errors"
	"math"
	"math/big"
	"time"

	"github.com/rs/zerolog"

	"github.com/headlight-network/headlight/x/lightclient"
	"github.com/headlight-network/headlight/x/lightclient/store"
)

// Requester is the slice of the coordinator surface the keeper drives.
type Requester interface {
	RequestHeaderRange(ctx context.Context, trustedHeight uint32, authoritySetID uint64,
		requestedHeight uint32, payment *big.Int) error
}

// Keeper periodically submits header-range requests targeting head + step.
// Each attempt is best effort: rejected requests are logged and the next
// tick tries again from whatever the head is then.
type Keeper struct {
	// Log and lifecycle
	log     zerolog.Logger
	cancel  context.CancelFunc
	started bool
	// Collaborators
	requester Requester
	state     *store.State
	// Pacing
	interval time.Duration
	step     uint32
	payment  *big.Int
}

// New constructs a Keeper over the coordinator and its state.
func New(cfg KeeperConfig, requester Requester, state *store.State) *Keeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	step := cfg.Step
	if step == 0 {
		step = DefaultStep
	}
	if step > lightclient.MaxHeaderRange {
		step = lightclient.MaxHeaderRange
	}
	payment := cfg.Payment
	if payment == nil {
		payment = new(big.Int)
	}

	return &Keeper{
		log:       cfg.Logger,
		requester: requester,
		state:     state,
		interval:  cfg.Interval,
		step:      step,
		payment:   payment,
	}
}

// Start begins submitting requests until the context is canceled or Stop is called.
func (k *Keeper) Start(ctx context.Context) error {
	if k.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	k.cancel = cancel
	k.started = true

	go k.run(runCtx)
	return nil
}

// Stop halts the keeper.
func (k *Keeper) Stop(context.Context) error {
	if !k.started {
		return nil
	}

	k.started = false
	if k.cancel != nil {
		k.cancel()
		k.cancel = nil
	}
	return nil
}

func (k *Keeper) run(ctx context.Context) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.tick(ctx)
		}
	}
}

// tick submits one header-range request from the current head. A request
// already in flight for the same target surfaces as a rejection on commit,
// not here, so overlapping attempts are harmless.
func (k *Keeper) tick(ctx context.Context) {
	if !k.state.Bootstrapped() {
		k.log.Debug().Msg("skipping tick, state not bootstrapped")
		return
	}

	head := k.state.Head()
	setID, _, ok := k.state.LatestAuthoritySet()
	if !ok {
		k.log.Debug().Msg("skipping tick, no authority set recorded")
		return
	}

	if head > math.MaxUint32-k.step {
		k.log.Warn().Uint32("head", head).Msg("head too close to height ceiling, not requesting")
		return
	}
	target := head + k.step

	err := k.requester.RequestHeaderRange(ctx, head, setID, target, k.payment)
	switch {
	case err == nil:
		k.log.Info().
			Uint32("trusted_height", head).
			Uint64("authority_set_id", setID).
			Uint32("requested_height", target).
			Msg("head advance requested")
	case errors.Is(err, lightclient.ErrNotFound):
		// the head's header predates this instance or the set rotated;
		// nothing to do until state catches up
		k.log.Warn().Err(err).Uint32("trusted_height", head).Msg("head advance not requestable")
	default:
		k.log.Warn().Err(err).Uint32("trusted_height", head).Msg("head advance request rejected")
	}
}
