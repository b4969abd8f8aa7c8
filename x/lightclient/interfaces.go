package lightclient

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CallbackTarget names the coordinator entry point a gateway callback is
// routed to.
type CallbackTarget string

const (
	// CallbackCommitHeaderRange routes to Coordinator.CommitHeaderRange.
	CallbackCommitHeaderRange CallbackTarget = "commit_header_range"
	// CallbackAddNextAuthoritySetID routes to Coordinator.AddNextAuthoritySetID.
	CallbackAddNextAuthoritySetID CallbackTarget = "add_next_authority_set_id"
)

// CallbackDescriptor tells the gateway which entry point to invoke once a
// matching proof has been verified, and with which replayed parameters.
// The payload carries heights and ids only; hashes are always re-read from
// the stores when the callback executes.
type CallbackDescriptor struct {
	Target  CallbackTarget
	Payload []byte
}

// CallbackAuth is the capability token threaded from the gateway's callback
// dispatch into the commit logic. Holding a token proves nothing by itself;
// the gateway honors only the token minted for the currently executing
// callback, and only for the exact function id and input it verified.
type CallbackAuth struct {
	token string
}

// NewCallbackAuth wraps a gateway-issued token.
func NewCallbackAuth(token string) CallbackAuth {
	return CallbackAuth{token: token}
}

// Token returns the opaque token value.
func (a CallbackAuth) Token() string {
	return a.token
}

// ProofGateway is the external proof-verification collaborator.
//
// RequestCall is asynchronous; the attached payment is consumed regardless
// of the eventual proof outcome. VerifiedOutput fails unless called during
// execution of the authorized callback matching exactly the function id and
// input bytes.
type ProofGateway interface {
	RequestCall(
		ctx context.Context,
		functionID common.Hash,
		input []byte,
		callback CallbackDescriptor,
		gasLimit uint64,
		payment *big.Int,
	) error

	VerifiedOutput(
		ctx context.Context,
		auth CallbackAuth,
		functionID common.Hash,
		input []byte,
	) ([]byte, error)
}

// Authorizer decides whether a caller may perform administrative
// operations. The policy is deliberately pluggable; deployments swap in
// whatever ownership scheme they run.
type Authorizer interface {
	Authorize(caller string) error
}

// AllowList authorizes a static set of caller identities.
type AllowList struct {
	callers map[string]struct{}
}

var _ Authorizer = (*AllowList)(nil)

// NewAllowList builds an allow-list from caller identities. Empty entries
// are ignored.
func NewAllowList(callers ...string) *AllowList {
	set := make(map[string]struct{}, len(callers))
	for _, c := range callers {
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	return &AllowList{callers: set}
}

func (a *AllowList) Authorize(caller string) error {
	if _, ok := a.callers[caller]; !ok {
		return fmt.Errorf("%w: caller %q", ErrUnauthorized, caller)
	}
	return nil
}
