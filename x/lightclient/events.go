package lightclient

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
)

// HeaderRangeRequestedEvent is emitted when a header-range proof request is
// submitted to the gateway. No pending record is kept; correlation happens
// off-path through these fields.
type HeaderRangeRequestedEvent struct {
	TrustedHeight     uint32
	TrustedHeaderHash common.Hash
	AuthoritySetID    uint64
	AuthorityHash     common.Hash
	RequestedHeight   uint32
}

// CommitmentStoredEvent is emitted when a header-range commit records the
// roots for a height range.
type CommitmentStoredEvent struct {
	TrustedHeight uint32
	TargetHeight  uint32
	DataRoot      common.Hash
	StateRoot     common.Hash
}

// HeadUpdatedEvent is emitted when the head pointer advances.
type HeadUpdatedEvent struct {
	TargetHeight     uint32
	TargetHeaderHash common.Hash
}

// RotateRequestedEvent is emitted when a rotate proof request is submitted
// to the gateway.
type RotateRequestedEvent struct {
	CurrentAuthoritySetID uint64
	CurrentAuthorityHash  common.Hash
	EpochEndHeight        uint32
}

// AuthoritySetStoredEvent is emitted when a rotate commit records the next
// authority set.
type AuthoritySetStoredEvent struct {
	NewSetID         uint64
	NewAuthorityHash common.Hash
	EpochEndHeight   uint32
}

// Emitter receives protocol observability events.
type Emitter interface {
	HeaderRangeRequested(e HeaderRangeRequestedEvent)
	CommitmentStored(e CommitmentStoredEvent)
	HeadUpdated(e HeadUpdatedEvent)
	RotateRequested(e RotateRequestedEvent)
	AuthoritySetStored(e AuthoritySetStoredEvent)
}

var (
	_ Emitter = (*LogEmitter)(nil)
	_ Emitter = (*Recorder)(nil)
	_ Emitter = (MultiEmitter)(nil)
)

// LogEmitter writes events to the structured log.
type LogEmitter struct {
	log zerolog.Logger
}

// NewLogEmitter returns an emitter bound to the given logger.
func NewLogEmitter(log zerolog.Logger) *LogEmitter {
	return &LogEmitter{log: log.With().Str("component", "lightclient-events").Logger()}
}

func (l *LogEmitter) HeaderRangeRequested(e HeaderRangeRequestedEvent) {
	l.log.Info().
		Uint32("trusted_height", e.TrustedHeight).
		Str("trusted_header_hash", e.TrustedHeaderHash.Hex()).
		Uint64("authority_set_id", e.AuthoritySetID).
		Str("authority_hash", e.AuthorityHash.Hex()).
		Uint32("requested_height", e.RequestedHeight).
		Msg("header range requested")
}

func (l *LogEmitter) CommitmentStored(e CommitmentStoredEvent) {
	l.log.Info().
		Uint32("trusted_height", e.TrustedHeight).
		Uint32("target_height", e.TargetHeight).
		Str("data_root", e.DataRoot.Hex()).
		Str("state_root", e.StateRoot.Hex()).
		Msg("commitment stored")
}

func (l *LogEmitter) HeadUpdated(e HeadUpdatedEvent) {
	l.log.Info().
		Uint32("target_height", e.TargetHeight).
		Str("target_header_hash", e.TargetHeaderHash.Hex()).
		Msg("head updated")
}

func (l *LogEmitter) RotateRequested(e RotateRequestedEvent) {
	l.log.Info().
		Uint64("current_authority_set_id", e.CurrentAuthoritySetID).
		Str("current_authority_hash", e.CurrentAuthorityHash.Hex()).
		Uint32("epoch_end_height", e.EpochEndHeight).
		Msg("rotate requested")
}

func (l *LogEmitter) AuthoritySetStored(e AuthoritySetStoredEvent) {
	l.log.Info().
		Uint64("new_set_id", e.NewSetID).
		Str("new_authority_hash", e.NewAuthorityHash.Hex()).
		Uint32("epoch_end_height", e.EpochEndHeight).
		Msg("authority set stored")
}

// Recorder captures events in memory; used by tests and the stats surface.
type Recorder struct {
	mu sync.Mutex

	HeaderRangeRequests []HeaderRangeRequestedEvent
	Commitments         []CommitmentStoredEvent
	HeadUpdates         []HeadUpdatedEvent
	RotateRequests      []RotateRequestedEvent
	AuthoritySets       []AuthoritySetStoredEvent
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) HeaderRangeRequested(e HeaderRangeRequestedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.HeaderRangeRequests = append(r.HeaderRangeRequests, e)
}

func (r *Recorder) CommitmentStored(e CommitmentStoredEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Commitments = append(r.Commitments, e)
}

func (r *Recorder) HeadUpdated(e HeadUpdatedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.HeadUpdates = append(r.HeadUpdates, e)
}

func (r *Recorder) RotateRequested(e RotateRequestedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RotateRequests = append(r.RotateRequests, e)
}

func (r *Recorder) AuthoritySetStored(e AuthoritySetStoredEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.AuthoritySets = append(r.AuthoritySets, e)
}

// MultiEmitter fans every event out to each wrapped emitter in order.
type MultiEmitter []Emitter

func (m MultiEmitter) HeaderRangeRequested(e HeaderRangeRequestedEvent) {
	for _, em := range m {
		em.HeaderRangeRequested(e)
	}
}

func (m MultiEmitter) CommitmentStored(e CommitmentStoredEvent) {
	for _, em := range m {
		em.CommitmentStored(e)
	}
}

func (m MultiEmitter) HeadUpdated(e HeadUpdatedEvent) {
	for _, em := range m {
		em.HeadUpdated(e)
	}
}

func (m MultiEmitter) RotateRequested(e RotateRequestedEvent) {
	for _, em := range m {
		em.RotateRequested(e)
	}
}

func (m MultiEmitter) AuthoritySetStored(e AuthoritySetStoredEvent) {
	for _, em := range m {
		em.AuthoritySetStored(e)
	}
}
