package lightclient

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MaxHeaderRange bounds how many blocks a single header-range proof may
// extend the chain. Larger ranges make proof cost and per-call trust
// extension unbounded.
const MaxHeaderRange = 256

const (
	headerRangeInputLen  = 4 + common.HashLength + 8 + common.HashLength + 4
	headerRangeOutputLen = 3 * common.HashLength
	rotateInputLen       = 8 + common.HashLength + 4
	rotateOutputLen      = common.HashLength

	headerRangeCallbackLen = 4 + 8 + 4
	rotateCallbackLen      = 8 + 4
)

// EncodeHeaderRangeInput packs the canonical header-range proof input:
// trustedHeight (u32 BE), trustedHeaderHash, authoritySetID (u64 BE),
// authoritySetHash, requestedHeight (u32 BE). The same bytes must be derived
// at request and commit time for the verified-output fetch to succeed.
func EncodeHeaderRangeInput(
	trustedHeight uint32,
	trustedHeaderHash common.Hash,
	authoritySetID uint64,
	authoritySetHash common.Hash,
	requestedHeight uint32,
) []byte {
	input := make([]byte, 0, headerRangeInputLen)
	input = binary.BigEndian.AppendUint32(input, trustedHeight)
	input = append(input, trustedHeaderHash.Bytes()...)
	input = binary.BigEndian.AppendUint64(input, authoritySetID)
	input = append(input, authoritySetHash.Bytes()...)
	input = binary.BigEndian.AppendUint32(input, requestedHeight)
	return input
}

// EncodeRotateInput packs the canonical rotate proof input:
// currentAuthoritySetID (u64 BE), currentAuthorityHash, epochEndHeight (u32 BE).
func EncodeRotateInput(
	currentAuthoritySetID uint64,
	currentAuthorityHash common.Hash,
	epochEndHeight uint32,
) []byte {
	input := make([]byte, 0, rotateInputLen)
	input = binary.BigEndian.AppendUint64(input, currentAuthoritySetID)
	input = append(input, currentAuthorityHash.Bytes()...)
	input = binary.BigEndian.AppendUint32(input, epochEndHeight)
	return input
}

// DecodeHeaderRangeOutput splits a verified header-range output into
// (targetHeaderHash, stateRoot, dataRoot).
func DecodeHeaderRangeOutput(out []byte) (targetHeaderHash, stateRoot, dataRoot common.Hash, err error) {
	if len(out) != headerRangeOutputLen {
		return common.Hash{}, common.Hash{}, common.Hash{},
			fmt.Errorf("header range output must be %d bytes, got %d", headerRangeOutputLen, len(out))
	}
	targetHeaderHash = common.BytesToHash(out[:common.HashLength])
	stateRoot = common.BytesToHash(out[common.HashLength : 2*common.HashLength])
	dataRoot = common.BytesToHash(out[2*common.HashLength:])
	return targetHeaderHash, stateRoot, dataRoot, nil
}

// DecodeRotateOutput extracts the next authority set hash from a verified
// rotate output.
func DecodeRotateOutput(out []byte) (common.Hash, error) {
	if len(out) != rotateOutputLen {
		return common.Hash{}, fmt.Errorf("rotate output must be %d bytes, got %d", rotateOutputLen, len(out))
	}
	return common.BytesToHash(out), nil
}

// EncodeHeaderRangeCallback packs the parameters replayed to
// CommitHeaderRange by the gateway callback. Only heights and ids travel in
// the payload; hashes are re-read from the stores at commit time.
func EncodeHeaderRangeCallback(trustedHeight uint32, authoritySetID uint64, targetHeight uint32) []byte {
	payload := make([]byte, 0, headerRangeCallbackLen)
	payload = binary.BigEndian.AppendUint32(payload, trustedHeight)
	payload = binary.BigEndian.AppendUint64(payload, authoritySetID)
	payload = binary.BigEndian.AppendUint32(payload, targetHeight)
	return payload
}

// DecodeHeaderRangeCallback reverses EncodeHeaderRangeCallback.
func DecodeHeaderRangeCallback(payload []byte) (trustedHeight uint32, authoritySetID uint64, targetHeight uint32, err error) {
	if len(payload) != headerRangeCallbackLen {
		return 0, 0, 0, fmt.Errorf("header range callback payload must be %d bytes, got %d",
			headerRangeCallbackLen, len(payload))
	}
	trustedHeight = binary.BigEndian.Uint32(payload[0:4])
	authoritySetID = binary.BigEndian.Uint64(payload[4:12])
	targetHeight = binary.BigEndian.Uint32(payload[12:16])
	return trustedHeight, authoritySetID, targetHeight, nil
}

// EncodeRotateCallback packs the parameters replayed to
// AddNextAuthoritySetID by the gateway callback.
func EncodeRotateCallback(currentAuthoritySetID uint64, epochEndHeight uint32) []byte {
	payload := make([]byte, 0, rotateCallbackLen)
	payload = binary.BigEndian.AppendUint64(payload, currentAuthoritySetID)
	payload = binary.BigEndian.AppendUint32(payload, epochEndHeight)
	return payload
}

// DecodeRotateCallback reverses EncodeRotateCallback.
func DecodeRotateCallback(payload []byte) (currentAuthoritySetID uint64, epochEndHeight uint32, err error) {
	if len(payload) != rotateCallbackLen {
		return 0, 0, fmt.Errorf("rotate callback payload must be %d bytes, got %d", rotateCallbackLen, len(payload))
	}
	currentAuthoritySetID = binary.BigEndian.Uint64(payload[0:8])
	epochEndHeight = binary.BigEndian.Uint32(payload[8:12])
	return currentAuthoritySetID, epochEndHeight, nil
}
