package mcp

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// ExecutionToken is the opaque, nonzero integer identifying one in-flight
// tool invocation. It is returned to the tool callback and required by
// SubmitToolMessage/IsExecutionCancelled.
type ExecutionToken uint64

// TokenGenerator is the pluggable execution-token policy: the one point
// where the token scheme can be swapped without touching dispatch. It is
// given the transport_msg_id that triggered the tools/call and must
// return a nonzero token.
type TokenGenerator interface {
	Generate(transportMsgID int64) ExecutionToken
}

// TransportMsgIDGenerator is the v1 policy: the token equals the transport
// message id verbatim. It is predictable — appropriate for firmware
// deployments where every caller is trusted, and useful in tests that want
// deterministic token values — but a misbehaving callback can guess another
// callback's token.
type TransportMsgIDGenerator struct{}

func (TransportMsgIDGenerator) Generate(transportMsgID int64) ExecutionToken {
	if transportMsgID == 0 {
		return 1
	}
	return ExecutionToken(transportMsgID)
}

// UUIDTokenGenerator is the v2, recommended-for-production policy: a random
// 128-bit value folded into 64 bits, so a misbehaving tool callback cannot
// predict or guess another callback's token.
type UUIDTokenGenerator struct{}

func (UUIDTokenGenerator) Generate(int64) ExecutionToken {
	id := uuid.New()
	token := binary.BigEndian.Uint64(id[:8]) ^ binary.BigEndian.Uint64(id[8:])
	if token == 0 {
		token = 1
	}
	return ExecutionToken(token)
}
