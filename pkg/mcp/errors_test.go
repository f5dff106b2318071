package mcp

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Error(t *testing.T) {
	e := newError(KindBusy, "tool %q busy", "echo")
	assert.Equal(t, `Busy: tool "echo" busy`, e.Error())

	bare := &Error{Kind: KindInternal}
	assert.Equal(t, "Internal", bare.Error())
}

func TestError_Is(t *testing.T) {
	e := newError(KindBusy, "whatever")
	assert.True(t, errors.Is(e, ErrBusy))
	assert.False(t, errors.Is(e, ErrNotFound))
}

func TestAsError_WrapsForeignErrors(t *testing.T) {
	foreign := errors.New("boom")
	wrapped := asError(foreign)
	assert.Equal(t, KindInternal, wrapped.Kind)
	assert.Contains(t, wrapped.Msg, "boom")
}

func TestAsError_PassesThroughNil(t *testing.T) {
	assert.Nil(t, asError(nil))
}

func TestKindToRPC_Table(t *testing.T) {
	cases := []struct {
		kind    Kind
		code    int
		message string
	}{
		{KindNotFound, -32601, "Resource not found"},
		{KindPermissionDenied, -32602, "Permission denied"},
		{KindNoSpace, -32603, "Resource exhausted"},
		{KindNoMemory, -32603, "Memory allocation failed"},
		{KindAccessDenied, -32602, "Client not initialized"},
		{KindBusy, -32002, "Client is busy"},
		{KindMethodNotFound, -32601, "Method not found"},
		{KindInternal, -32603, "Internal server error"},
	}
	for _, tc := range cases {
		got := kindToRPC(tc.kind)
		assert.Equal(t, tc.code, got.code, tc.kind.String())
		assert.Equal(t, tc.message, got.message, tc.kind.String())
	}

	// NotFound and MethodNotFound share a JSON-RPC code but carry distinct
	// messages
	nf := kindToRPC(KindNotFound)
	mnf := kindToRPC(KindMethodNotFound)
	assert.Equal(t, nf.code, mnf.code)
	assert.NotEqual(t, nf.message, mnf.message)
}
