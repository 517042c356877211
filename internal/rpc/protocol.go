package rpc

import (
	"encoding/json"

	apperrors "github.com/huguei/zonemaster-backend/internal/errors"
)

// request is one JSON-RPC 2.0 call envelope.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// response is one JSON-RPC 2.0 reply envelope.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 codes plus the application range.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603

	codeNotFound          = -32000
	codeNotReady          = -32001
	codeInvalidTransition = -32002
	codeStorage           = -32003
	codeConflict          = -32004
)

func errorResponse(id json.RawMessage, code int, message string) response {
	return response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: message},
	}
}

// errorResponseFromErr maps an application error onto the wire taxonomy.
func errorResponseFromErr(id json.RawMessage, err error) response {
	code := codeInternalError
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		code = codeInvalidParams
	case apperrors.ErrCodeNotFound:
		code = codeNotFound
	case apperrors.ErrCodeNotReady:
		code = codeNotReady
	case apperrors.ErrCodeInvalidTransition:
		code = codeInvalidTransition
	case apperrors.ErrCodeStorage:
		code = codeStorage
	case apperrors.ErrCodeConflict:
		code = codeConflict
	}

	e := &rpcError{Code: code, Message: err.Error()}
	if field := apperrors.GetField(err); field != "" {
		e.Data = map[string]string{"field": field}
	}
	return response{JSONRPC: "2.0", ID: id, Error: e}
}
