// Package storage persists metadata-only audit records of tool calls.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// EventWriter is the interface for writing call events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *CallEvent)
	Close()
}

// CallEvent is the audit record of one tool call. It never carries argument
// values or CRM data; arguments are reduced to a hash and a size.
type CallEvent struct {
	RequestID string
	Timestamp time.Time
	Tool      string
	Method    string // empty when dispatch failed
	Builder   string
	Transport string // "http", "mcp" or "cli"
	Outcome   string // "ok" or an error code
	// HTTPStatus is the envelope status returned to the caller.
	HTTPStatus uint16
	// UpstreamStatus is the Bitrix24 status, 0 when no response arrived.
	UpstreamStatus uint16
	ArgsHash       string // SHA256 of the canonical JSON arguments
	ArgsSize       uint32
	LatencyMs      float32
}

// HashArgs returns the hex SHA256 and byte size of the JSON encoding of args.
// encoding/json sorts map keys, so equal bags hash equally.
func HashArgs(args map[string]any) (string, uint32) {
	if args == nil {
		args = map[string]any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", 0
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), uint32(len(b))
}
