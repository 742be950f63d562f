package types

import (
	"encoding/json"
	"strconv"
)

// FlexibleInt64 can unmarshal both string and int64 JSON values
type FlexibleInt64 int64

func (f *FlexibleInt64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*f = FlexibleInt64(i)
		return nil
	}

	var i int64
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	*f = FlexibleInt64(i)
	return nil
}

func (f FlexibleInt64) Int64() int64 {
	return int64(f)
}

// Request frame types.
const (
	FrameSendDirect = "send.direct"
	FrameSendGroup  = "send.group"
	FrameSendSync   = "send.sync"
	FramePing       = "ping"
)

// RequestFrame is written by the client for every call.
type RequestFrame struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Body json.RawMessage `json:"body,omitempty"`
}

// ResponseFrame answers the request with the same ID.
type ResponseFrame struct {
	ID     string      `json:"id"`
	Result *WireResult `json:"result,omitempty"`
	Error  *WireError  `json:"error,omitempty"`
}

// WireResult is SendResult as the relay encodes it.
type WireResult struct {
	Timestamp              FlexibleInt64 `json:"timestamp"`
	Succeeded              []string      `json:"succeeded"`
	Failed                 []WireError   `json:"failed,omitempty"`
	SealedSenderDowngrades []string      `json:"sealedSenderDowngrades,omitempty"`
}

// SendResult decodes the wire result into typed per-target errors.
func (w *WireResult) SendResult() *SendResult {
	if w == nil {
		return &SendResult{}
	}
	result := &SendResult{
		Timestamp:              w.Timestamp.Int64(),
		Succeeded:              append([]string(nil), w.Succeeded...),
		SealedSenderDowngrades: append([]string(nil), w.SealedSenderDowngrades...),
	}
	for _, f := range w.Failed {
		result.Failed = append(result.Failed, TargetError{Target: f.Target, Err: f.Err()})
	}
	return result
}

// NewWireResult encodes a SendResult for the wire.
func NewWireResult(r *SendResult) *WireResult {
	if r == nil {
		return &WireResult{}
	}
	w := &WireResult{
		Timestamp:              FlexibleInt64(r.Timestamp),
		Succeeded:              r.Succeeded,
		SealedSenderDowngrades: r.SealedSenderDowngrades,
	}
	for _, f := range r.Failed {
		w.Failed = append(w.Failed, ToWire(f.Target, f.Err))
	}
	return w
}
