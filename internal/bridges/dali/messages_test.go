package dali

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

// The JSON field names are the contract with Gray Logic Core; renaming
// one breaks every consumer.
func TestFrameMessageContract(t *testing.T) {
	msg := FrameMessage{
		Timestamp: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
		Direction: "rx",
		Value:     0xFE00,
		Bits:      16,
		EdgeCount: 20,
		Protocol:  ProtocolDALI,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshalling: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshalling: %v", err)
	}

	for _, key := range []string{"timestamp", "direction", "value", "bits", "edge_count", "protocol"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("frame message missing %q field", key)
		}
	}
	if decoded["value"].(float64) != 0xFE00 {
		t.Errorf("value = %v, want 65024", decoded["value"])
	}
}

func TestSendMessageDefaults(t *testing.T) {
	var cmd SendMessage
	if err := json.Unmarshal([]byte(`{"id":"x","value":65024,"bits":16}`), &cmd); err != nil {
		t.Fatalf("unmarshalling: %v", err)
	}
	if cmd.Repeat != 0 {
		t.Errorf("omitted repeat = %d, want 0 (meaning once)", cmd.Repeat)
	}
	if cmd.Value != 0xFE00 || cmd.Bits != 16 {
		t.Errorf("parsed (%#x, %d), want (0xfe00, 16)", cmd.Value, cmd.Bits)
	}
}

func TestSendErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		wantCode string
	}{
		{ErrInvalidBitCount, ErrCodeInvalidBits},
		{ErrValueRange, ErrCodeValueRange},
		{ErrInvalidRepeat, ErrCodeInvalidRepeat},
		{ErrBridgeStopped, ErrCodeBridgeStopped},
		{ErrTxBusy, ErrCodeHardwareError},
		{fmt.Errorf("wrapped: %w", ErrValueRange), ErrCodeValueRange},
	}

	for _, tt := range tests {
		if got := sendError(tt.err); got.Code != tt.wantCode {
			t.Errorf("sendError(%v).Code = %q, want %q", tt.err, got.Code, tt.wantCode)
		}
	}
}

func TestAckMessageOmitsEmptyError(t *testing.T) {
	payload, err := json.Marshal(AckMessage{
		CommandID: "cmd-1",
		Status:    AckSent,
		Protocol:  ProtocolDALI,
	})
	if err != nil {
		t.Fatalf("marshalling: %v", err)
	}

	var decoded map[string]any
	_ = json.Unmarshal(payload, &decoded)
	if _, ok := decoded["error"]; ok {
		t.Error("successful ack should omit the error field")
	}
}
