package request

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_SuccessSet(t *testing.T) {
	for _, s := range []string{"completed", "approved", "auto_completed", "autodeposit_success", "paid"} {
		t.Run(s, func(t *testing.T) {
			assert.Equal(t, OutcomeSuccess, Classify(s))
		})
	}
}

func TestClassify_FailureSet(t *testing.T) {
	for _, s := range []string{"rejected", "declined", "failed"} {
		t.Run(s, func(t *testing.T) {
			assert.Equal(t, OutcomeError, Classify(s))
		})
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, Classify("COMPLETED"))
	assert.Equal(t, OutcomeSuccess, Classify("Auto_Completed"))
	assert.Equal(t, OutcomeError, Classify("Rejected"))
}

func TestClassify_UnknownKeepsWaiting(t *testing.T) {
	tests := []string{"pending", "processing", "unknown_status", "", " completed", "complete", "paid_out", "rejected_soft"}
	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			assert.Equal(t, OutcomeWaiting, Classify(s))
		})
	}
}

func TestOutcome_IsTerminal(t *testing.T) {
	assert.True(t, OutcomeSuccess.IsTerminal())
	assert.True(t, OutcomeError.IsTerminal())
	assert.False(t, OutcomeWaiting.IsTerminal())
}

func TestParseReason(t *testing.T) {
	tests := []struct {
		name     string
		detail   string
		expected string
	}{
		{"empty", "", ""},
		{"raw string", "Wrong requisites", "Wrong requisites"},
		{"json reason", `{"reason":"Card blocked"}`, "Card blocked"},
		{"json message", `{"message":"Limit exceeded"}`, "Limit exceeded"},
		{"reason wins over message", `{"reason":"A","message":"B"}`, "A"},
		{"json without known field", `{"code":42}`, `{"code":42}`},
		{"broken json", `{"reason":`, `{"reason":`},
		{"json array", `["x"]`, `["x"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseReason(tt.detail))
		})
	}
}

func TestRequest_Automated(t *testing.T) {
	r := &Request{ProcessedBy: "autodeposit"}
	assert.True(t, r.Automated())

	r.ProcessedBy = "operator_7"
	assert.False(t, r.Automated())
}
