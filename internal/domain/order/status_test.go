package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_External(t *testing.T) {
	tests := []struct {
		in   Status
		want Status
	}{
		{StatusNew, StatusPending},
		{StatusPending, StatusPending},
		{StatusAccepted, StatusInPrep},
		{StatusInQueue, StatusInPrep},
		{StatusInPrep, StatusInPrep},
		{StatusInProgress, StatusInProgress},
		{StatusAssembling, StatusReady},
		{StatusReady, StatusReady},
		{StatusStaged, StatusReady},
		{StatusHandoff, StatusReady},
		{StatusCompleted, StatusCompleted},
		{StatusCancelled, StatusCancelled},
		{StatusVoided, StatusVoided},
		{StatusRefunded, StatusRefunded},
		{StatusPaid, StatusPaid},
		{"unknown_status", "unknown_status"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.External())
		})
	}
}

func TestMapStatus(t *testing.T) {
	assert.Equal(t, "in_prep", MapStatus("in_prep"))
	assert.Equal(t, "ready", MapStatus("assembling"))
	assert.Equal(t, "unknown_status", MapStatus("unknown_status"))
}

func TestStatus_Known(t *testing.T) {
	assert.True(t, StatusPaid.Known())
	assert.True(t, StatusHandoff.Known())
	assert.False(t, Status("teleported").Known())
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusCancelled, StatusVoided, StatusRefunded} {
		assert.True(t, s.Terminal(), s)
	}
	for _, s := range []Status{StatusPending, StatusPaid, StatusCompleted} {
		assert.False(t, s.Terminal(), s)
	}
}

func TestOrder_IsPaid(t *testing.T) {
	paid := paidOrder("aaaaaaaaaaaa", "u1", "10.00", "0.00")
	assert.True(t, paid.IsPaid())

	paid.Status = StatusCompleted
	assert.True(t, paid.IsPaid(), "kitchen progress keeps the order paid")

	paid.Status = StatusRefunded
	assert.False(t, paid.IsPaid())

	pending := pendingOrder("bbbbbbbbbbbb", "u1", "10.00", "0.00")
	assert.False(t, pending.IsPaid())
	assert.True(t, pending.IsOpen())
}
