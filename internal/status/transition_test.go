package status

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"recruitrack/internal/model"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		current model.Status
		next    model.Status
		want    bool
	}{
		{"applied to acknowledged", model.StatusApplied, model.StatusAcknowledged, true},
		{"applied to interview", model.StatusApplied, model.StatusInterview, true},
		{"applied to offer", model.StatusApplied, model.StatusOffer, false},
		{"acknowledged to offer", model.StatusAcknowledged, model.StatusOffer, true},
		{"acknowledged back to applied", model.StatusAcknowledged, model.StatusApplied, false},
		{"screening to technical test", model.StatusScreening, model.StatusTechnicalTest, true},
		{"interview to on hold", model.StatusInterview, model.StatusOnHold, true},
		{"interview to screening", model.StatusInterview, model.StatusScreening, false},
		{"technical test to offer", model.StatusTechnicalTest, model.StatusOffer, true},
		{"offer to accepted", model.StatusOffer, model.StatusAccepted, true},
		{"on hold to interview", model.StatusOnHold, model.StatusInterview, false},
		{"same status", model.StatusInterview, model.StatusInterview, false},
		{"accepted to rejected", model.StatusAccepted, model.StatusRejected, false},
		{"rejected to interview", model.StatusRejected, model.StatusInterview, false},
		{"unknown current", model.Status("lost"), model.StatusRejected, false},
		{"unknown next", model.StatusApplied, model.Status("hired"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.current, tt.next))
		})
	}
}

func TestRejectionFromAnyNonTerminalStatus(t *testing.T) {
	for _, s := range model.AllStatuses {
		if s.IsTerminal() {
			assert.False(t, CanTransition(s, model.StatusRejected), s)
			continue
		}
		assert.True(t, CanTransition(s, model.StatusRejected), s)
	}
}

func TestAllowed(t *testing.T) {
	assert.Equal(t,
		[]model.Status{model.StatusAcknowledged, model.StatusScreening, model.StatusInterview, model.StatusRejected},
		Allowed(model.StatusApplied),
	)
	assert.Equal(t, []model.Status{model.StatusRejected}, Allowed(model.StatusOnHold))
	assert.Empty(t, Allowed(model.StatusAccepted))
}
