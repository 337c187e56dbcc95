package model

import "fmt"

// Intent is the closed classification of a message's purpose.
type Intent string

const (
	IntentAcknowledgment Intent = "acknowledgment"
	IntentRejection      Intent = "rejection"
	IntentInterview      Intent = "interview"
	IntentOffer          Intent = "offer"
	IntentRequest        Intent = "request"
	IntentOther          Intent = "other"
)

// Intents is the closed label set, in rule evaluation order.
var Intents = []Intent{
	IntentAcknowledgment,
	IntentRejection,
	IntentInterview,
	IntentOffer,
	IntentRequest,
	IntentOther,
}

func (i Intent) Valid() bool {
	for _, in := range Intents {
		if i == in {
			return true
		}
	}
	return false
}

func ParseIntent(v string) (Intent, error) {
	i := Intent(v)
	if !i.Valid() {
		return "", fmt.Errorf("unknown intent %q", v)
	}
	return i, nil
}

// IntentLabels returns the label set as plain strings.
func IntentLabels() []string {
	labels := make([]string, len(Intents))
	for i, in := range Intents {
		labels[i] = string(in)
	}
	return labels
}
