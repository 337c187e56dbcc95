package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadRestoresType(t *testing.T) {
	data, err := EncodePayload(StatusChangePayload{
		PreviousStatus:     StatusApplied,
		NewStatus:          StatusInterview,
		TriggeredByMessage: 12,
		AutoClassified:     true,
		KeywordsMatched:    []string{"entretien"},
		Reasoning:          "matched 1 patterns for interview",
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"triggered_by_email":12`)
	assert.Contains(t, string(data), `"reasoning":"matched 1 patterns for interview"`)

	p, err := DecodePayload(EventStatusChange, data)
	require.NoError(t, err)
	change, ok := p.(StatusChangePayload)
	require.True(t, ok)
	assert.Equal(t, StatusInterview, change.NewStatus)
	assert.True(t, change.AutoClassified)

	_, err = DecodePayload("NOTE_ADDED", data)
	assert.Error(t, err)
	_, err = EncodePayload(nil)
	assert.Error(t, err)
}

func TestApplicationEventJSONCarriesType(t *testing.T) {
	msgID := int64(3)
	e := ApplicationEvent{ID: 1, ApplicationID: 2, MessageID: &msgID, Payload: EmailReceivedPayload{MessageID: 3, Intent: IntentInterview}}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "EMAIL_RECEIVED", decoded["event_type"])
	assert.Equal(t, float64(2), decoded["application_id"])
	assert.Equal(t, "interview", decoded["payload"].(map[string]any)["email_type"])
}

func TestMessageContentFallsBackToSnippet(t *testing.T) {
	assert.Equal(t, "body", Message{Body: "body", Snippet: "snip"}.Content())
	assert.Equal(t, "snip", Message{Snippet: "snip"}.Content())
	assert.False(t, Message{}.IsLinked())
}

func TestApplicationUpdateApply(t *testing.T) {
	next := StatusOffer
	loc := "Paris"
	a := Application{Status: StatusInterview, Location: "Lyon", ContactName: "Jane"}

	assert.True(t, ApplicationUpdate{}.IsEmpty())
	upd := ApplicationUpdate{Status: &next, Location: &loc}
	assert.False(t, upd.IsEmpty())
	upd.Apply(&a)

	assert.Equal(t, StatusOffer, a.Status)
	assert.Equal(t, "Paris", a.Location)
	assert.Equal(t, "Jane", a.ContactName)
}

func TestParseStatusAndIntent(t *testing.T) {
	s, err := ParseStatus("technical_test")
	require.NoError(t, err)
	assert.Equal(t, StatusTechnicalTest, s)
	_, err = ParseStatus("ghosted")
	assert.Error(t, err)

	i, err := ParseIntent("offer")
	require.NoError(t, err)
	assert.Equal(t, IntentOffer, i)
	_, err = ParseIntent("spam")
	assert.Error(t, err)

	assert.True(t, StatusInterview.IsActive())
	assert.False(t, StatusOffer.IsActive())
	assert.True(t, StatusAccepted.IsTerminal())
}
