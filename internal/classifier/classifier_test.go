package classifier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"recruitrack/internal/ai"
	"recruitrack/internal/model"
)

type stubClassifier struct {
	res   *ai.Classification
	err   error
	calls int
}

func (s *stubClassifier) ClassifyText(_ context.Context, _ string, labels []string, _ string) (*ai.Classification, error) {
	s.calls++
	return s.res, s.err
}

func TestClassifyWithRules(t *testing.T) {
	tests := []struct {
		name       string
		subject    string
		body       string
		intent     model.Intent
		confidence float64
	}{
		{
			name:       "acknowledgment",
			subject:    "Accusé de réception de votre candidature — Développeur Python",
			intent:     model.IntentAcknowledgment,
			confidence: 0.7,
		},
		{
			name:       "interview with several cues",
			subject:    "Votre candidature",
			body:       "Nous souhaitons vous rencontrer pour un entretien. Merci de nous indiquer vos disponibilités.",
			intent:     model.IntentInterview,
			confidence: 1.0,
		},
		{
			name:       "english rejection",
			subject:    "Your application",
			body:       "Unfortunately we regret to inform you that you were not selected.",
			intent:     model.IntentRejection,
			confidence: 1.0,
		},
		{
			name:       "tie keeps first intent",
			subject:    "Application received",
			body:       "Unfortunately",
			intent:     model.IntentAcknowledgment,
			confidence: 0.7,
		},
		{
			name:       "no match",
			subject:    "Newsletter",
			body:       "Weekly digest",
			intent:     model.IntentOther,
			confidence: 0,
		},
	}

	c := New(nil, zap.NewNop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Classify(context.Background(), tt.subject, tt.body, "rh@techcorp.com")
			assert.Equal(t, tt.intent, res.Intent)
			assert.InDelta(t, tt.confidence, res.Confidence, 1e-9)
			assert.Equal(t, model.MethodRules, res.Method)
		})
	}
}

func TestClassifyEmptyMessage(t *testing.T) {
	ext := &stubClassifier{res: &ai.Classification{Label: "offer", Confidence: 0.9}}
	c := New(ext, zap.NewNop())

	res := c.Classify(context.Background(), "", "", "someone@example.com")
	assert.Equal(t, model.IntentOther, res.Intent)
	assert.Zero(t, res.Confidence)
	assert.Zero(t, ext.calls)
}

func TestEscalationAcceptsHigherConfidence(t *testing.T) {
	ext := &stubClassifier{res: &ai.Classification{Label: "INTERVIEW", Confidence: 0.95, Reasoning: "call proposed"}}
	c := New(ext, zap.NewNop())

	res := c.Classify(context.Background(), "Petit point", "Pouvons-nous planifier un appel ?", "")
	assert.Equal(t, 1, ext.calls)
	assert.Equal(t, model.IntentInterview, res.Intent)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	assert.Equal(t, model.MethodExternal, res.Method)
}

func TestEscalationKeepsRulesWhenNotBetter(t *testing.T) {
	ext := &stubClassifier{res: &ai.Classification{Label: "offer", Confidence: 0.6}}
	c := New(ext, zap.NewNop())

	res := c.Classify(context.Background(), "Accusé de réception", "", "")
	assert.Equal(t, model.IntentAcknowledgment, res.Intent)
	assert.Equal(t, model.MethodRules, res.Method)
}

func TestEscalationCoercesUnknownLabel(t *testing.T) {
	ext := &stubClassifier{res: &ai.Classification{Label: "spam", Confidence: 0.99}}
	c := New(ext, zap.NewNop())

	res := c.Classify(context.Background(), "Bonjour", "Quelques nouvelles", "")
	assert.Equal(t, model.Intents[0], res.Intent)
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
	assert.Equal(t, model.MethodExternal, res.Method)
}

func TestEscalationFailureReturnsRuleResult(t *testing.T) {
	for _, err := range []error{ai.ErrUnavailable, errors.New("timeout")} {
		ext := &stubClassifier{err: err}
		c := New(ext, zap.NewNop())

		res := c.Classify(context.Background(), "Accusé de réception", "", "")
		assert.Equal(t, model.IntentAcknowledgment, res.Intent)
		assert.InDelta(t, 0.7, res.Confidence, 1e-9)
	}
}

func TestNoEscalationAboveThreshold(t *testing.T) {
	ext := &stubClassifier{res: &ai.Classification{Label: "offer", Confidence: 1}}
	c := New(ext, zap.NewNop(), WithThreshold(0.5))

	c.Classify(context.Background(), "Accusé de réception", "", "")
	assert.Zero(t, ext.calls)
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - intent: offer
    patterns: ["bienvenue à bord", "welcome aboard"]
`), 0o644))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules, 1)

	c := New(nil, zap.NewNop(), WithRules(rules))
	res := c.Classify(context.Background(), "Welcome aboard!", "", "")
	assert.Equal(t, model.IntentOffer, res.Intent)

	res = c.Classify(context.Background(), "Accusé de réception", "", "")
	assert.Equal(t, model.IntentOther, res.Intent)
}

func TestLoadRulesRejectsBadPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - intent: offer\n    patterns: [\"(\"]\n"), 0o644))

	_, err := LoadRules(path)
	assert.Error(t, err)
}

func TestSuggestedStatus(t *testing.T) {
	s, ok := SuggestedStatus(model.IntentRequest)
	assert.True(t, ok)
	assert.Equal(t, model.StatusScreening, s)

	_, ok = SuggestedStatus(model.IntentOther)
	assert.False(t, ok)
}

func TestReminderDelay(t *testing.T) {
	d, ok := ReminderDelay(model.IntentInterview)
	assert.True(t, ok)
	assert.Equal(t, 24*time.Hour, d)

	_, ok = ReminderDelay(model.IntentRejection)
	assert.False(t, ok)
}
