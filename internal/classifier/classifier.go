// Package classifier maps a message to an intent label with a confidence,
// using ordered pattern tables first and an external classifier when the
// rules are not confident enough.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"recruitrack/internal/ai"
	"recruitrack/internal/model"
	"recruitrack/internal/textnorm"
	"recruitrack/pkg/metrics"
)

const DefaultThreshold = 0.8

const classificationHint = `Recruitment email categories:
- acknowledgment: the application was received
- rejection: the application is declined
- interview: an interview or call is proposed
- offer: a job offer is made
- request: documents or information are requested
- other: anything else`

type Classifier struct {
	sets      []compiledSet
	threshold float64
	external  ai.TextClassifier
	logger    *zap.Logger
}

type Option func(*Classifier)

func WithThreshold(t float64) Option {
	return func(c *Classifier) {
		if t > 0 {
			c.threshold = t
		}
	}
}

// WithRules replaces the compiled-in rule tables.
func WithRules(rules []RuleSet) Option {
	return func(c *Classifier) {
		if sets, err := compile(rules); err == nil {
			c.sets = sets
		} else {
			c.logger.Error("Ignoring invalid classification rules", zap.Error(err))
		}
	}
}

// New builds a classifier. external may be nil, which behaves like ai.Unavailable.
func New(external ai.TextClassifier, logger *zap.Logger, opts ...Option) *Classifier {
	sets, err := compile(DefaultRules)
	if err != nil {
		panic(fmt.Sprintf("default classification rules: %v", err))
	}
	if external == nil {
		external = ai.Unavailable{}
	}
	c := &Classifier{
		sets:      sets,
		threshold: DefaultThreshold,
		external:  external,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify never fails: external errors degrade to the rule result.
func (c *Classifier) Classify(ctx context.Context, subject, body, sender string) model.ClassificationResult {
	text := strings.ToLower(strings.TrimSpace(subject + " " + body))
	result := c.classifyWithRules(text)

	if result.Confidence < c.threshold && text != "" {
		if ext, ok := c.classifyExternal(ctx, subject, body, sender); ok && ext.Confidence > result.Confidence {
			metrics.IncrementEscalation("classifier", "accepted")
			result = ext
		} else {
			metrics.IncrementEscalation("classifier", "rejected")
		}
	}

	metrics.IncrementClassification(string(result.Intent), string(result.Method))
	return result
}

func (c *Classifier) classifyWithRules(text string) model.ClassificationResult {
	best := model.ClassificationResult{
		Intent:     model.IntentOther,
		Confidence: 0,
		Method:     model.MethodRules,
	}
	if text == "" {
		return best
	}

	for _, set := range c.sets {
		var matched []string
		for _, r := range set.rules {
			if r.re.MatchString(text) {
				matched = append(matched, r.source)
			}
		}
		if len(matched) == 0 {
			continue
		}

		confidence := textnorm.Round2(min(0.4+0.3*float64(len(matched)), 1.0))
		if confidence > best.Confidence {
			best = model.ClassificationResult{
				Intent:          set.intent,
				Confidence:      confidence,
				Reasoning:       fmt.Sprintf("matched %d patterns for %s", len(matched), set.intent),
				KeywordsMatched: matched,
				Method:          model.MethodRules,
			}
		}
	}
	return best
}

func (c *Classifier) classifyExternal(ctx context.Context, subject, body, sender string) (model.ClassificationResult, bool) {
	labels := model.IntentLabels()
	text := fmt.Sprintf("Subject: %s\nFrom: %s\n\n%s", subject, sender, body)

	start := time.Now()
	res, err := c.external.ClassifyText(ctx, text, labels, classificationHint)
	if err != nil {
		if !errors.Is(err, ai.ErrUnavailable) {
			c.logger.Warn("External classification failed, keeping rule result",
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
		return model.ClassificationResult{}, false
	}

	intent := model.Intent(strings.ToLower(strings.TrimSpace(res.Label)))
	confidence := textnorm.Round2(textnorm.Clamp01(res.Confidence))
	if !intent.Valid() {
		c.logger.Warn("External classifier returned an unknown label",
			zap.String("label", res.Label),
			zap.String("coerced_to", labels[0]),
		)
		intent = model.Intents[0]
		confidence = 0.5
	}

	return model.ClassificationResult{
		Intent:     intent,
		Confidence: confidence,
		Reasoning:  res.Reasoning,
		Method:     model.MethodExternal,
	}, true
}

// SuggestedStatus maps an intent to the application status it implies.
func SuggestedStatus(intent model.Intent) (model.Status, bool) {
	switch intent {
	case model.IntentAcknowledgment:
		return model.StatusAcknowledged, true
	case model.IntentRejection:
		return model.StatusRejected, true
	case model.IntentInterview:
		return model.StatusInterview, true
	case model.IntentRequest:
		return model.StatusScreening, true
	case model.IntentOffer:
		return model.StatusOffer, true
	default:
		return "", false
	}
}

// ReminderDelay is how long to wait before following up on a message of the given intent.
func ReminderDelay(intent model.Intent) (time.Duration, bool) {
	switch intent {
	case model.IntentAcknowledgment:
		return 7 * 24 * time.Hour, true
	case model.IntentInterview:
		return 24 * time.Hour, true
	case model.IntentRequest:
		return 3 * 24 * time.Hour, true
	default:
		return 0, false
	}
}
