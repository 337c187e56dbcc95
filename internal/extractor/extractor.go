// Package extractor derives structured entities (company, title, contact,
// dates, ...) from a recruitment email.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"recruitrack/internal/ai"
	"recruitrack/internal/model"
	"recruitrack/internal/textnorm"
	"recruitrack/pkg/metrics"
)

const DefaultThreshold = 0.6

type Extractor struct {
	external  ai.StructuredExtractor
	threshold float64
	now       func() time.Time
	logger    *zap.Logger
}

// New builds an extractor. external may be nil, which behaves like ai.Unavailable.
func New(external ai.StructuredExtractor, logger *zap.Logger) *Extractor {
	if external == nil {
		external = ai.Unavailable{}
	}
	return &Extractor{
		external:  external,
		threshold: DefaultThreshold,
		now:       time.Now,
		logger:    logger,
	}
}

// Extract never fails; external errors degrade to the rule result.
func (e *Extractor) Extract(ctx context.Context, subject, body, sender string) model.ExtractionResult {
	return e.ExtractAt(ctx, subject, body, sender, e.now())
}

// ExtractAt is Extract with relative deadlines ("réponse sous 5 jours") anchored at ref.
func (e *Extractor) ExtractAt(ctx context.Context, subject, body, sender string, ref time.Time) model.ExtractionResult {
	text := strings.ToLower(strings.TrimSpace(subject + " " + body))
	if text == "" {
		return model.ExtractionResult{Method: model.MethodRules, Details: model.Details{Urgency: model.UrgencyNormal}}
	}

	result := e.extractWithRules(subject, text, sender, ref)
	if result.Confidence >= e.threshold {
		return result
	}

	doc, err := e.extractExternal(ctx, subject, body, sender)
	if err != nil {
		metrics.IncrementEscalation("extractor", "failed")
		if !errors.Is(err, ai.ErrUnavailable) {
			e.logger.Warn("External extraction failed, keeping rule result", zap.Error(err))
		}
		return result
	}
	metrics.IncrementEscalation("extractor", "merged")
	return merge(result, doc)
}

func (e *Extractor) extractWithRules(subject, text, sender string, ref time.Time) model.ExtractionResult {
	res := model.ExtractionResult{Method: model.MethodRules}

	address, displayName, wellFormed := parseSender(sender)
	if wellFormed {
		res.CompanyName = companyFromDomain(address)
		res.ContactEmail = address
		res.ContactName = contactName(address, displayName)
	}
	if res.CompanyName == "" {
		res.CompanyName = companyFromContent(text)
	}

	res.StatusKeywords = statusKeywords(text)
	res.DateMentioned = mentionedDate(text)
	res.JobTitle = jobTitle(subject, text)
	res.Details, res.Location = extractDetails(text, ref)

	confidence := 0.0
	if res.CompanyName != "" {
		confidence += 0.3
	}
	if len(res.StatusKeywords) > 0 {
		confidence += 0.4
	}
	if res.DateMentioned != "" {
		confidence += 0.2
	}
	if wellFormed {
		confidence += 0.1
	}
	if res.JobTitle != "" {
		confidence += 0.1
	}
	res.Confidence = textnorm.Round2(min(confidence, 1.0))
	return res
}

func (e *Extractor) extractExternal(ctx context.Context, subject, body, sender string) (map[string]any, error) {
	text := fmt.Sprintf("From: %s\nSubject: %s\n\n%s", sender, subject, body)
	doc, err := e.external.ExtractStructured(ctx, text, extractionSchema)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, ai.ErrUnavailable
	}
	if err := validateExtraction(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrInvalidResponse, err)
	}
	return doc, nil
}

// merge prefers the external value per field and unions the keywords.
func merge(rules model.ExtractionResult, doc map[string]any) model.ExtractionResult {
	out := rules
	out.Method = model.MethodExternal

	pick := func(dst *string, key string) {
		if v := stringField(doc, key); v != "" {
			*dst = v
		}
	}
	pick(&out.CompanyName, "company_name")
	pick(&out.JobTitle, "job_title")
	pick(&out.ContactName, "contact_name")
	pick(&out.ContactEmail, "contact_email")
	pick(&out.Location, "location")
	pick(&out.DateMentioned, "date_mentioned")

	keywords := append(slices.Clone(rules.StatusKeywords), stringsField(doc, "status_keywords")...)
	slices.Sort(keywords)
	out.StatusKeywords = slices.Compact(keywords)

	external := textnorm.Round2(textnorm.Clamp01(numberField(doc, "confidence")))
	out.Confidence = max(rules.Confidence, external)
	return out
}
