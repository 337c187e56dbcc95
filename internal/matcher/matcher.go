// Package matcher scores a message against the owner's active applications.
package matcher

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"recruitrack/internal/ai"
	"recruitrack/internal/model"
	"recruitrack/internal/textnorm"
	"recruitrack/pkg/metrics"
)

const (
	DefaultThreshold = 0.7
	// below this rule score the semantic fallback is attempted
	semanticTrigger = 0.7
	recentWindow    = 30 * 24 * time.Hour
	bodyExcerpt     = 500
)

type Matcher struct {
	embedder  ai.Embedder
	threshold float64
	now       func() time.Time
	logger    *zap.Logger
}

type Option func(*Matcher)

func WithThreshold(t float64) Option {
	return func(m *Matcher) {
		if t > 0 {
			m.threshold = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Matcher) { m.now = now }
}

// New builds a matcher. embedder may be nil, which disables the semantic fallback.
func New(embedder ai.Embedder, logger *zap.Logger, opts ...Option) *Matcher {
	if embedder == nil {
		embedder = ai.Unavailable{}
	}
	m := &Matcher{
		embedder:  embedder,
		threshold: DefaultThreshold,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FindMatches returns the active candidates scoring at least the threshold,
// best first. Ties keep ascending application id order.
func (m *Matcher) FindMatches(ctx context.Context, subject, body, sender string, candidates []model.Application) []model.MatchCandidate {
	text := subject + " " + body
	folded := textnorm.Fold(text)
	words := make(map[string]struct{})
	for _, w := range textnorm.Keywords(text, 3) {
		words[w] = struct{}{}
	}
	domain := senderDomain(sender)
	sem := &semanticScorer{embedder: m.embedder, logger: m.logger, messageText: subject + " " + textnorm.Truncate(body, bodyExcerpt)}

	var out []model.MatchCandidate
	for _, app := range candidates {
		if !app.Status.IsActive() {
			continue
		}

		match := m.scoreWithRules(app, folded, words, domain)
		if match.Score < semanticTrigger {
			if semantic, ok := sem.score(ctx, app); ok && semantic.Score > match.Score {
				match = semantic
			}
		}
		if match.Score >= m.threshold {
			out = append(out, match)
		}
	}

	slices.SortStableFunc(out, func(a, b model.MatchCandidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ApplicationID, b.ApplicationID)
	})
	return out
}

func (m *Matcher) scoreWithRules(app model.Application, foldedText string, words map[string]struct{}, domain string) model.MatchCandidate {
	c := model.MatchCandidate{ApplicationID: app.ID}
	score := 0.0

	if company := textnorm.Fold(strings.TrimSpace(app.CompanyName)); company != "" {
		if strings.Contains(foldedText, company) {
			score += 0.4
			c.CompanyMatch = true
			c.Reasons = append(c.Reasons, fmt.Sprintf("company name %q found in email", app.CompanyName))
		} else if domain != "" && companyDomainMatch(app.CompanyName, domain) {
			score += 0.3
			c.CompanyMatch = true
			c.Reasons = append(c.Reasons, fmt.Sprintf("sender domain %s matches company", domain))
		}
	}

	if titleWords := textnorm.Keywords(app.JobTitle, 3); len(titleWords) > 0 {
		var found []string
		for _, w := range titleWords {
			if _, ok := words[w]; ok {
				found = append(found, w)
			}
		}
		if len(found) > 0 {
			score += 0.3 * float64(len(found)) / float64(len(titleWords))
			c.TitleMatch = true
			c.Reasons = append(c.Reasons, fmt.Sprintf("job title keywords match: %s", strings.Join(found, ", ")))
		}
	}

	if loc := textnorm.Fold(strings.TrimSpace(app.Location)); loc != "" && strings.Contains(foldedText, loc) {
		score += 0.1
		c.Reasons = append(c.Reasons, fmt.Sprintf("location %q mentioned", app.Location))
	}

	if !app.CreatedAt.IsZero() && m.now().Sub(app.CreatedAt) <= recentWindow {
		score += 0.1
		c.Reasons = append(c.Reasons, "recent application (within 30 days)")
	}

	c.Score = textnorm.Round2(score)
	c.Confidence = min(c.Score, 1.0)
	return c
}

func senderDomain(sender string) string {
	at := strings.LastIndex(sender, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(sender[at+1:], "> \t"))
}

// companyDomainMatch accepts equality, containment either way, or an acronym
// prefix for short company names.
func companyDomainMatch(company, domain string) bool {
	cleanCompany := textnorm.AlphaNum(company)
	label, _, _ := strings.Cut(domain, ".")
	cleanDomain := textnorm.AlphaNum(label)
	if cleanCompany == "" || cleanDomain == "" {
		return false
	}
	return cleanCompany == cleanDomain ||
		strings.Contains(cleanDomain, cleanCompany) ||
		strings.Contains(cleanCompany, cleanDomain) ||
		(len(cleanCompany) <= 4 && strings.HasPrefix(cleanDomain, cleanCompany))
}

// semanticScorer embeds the message once and each candidate on demand.
type semanticScorer struct {
	embedder    ai.Embedder
	logger      *zap.Logger
	messageText string
	messageVec  []float64
	disabled    bool
}

func (s *semanticScorer) score(ctx context.Context, app model.Application) (model.MatchCandidate, bool) {
	if s.disabled {
		return model.MatchCandidate{}, false
	}

	appText := strings.TrimSpace(fmt.Sprintf("%s %s %s", app.CompanyName, app.JobTitle, app.Location))
	texts := []string{appText}
	if s.messageVec == nil {
		texts = append(texts, s.messageText)
	}

	start := time.Now()
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil || len(vectors) != len(texts) {
		if errors.Is(err, ai.ErrUnavailable) {
			s.disabled = true
		} else {
			s.logger.Warn("Semantic matching skipped",
				zap.Int64("application_id", app.ID),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
		}
		metrics.IncrementEscalation("matcher", "failed")
		return model.MatchCandidate{}, false
	}
	if s.messageVec == nil {
		s.messageVec = vectors[1]
	}

	similarity := cosine(vectors[0], s.messageVec)
	metrics.IncrementEscalation("matcher", "scored")

	score := textnorm.Round2(textnorm.Clamp01(similarity))
	confidence := score
	if score <= 0.5 {
		confidence = textnorm.Round2(score * 0.8)
	}
	return model.MatchCandidate{
		ApplicationID: app.ID,
		Score:         score,
		Confidence:    confidence,
		Reasons:       []string{fmt.Sprintf("semantic similarity: %.3f", similarity)},
		SemanticMatch: true,
	}, true
}

func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
