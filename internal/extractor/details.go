package extractor

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"recruitrack/internal/model"
	"recruitrack/internal/textnorm"
)

var locationPatterns = compileAll(
	`localisation\s*:\s*([^,.\n]+)`,
	`lieu\s*:\s*([^,.\n]+)`,
	`basée?\s+à\s+([^,.\n]+)`,
	`située?\s+à\s+([^,.\n]+)`,
	`based in\s+([^,.\n]+)`,
)

var (
	remotePattern = regexp.MustCompile(`(?i)télétravail|teletravail|\bremote\b|full remote`)
	cityPattern   = regexp.MustCompile(`(?i)\b(paris|lyon|marseille|toulouse|nantes|strasbourg|bordeaux|lille|montpellier|rennes|nice|grenoble)\b`)
)

var salaryPatterns = compileAll(
	`\d+\s*(?:à|-)\s*\d+\s*k€`,
	`\d+[.,]?\d*\s*k?\s*€?\s*(?:par an|annuel|brut annuel|k€)`,
	`salaire[^\n€]{0,40}?\d+[.,]?\d*\s*k?\s*€`,
	`rémunération[^\n€]{0,40}?\d+[.,]?\d*\s*k?\s*€`,
	`salary[^\n$€]{0,40}?[$€]\s*\d+[.,]?\d*\s*k?`,
)

var (
	numericDate   = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`)
	frenchDate    = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(janvier|février|fevrier|mars|avril|mai|juin|juillet|août|aout|septembre|octobre|novembre|décembre|decembre)\s+(\d{4})\b`)
	deadlineDates = compileAll(
		`avant le\s+(\d{1,2})[/-](\d{1,2})[/-](\d{4})`,
		`deadline[^\n]*?(\d{1,2})[/-](\d{1,2})[/-](\d{4})`,
		`au plus tard le\s+(\d{1,2})[/-](\d{1,2})[/-](\d{4})`,
	)
	deadlineDays = regexp.MustCompile(`(?i)réponse[^\n]*?(\d{1,2})\s+jours?`)
)

var referencePatterns = compileAll(
	`\bréf(?:érence)?\s*[:#]\s*([a-z0-9][a-z0-9_-]*)`,
	`\bref(?:erence)?\s*[:#]\s*([a-z0-9][a-z0-9_-]*)`,
	`\bjob id\s*[:#]?\s*([a-z0-9][a-z0-9_-]*)`,
)

var frenchMonths = map[string]time.Month{
	"janvier": time.January, "février": time.February, "fevrier": time.February,
	"mars": time.March, "avril": time.April, "mai": time.May, "juin": time.June,
	"juillet": time.July, "août": time.August, "aout": time.August,
	"septembre": time.September, "octobre": time.October, "novembre": time.November,
	"décembre": time.December, "decembre": time.December,
}

var (
	urgentKeywords = []string{"urgent", "rapidement", "dès que possible", "immédiatement", "asap"}
	highKeywords   = []string{"bientôt", "prochainement", "dans les plus brefs délais", "soon"}
)

var techKeywords = []string{
	"python", "java", "javascript", "typescript", "react", "angular", "vue", "node.js", "go", "golang",
	"machine learning", "ia", "intelligence artificielle", "data science",
	"sql", "postgresql", "mongodb", "aws", "azure", "gcp", "docker", "kubernetes",
	"agile", "scrum", "devops", "ci/cd", "git",
}

var techPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(techKeywords))
	for i, kw := range techKeywords {
		out[i] = regexp.MustCompile(`(?i)(?:^|[^\p{L}\d])` + regexp.QuoteMeta(kw) + `(?:$|[^\p{L}\d])`)
	}
	return out
}()

// extractDetails pulls the secondary facts; ref anchors relative deadlines.
func extractDetails(text string, ref time.Time) (model.Details, string) {
	d := model.Details{
		Salary:           salary(text),
		InterviewDate:    interviewDate(text),
		ResponseDeadline: responseDeadline(text, ref),
		JobReference:     jobReference(text),
		Urgency:          urgency(text),
		TechKeywords:     technologies(text),
	}
	return d, location(text)
}

func location(text string) string {
	for _, re := range locationPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if loc := strings.TrimSpace(m[1]); loc != "" {
				return textnorm.Title(textnorm.Truncate(loc, 60))
			}
		}
	}
	if remotePattern.MatchString(text) {
		return "Télétravail"
	}
	if m := cityPattern.FindString(text); m != "" {
		return textnorm.Title(m)
	}
	return ""
}

func salary(text string) string {
	for _, re := range salaryPatterns {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

func interviewDate(text string) *time.Time {
	if m := numericDate.FindStringSubmatch(text); m != nil {
		if t, ok := buildDate(m[1], m[2], m[3]); ok {
			return &t
		}
	}
	if m := frenchDate.FindStringSubmatch(text); m != nil {
		month := frenchMonths[strings.ToLower(m[2])]
		if t, ok := buildDate(m[1], strconv.Itoa(int(month)), m[3]); ok {
			return &t
		}
	}
	return nil
}

func responseDeadline(text string, ref time.Time) *time.Time {
	for _, re := range deadlineDates {
		if m := re.FindStringSubmatch(text); m != nil {
			if t, ok := buildDate(m[1], m[2], m[3]); ok {
				return &t
			}
		}
	}
	if m := deadlineDays.FindStringSubmatch(text); m != nil {
		days, err := strconv.Atoi(m[1])
		if err == nil && days > 0 {
			t := ref.AddDate(0, 0, days)
			return &t
		}
	}
	return nil
}

// buildDate rejects impossible dates such as 31/02.
func buildDate(day, month, year string) (time.Time, bool) {
	d, err1 := strconv.Atoi(day)
	m, err2 := strconv.Atoi(month)
	y, err3 := strconv.Atoi(year)
	if err1 != nil || err2 != nil || err3 != nil || m < 1 || m > 12 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return time.Time{}, false
	}
	return t, true
}

func jobReference(text string) string {
	for _, re := range referencePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	return ""
}

func urgency(text string) model.Urgency {
	lower := strings.ToLower(text)
	for _, kw := range urgentKeywords {
		if strings.Contains(lower, kw) {
			return model.UrgencyUrgent
		}
	}
	for _, kw := range highKeywords {
		if strings.Contains(lower, kw) {
			return model.UrgencyHigh
		}
	}
	return model.UrgencyNormal
}

func technologies(text string) []string {
	var out []string
	for i, re := range techPatterns {
		if re.MatchString(text) {
			out = append(out, techKeywords[i])
		}
	}
	return out
}
