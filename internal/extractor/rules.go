package extractor

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode"

	"recruitrack/internal/textnorm"
)

var freeMailProviders = map[string]struct{}{
	"gmail": {}, "googlemail": {}, "yahoo": {}, "hotmail": {}, "outlook": {}, "live": {},
	"icloud": {}, "protonmail": {}, "laposte": {}, "orange": {}, "free": {}, "wanadoo": {},
}

// words that follow "équipe", "chez", ... without naming a company
var genericCompanyWords = map[string]struct{}{
	"recrutement": {}, "rh": {}, "talent": {}, "talents": {}, "nous": {}, "vous": {},
	"notre": {}, "votre": {}, "our": {}, "your": {}, "hiring": {}, "recruiting": {},
	"team": {}, "candidature": {}, "ressources": {}, "equipe": {},
}

var companyPatterns = compileAll(
	`équipe\s+([\p{L}\d][\p{L}\d&-]*)`,
	`société\s+([\p{L}\d][\p{L}\d&-]*)`,
	`entreprise\s+([\p{L}\d][\p{L}\d&-]*)`,
	`groupe\s+([\p{L}\d][\p{L}\d&-]*)`,
	`([\p{L}\d][\p{L}\d&-]*)\s+recrute\b`,
	`rejoindre\s+([\p{L}\d][\p{L}\d&-]*)`,
	`\bchez\s+([\p{L}\d][\p{L}\d&-]*)`,
	`\bjoin\s+([\p{L}\d][\p{L}\d&-]*)`,
	`\bat\s+([\p{L}\d][\p{L}\d&-]*)\s+team`,
)

// one keyword per category is enough to report the category
var statusKeywordPatterns = []struct {
	category string
	patterns []*regexp.Regexp
}{
	{"acknowledgment", compileAll(`accusé de réception`, `reçu votre candidature`, `received your application`, `nous avons bien reçu`, `thank you for applying`)},
	{"rejection", compileAll(`ne donnerons pas suite`, `candidature non retenue`, `not selected`, `unfortunately`, `regret to inform`, `other candidates`)},
	{"interview", compileAll(`entretien`, `interview`, `convocation`, `rencontrer`, `meeting`, `disponibilité`, `availability`)},
	{"offer", compileAll(`\boffre\b`, `proposition d'embauche`, `\boffer\b`, `congratulations`, `pleased to offer`, `job offer`)},
}

var datePatterns = compileAll(
	`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`,
	`\b\d{1,2}\s+(?:janvier|février|fevrier|mars|avril|mai|juin|juillet|août|aout|septembre|octobre|novembre|décembre|decembre|january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{4}\b`,
	`\b(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2},\s*\d{4}\b`,
)

const roleNouns = `développeur|developpeur|développeuse|developer|ingénieur|ingenieur|engineer|` +
	`data scientist|data analyst|data engineer|analyste|analyst|consultant|consultante|` +
	`chef de projet|product owner|product manager|project manager|architecte|architect|` +
	`technicien|stagiaire|alternant|designer`

var titlePatterns = compileAll(
	`poste de\s+([^,.\n!?;]+)`,
	`pour le poste\s+(?:d'|de\s+)?([^,.\n!?;]+)`,
	`position (?:of|as)\s+([^,.\n!?;]+)`,
	`role (?:of|as)\s+([^,.\n!?;]+)`,
	`((?:`+roleNouns+`)(?:\s+[\p{L}\d+#/-]+){0,3})`,
)

var subjectSeparators = []string{"—", "–", " - ", ":"}

// title phrases stop at these words
var titleStops = []string{
	" chez ", " at ", " au sein ", " dans ", " à ", " a ", " pour ", " avec ", " in ", " with ",
	" within ", " en ", " sur ", " nous ", " we ", " vous ", " you ", " — ", " – ", " - ",
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

// parseSender returns the bare address and display name, ok=false when sender
// is not a well formed address.
func parseSender(sender string) (address, name string, ok bool) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return "", "", false
	}
	addr, err := mail.ParseAddress(sender)
	if err != nil {
		return "", "", false
	}
	return strings.ToLower(addr.Address), addr.Name, true
}

// companyFromDomain turns jobs@techcorp.com into "Techcorp".
func companyFromDomain(address string) string {
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return ""
	}
	domain := strings.ToLower(address[at+1:])
	label, _, _ := strings.Cut(domain, ".")
	if label == "" {
		return ""
	}
	if _, free := freeMailProviders[label]; free {
		return ""
	}
	return textnorm.Title(label)
}

func companyFromContent(text string) string {
	for _, re := range companyPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			candidate := strings.Trim(m[1], "-&")
			folded := textnorm.Fold(candidate)
			if len([]rune(folded)) < 2 || textnorm.IsStopWord(folded) {
				continue
			}
			if _, generic := genericCompanyWords[folded]; generic {
				continue
			}
			return textnorm.Title(candidate)
		}
	}
	return ""
}

func statusKeywords(text string) []string {
	var out []string
	for _, group := range statusKeywordPatterns {
		for _, re := range group.patterns {
			if re.MatchString(text) {
				out = append(out, group.category)
				break
			}
		}
	}
	return out
}

func mentionedDate(text string) string {
	for _, re := range datePatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// jobTitle tries the content patterns in order, then the subject tail after a separator.
func jobTitle(subject, text string) string {
	for _, re := range titlePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if title := cleanTitle(m[1]); title != "" {
				return title
			}
		}
	}

	for _, sep := range subjectSeparators {
		if i := strings.LastIndex(subject, sep); i >= 0 {
			if title := cleanTitle(strings.ToLower(subject[i+len(sep):])); title != "" {
				return title
			}
		}
	}
	return ""
}

func cleanTitle(raw string) string {
	s := " " + strings.TrimSpace(raw) + " "
	for _, stop := range titleStops {
		if i := strings.Index(s, stop); i >= 0 {
			s = s[:i]
		}
	}

	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || strings.ContainsRune("+#/-", r) {
			return r
		}
		return -1
	}, s)

	words := strings.Fields(s)
	for len(words) > 0 && textnorm.IsStopWord(words[0]) {
		words = words[1:]
	}
	for len(words) > 0 && textnorm.IsStopWord(words[len(words)-1]) {
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return ""
	}
	if len(words) > 8 {
		words = words[:8]
	}
	return textnorm.Title(strings.Join(words, " "))
}

// contactName reads "marie.dupont" style local parts, preferring a display name.
func contactName(address, displayName string) string {
	if name := strings.TrimSpace(displayName); name != "" {
		return textnorm.Title(name)
	}
	local, _, _ := strings.Cut(address, "@")
	parts := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '-' || r == '_'
	})
	if len(parts) < 2 {
		return ""
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsLetter(r) {
				return ""
			}
		}
	}
	return textnorm.Title(strings.Join(parts[:2], " "))
}
