package classifier

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"recruitrack/internal/model"
)

// RuleSet is one intent's ordered pattern list, French and English mixed.
type RuleSet struct {
	Intent   model.Intent `yaml:"intent"`
	Patterns []string     `yaml:"patterns"`
}

type rulesFile struct {
	Rules []RuleSet `yaml:"rules"`
}

// DefaultRules is evaluated in order; on equal confidence the earlier intent wins.
var DefaultRules = []RuleSet{
	{
		Intent: model.IntentAcknowledgment,
		Patterns: []string{
			`accusé de réception`, `avons bien reçu`, `reçu votre candidature`,
			`prise en compte`, `candidature enregistrée`, `merci pour votre candidature`,
			`received your application`, `thank you for applying`, `application received`,
			`acknowledgment`, `confirm receipt`, `thank you for your interest`,
		},
	},
	{
		Intent: model.IntentRejection,
		Patterns: []string{
			`ne donnerons pas suite`, `candidature non retenue`, `ne sera pas retenue`,
			`autres candidats`, `profil différent`, `malheureusement`,
			`nous regrettons`, `ne correspond pas`,
			`unfortunately`, `not selected`, `other candidates`, `not proceed`,
			`regret to inform`, `unable to offer`, `not successful`, `declined`,
		},
	},
	{
		Intent: model.IntentInterview,
		Patterns: []string{
			`entretien`, `convocation`, `rencontrer`, `disponibilité`,
			`\brdv\b`, `rendez-vous`, `planifier`, `échange téléphonique`,
			`interview`, `meeting`, `schedule`, `availability`,
			`phone call`, `video call`, `\bzoom\b`, `\bteams\b`,
		},
	},
	{
		Intent: model.IntentOffer,
		Patterns: []string{
			`\boffre\b`, `proposition d'embauche`, `\bcontrat\b`, `félicitations`,
			`heureux de vous proposer`, `accepter le poste`,
			`job offer`, `offer letter`, `congratulations`, `pleased to offer`,
			`\bcontract\b`, `employment offer`, `accept the position`,
		},
	},
	{
		Intent: model.IntentRequest,
		Patterns: []string{
			`documents`, `pièces jointes`, `compléter`, `informations supplémentaires`,
			`cv mis à jour`, `portfolio`, `références`,
			`additional information`, `references`, `updated resume`,
			`\bcomplete\b`, `\bprovide\b`,
		},
	},
}

type compiledRule struct {
	source string
	re     *regexp.Regexp
}

type compiledSet struct {
	intent model.Intent
	rules  []compiledRule
}

func compile(sets []RuleSet) ([]compiledSet, error) {
	out := make([]compiledSet, 0, len(sets))
	for _, set := range sets {
		if !set.Intent.Valid() || set.Intent == model.IntentOther {
			return nil, fmt.Errorf("rule set for unsupported intent %q", set.Intent)
		}
		cs := compiledSet{intent: set.Intent}
		for _, p := range set.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q for %s: %w", p, set.Intent, err)
			}
			cs.rules = append(cs.rules, compiledRule{source: p, re: re})
		}
		out = append(out, cs)
	}
	return out, nil
}

// LoadRules reads rule sets from a YAML file of the form
//
//	rules:
//	  - intent: acknowledgment
//	    patterns: ["accusé de réception", ...]
func LoadRules(path string) ([]RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s has no rules", path)
	}
	if _, err := compile(f.Rules); err != nil {
		return nil, err
	}
	return f.Rules, nil
}
