package roster

import (
	"strings"
)

// MatchRule decides whether a stored position title names a canonical
// position. Rules are tried in order; earlier rules are stronger.
type MatchRule interface {
	Name() string
	Match(canonical, stored string) bool
}

// DefaultRules is exact, then known variants, then committee substrings.
func DefaultRules() []MatchRule {
	return []MatchRule{ExactRule{}, NewVariantRule(nil), CommitteeRule{}}
}

type ExactRule struct{}

func (ExactRule) Name() string { return "exact" }

func (ExactRule) Match(canonical, stored string) bool {
	return normalizeTitle(canonical) == normalizeTitle(stored)
}

var defaultTitleAliases = map[string]string{
	"punong barangay":                       "barangay captain",
	"barangay chairman":                     "barangay captain",
	"barangay chairperson":                  "barangay captain",
	"brgy captain":                          "barangay captain",
	"captain":                               "barangay captain",
	"sangguniang kabataan chairperson":      "sk chairperson",
	"sk chair":                              "sk chairperson",
	"secretary":                             "barangay secretary",
	"treasurer":                             "barangay treasurer",
	"committee on women and family affairs": "committee on women and family",
}

var defaultWordVariants = map[string]string{
	"apropriation":   "appropriation",
	"appropriations": "appropriation",
	"approriation":   "appropriation",
	"santitation":    "sanitation",
	"sanitaion":      "sanitation",
	"infrastracture": "infrastructure",
	"infastructure":  "infrastructure",
	"agricultural":   "agriculture",
	"educaton":       "education",
	"chairman":       "chairperson",
	"chairwoman":     "chairperson",
	"brgy":           "barangay",
	"bgy":            "barangay",
	"&":              "and",
}

// VariantRule corrects known misspellings and alternate titles before
// comparing.
type VariantRule struct {
	words   map[string]string
	aliases map[string]string
}

// NewVariantRule builds the rule from the built-in tables plus extra
// whole-title aliases (lower case, already normalized).
func NewVariantRule(extraAliases map[string]string) VariantRule {
	aliases := make(map[string]string, len(defaultTitleAliases)+len(extraAliases))
	for k, v := range defaultTitleAliases {
		aliases[k] = v
	}
	for k, v := range extraAliases {
		aliases[normalizeTitle(k)] = normalizeTitle(v)
	}
	return VariantRule{words: defaultWordVariants, aliases: aliases}
}

func (VariantRule) Name() string { return "variant" }

func (r VariantRule) Match(canonical, stored string) bool {
	return r.correct(canonical) == r.correct(stored)
}

func (r VariantRule) correct(title string) string {
	fields := strings.Fields(normalizeTitle(title))
	for i, word := range fields {
		if fixed, ok := r.words[word]; ok {
			fields[i] = fixed
		}
	}
	corrected := strings.Join(fields, " ")
	if alias, ok := r.aliases[corrected]; ok {
		return alias
	}
	return corrected
}

const committeePhrase = "committee on"

// CommitteeRule compares the text after "committee on" in both titles and
// matches when either remainder contains the other.
type CommitteeRule struct{}

func (CommitteeRule) Name() string { return "committee" }

func (CommitteeRule) Match(canonical, stored string) bool {
	want, ok := committeeRemainder(canonical)
	if !ok {
		return false
	}
	got, ok := committeeRemainder(stored)
	if !ok {
		return false
	}
	return strings.Contains(want, got) || strings.Contains(got, want)
}

func committeeRemainder(title string) (string, bool) {
	normalized := normalizeTitle(title)
	idx := strings.Index(normalized, committeePhrase)
	if idx < 0 {
		return "", false
	}
	rest := strings.TrimSpace(normalized[idx+len(committeePhrase):])
	if rest == "" {
		return "", false
	}
	return rest, true
}

// normalizeTitle lower-cases, drops punctuation other than '&' and
// collapses whitespace.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		switch {
		case r == '.' || r == ',' || r == '-' || r == '/' || r == ':' || r == '(' || r == ')':
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
