package intent

import (
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	// defaultFuzzyThreshold is the minimum normalized edit-distance
	// similarity for a pure fuzzy match.
	defaultFuzzyThreshold = 0.80

	// defaultPhoneticThreshold is the relaxed similarity floor applied when
	// the query and the alias share a Double Metaphone code.
	defaultPhoneticThreshold = 0.70
)

// expansions rewrites spoken shorthand tokens before alias lookup.
var expansions = map[string]string{
	"bb": "barbell",
	"db": "dumbbell",
}

// Exercise is one resolvable catalogue entry.
type Exercise struct {
	ID       string
	Name     string
	Synonyms []string
}

// Match is one ranked catalogue resolution. Score is in [0,1]; an exact
// alias hit scores 1.
type Match struct {
	Exercise Exercise
	Score    float64
}

// CatalogueOption is a functional option for configuring a [Catalogue].
type CatalogueOption func(*Catalogue)

// WithFuzzyThreshold sets the minimum similarity for a non-phonetic fuzzy
// match. Default: 0.80.
func WithFuzzyThreshold(threshold float64) CatalogueOption {
	return func(c *Catalogue) { c.fuzzyThreshold = threshold }
}

// WithPhoneticThreshold sets the minimum similarity for aliases that share a
// phonetic code with the query. Default: 0.70.
func WithPhoneticThreshold(threshold float64) CatalogueOption {
	return func(c *Catalogue) { c.phoneticThreshold = threshold }
}

// Catalogue resolves spoken exercise phrases to known exercises. It is
// read-only after construction and safe for concurrent use.
type Catalogue struct {
	exercises []Exercise
	aliases   map[string]int // normalized alias -> index into exercises

	fuzzyThreshold    float64
	phoneticThreshold float64
}

// NewCatalogue builds a Catalogue over the given exercises. Every name and
// synonym becomes an alias; first-letter acronyms of multi-word names are
// added when they do not collide with an existing alias.
func NewCatalogue(exercises []Exercise, opts ...CatalogueOption) *Catalogue {
	c := &Catalogue{
		exercises:         exercises,
		aliases:           make(map[string]int),
		fuzzyThreshold:    defaultFuzzyThreshold,
		phoneticThreshold: defaultPhoneticThreshold,
	}
	for _, o := range opts {
		o(c)
	}

	for i, ex := range exercises {
		c.addAlias(normalizePhrase(ex.Name), i)
		for _, syn := range ex.Synonyms {
			c.addAlias(normalizePhrase(syn), i)
		}
	}
	for i, ex := range exercises {
		words := strings.Fields(strings.ToLower(ex.Name))
		if len(words) < 2 {
			continue
		}
		var b strings.Builder
		for _, w := range words {
			b.WriteByte(w[0])
		}
		c.addAlias(b.String(), i)
	}
	return c
}

// addAlias registers alias for exercise i. First registration wins so
// explicit synonyms beat derived acronyms.
func (c *Catalogue) addAlias(alias string, i int) {
	if alias == "" {
		return
	}
	if _, taken := c.aliases[alias]; !taken {
		c.aliases[alias] = i
	}
}

// Names returns the canonical name of every exercise, in catalogue order.
// Used to build recognition keyword hints and domain prompts.
func (c *Catalogue) Names() []string {
	names := make([]string, len(c.exercises))
	for i, ex := range c.exercises {
		names[i] = ex.Name
	}
	return names
}

// Resolve returns the best match for phrase, or ok=false when nothing in
// the catalogue comes close.
func (c *Catalogue) Resolve(phrase string) (Match, bool) {
	matches := c.ResolveAll(phrase)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}

// ResolveAll returns every plausible match for phrase, best first.
//
// Resolution runs three strategies in order of strength:
//
//  1. Exact alias lookup after normalization (score 1).
//  2. Whole-token containment — "bench" inside "bench press" — scored by
//     how much of the alias the query covers.
//  3. Fuzzy matching by normalized Levenshtein similarity, with a relaxed
//     floor when Double Metaphone codes overlap (recognizers tend to
//     produce homophones, not random strings).
func (c *Catalogue) ResolveAll(phrase string) []Match {
	norm := normalizePhrase(phrase)
	if norm == "" {
		return nil
	}

	if i, ok := c.aliases[norm]; ok {
		return []Match{{Exercise: c.exercises[i], Score: 1}}
	}

	qTokens := strings.Fields(norm)
	qCodes := metaphoneCodes(qTokens)

	best := make(map[int]float64)
	for alias, i := range c.aliases {
		aTokens := strings.Fields(alias)

		if score, ok := containmentScore(qTokens, aTokens); ok {
			if score > best[i] {
				best[i] = score
			}
			continue
		}

		sim := similarity(norm, alias)
		threshold := c.fuzzyThreshold
		if codesOverlap(qCodes, metaphoneCodes(aTokens)) {
			threshold = c.phoneticThreshold
		}
		if sim >= threshold && sim > best[i] {
			best[i] = sim
		}
	}

	matches := make([]Match, 0, len(best))
	for i, score := range best {
		matches = append(matches, Match{Exercise: c.exercises[i], Score: score})
	}
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Score != matches[b].Score {
			return matches[a].Score > matches[b].Score
		}
		return matches[a].Exercise.Name < matches[b].Exercise.Name
	})
	return matches
}

// containmentScore scores a query that is a strict in-order subset of the
// alias tokens ("bench" in "bench press"). Each query token must equal an
// alias token exactly; partial-word hits go through the fuzzy path instead.
func containmentScore(qTokens, aTokens []string) (float64, bool) {
	if len(qTokens) == 0 || len(qTokens) >= len(aTokens) {
		return 0, false
	}
	ai := 0
	for _, q := range qTokens {
		found := false
		for ; ai < len(aTokens); ai++ {
			if aTokens[ai] == q {
				found = true
				ai++
				break
			}
		}
		if !found {
			return 0, false
		}
	}
	coverage := float64(len(qTokens)) / float64(len(aTokens))
	return 0.85 + 0.1*coverage, true
}

// similarity is normalized Levenshtein similarity: 1 - distance/maxLen.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 0
	}
	dist := matchr.Levenshtein(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// metaphoneCodes returns the union of Double Metaphone codes for tokens.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// normalizePhrase lowercases, strips punctuation, splits hyphens, and
// expands spoken shorthand ("db curl" -> "dumbbell curl").
func normalizePhrase(phrase string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(phrase) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	tokens := strings.Fields(b.String())
	for i, t := range tokens {
		if exp, ok := expansions[t]; ok {
			tokens[i] = exp
		}
	}
	return strings.Join(tokens, " ")
}

// DefaultCatalogue returns the built-in exercise catalogue covering the
// common barbell, dumbbell, and bodyweight movements.
func DefaultCatalogue() *Catalogue {
	return NewCatalogue([]Exercise{
		{ID: "bench-press", Name: "Bench Press", Synonyms: []string{"bench", "flat bench", "barbell bench press"}},
		{ID: "incline-bench-press", Name: "Incline Bench Press", Synonyms: []string{"incline bench", "incline press"}},
		{ID: "overhead-press", Name: "Overhead Press", Synonyms: []string{"ohp", "shoulder press", "military press", "strict press"}},
		{ID: "back-squat", Name: "Back Squat", Synonyms: []string{"squat", "squats", "barbell squat"}},
		{ID: "front-squat", Name: "Front Squat", Synonyms: []string{"front squats"}},
		{ID: "deadlift", Name: "Deadlift", Synonyms: []string{"deadlifts", "conventional deadlift"}},
		{ID: "romanian-deadlift", Name: "Romanian Deadlift", Synonyms: []string{"rdl", "rdls", "romanian", "stiff leg deadlift"}},
		{ID: "barbell-row", Name: "Barbell Row", Synonyms: []string{"row", "rows", "bent over row", "pendlay row"}},
		{ID: "pull-up", Name: "Pull Up", Synonyms: []string{"pull ups", "pullup", "pullups"}},
		{ID: "chin-up", Name: "Chin Up", Synonyms: []string{"chin ups", "chinup", "chinups"}},
		{ID: "lat-pulldown", Name: "Lat Pulldown", Synonyms: []string{"pulldown", "pulldowns"}},
		{ID: "dumbbell-curl", Name: "Dumbbell Curl", Synonyms: []string{"curl", "curls", "bicep curl", "db curl"}},
		{ID: "tricep-pushdown", Name: "Tricep Pushdown", Synonyms: []string{"pushdown", "pushdowns", "cable pushdown"}},
		{ID: "leg-press", Name: "Leg Press", Synonyms: []string{}},
		{ID: "hip-thrust", Name: "Hip Thrust", Synonyms: []string{"hip thrusts", "barbell hip thrust"}},
		{ID: "lunge", Name: "Lunge", Synonyms: []string{"lunges", "walking lunge", "walking lunges"}},
		{ID: "dip", Name: "Dip", Synonyms: []string{"dips"}},
		{ID: "plank", Name: "Plank", Synonyms: []string{"planks"}},
	})
}
