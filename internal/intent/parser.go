package intent

import (
	"math"
	"strings"

	"github.com/voxlift/voxlift/internal/numparse"
)

const (
	// defaultConfirmThreshold is the confidence below which the parser asks
	// for a spoken confirmation before the intent is committed.
	defaultConfirmThreshold = 0.70

	defaultMaxAlternatives = 3

	// sessionBoost nudges logging intents up when a workout is in progress.
	sessionBoost = 0.05

	// defaultRestSeconds is used when the speaker asks for a rest timer
	// without naming a duration.
	defaultRestSeconds = 90
)

var startPhrases = [][]string{
	{"start", "workout"},
	{"begin", "workout"},
	{"start", "my", "workout"},
	{"new", "workout"},
	{"start", "session"},
}

var undoPhrases = [][]string{
	{"undo"},
	{"scratch", "that"},
	{"never", "mind"},
	{"delete", "that"},
	{"delete", "last", "set"},
	{"remove", "last", "set"},
}

var editLeads = map[string]struct{}{
	"change":   {},
	"actually": {},
	"make":     {},
	"correct":  {},
	"fix":      {},
	"edit":     {},
}

var restWords = map[string]struct{}{
	"rest":  {},
	"break": {},
	"timer": {},
}

var connectors = map[string]struct{}{
	"at":   {},
	"for":  {},
	"of":   {},
	"and":  {},
	"the":  {},
	"with": {},
	"on":   {},
	"to":   {},
	"that": {},
	"it":   {},
}

// Option is a functional option for configuring a [Parser].
type Option func(*Parser)

// WithConfirmationThreshold sets the confidence below which intents are
// flagged for confirmation. Default: 0.70.
func WithConfirmationThreshold(threshold float64) Option {
	return func(p *Parser) { p.confirmThreshold = threshold }
}

// WithMaxAlternatives caps the number of alternative interpretations
// attached to a parse. Default: 3.
func WithMaxAlternatives(n int) Option {
	return func(p *Parser) { p.maxAlternatives = n }
}

// Parser parses workout utterances. It is read-only after construction and
// safe for concurrent use.
type Parser struct {
	cat              *Catalogue
	confirmThreshold float64
	maxAlternatives  int
}

// NewParser constructs a Parser over the given catalogue. A nil catalogue
// falls back to [DefaultCatalogue].
func NewParser(cat *Catalogue, opts ...Option) *Parser {
	if cat == nil {
		cat = DefaultCatalogue()
	}
	p := &Parser{
		cat:              cat,
		confirmThreshold: defaultConfirmThreshold,
		maxAlternatives:  defaultMaxAlternatives,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Catalogue returns the exercise catalogue the parser resolves against.
func (p *Parser) Catalogue() *Catalogue { return p.cat }

// Parse interprets one finalized utterance. It never returns an error:
// input that matches no template comes back as [KindUnknown] with
// confidence zero.
func (p *Parser) Parse(utterance string, pctx Context) Intent {
	in := Intent{Kind: KindUnknown, Utterance: utterance}

	norm := normalizePhrase(utterance)
	tokens := strings.Fields(norm)
	if len(tokens) == 0 {
		in.NeedsConfirmation = true
		return in
	}

	startEnd, isStart := matchAnyPhrase(tokens, startPhrases)
	switch {
	case isStart:
		in.Kind = KindStartWorkout
		in.Confidence = 0.95
		in.Params.Title = workoutTitle(tokens[startEnd:])
	case containsAnyPhrase(tokens, undoPhrases):
		in.Kind = KindUndoLast
		in.Confidence = 0.95
	case containsAnyWord(tokens, restWords):
		p.parseRest(&in, tokens)
	case isEditLead(tokens[0]):
		p.parseEdit(&in, tokens[1:], pctx)
	default:
		p.parseLogOrMention(&in, tokens, pctx)
	}

	if pctx.ActiveSession && (in.Kind == KindLogSet || in.Kind == KindRestTimer) {
		in.Confidence = math.Min(1, in.Confidence+sessionBoost)
	}
	in.NeedsConfirmation = in.Confidence < p.confirmThreshold
	if len(in.Alternatives) > p.maxAlternatives {
		in.Alternatives = in.Alternatives[:p.maxAlternatives]
	}
	return in
}

// parseRest fills in a rest-timer intent: "rest for 3 minutes", "take a
// break", "two minute rest".
func (p *Parser) parseRest(in *Intent, tokens []string) {
	in.Kind = KindRestTimer

	remaining := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := restWords[t]; ok {
			continue
		}
		if _, ok := connectors[t]; ok {
			continue
		}
		if t == "take" || t == "a" || t == "an" {
			continue
		}
		remaining = append(remaining, t)
	}

	if ts := numparse.ParseTime(strings.Join(remaining, " ")); ts != nil && ts.Seconds > 0 {
		in.Params.RestSeconds = int(ts.Seconds)
		in.Confidence = 0.90
		return
	}

	// No duration spoken: propose the default but ask first.
	in.Params.RestSeconds = defaultRestSeconds
	in.Confidence = 0.60
}

// parseEdit fills in an edit-last intent from the tokens after the edit
// lead word: "change that to 8 reps", "actually 190 pounds".
func (p *Parser) parseEdit(in *Intent, tokens []string, pctx Context) {
	in.Kind = KindEditLast

	s := p.extractSlots(tokens)
	p.applySlots(in, s)

	if in.Params.Exercise == "" && pctx.LastExercise != "" {
		p.inferExercise(in, pctx.LastExercise)
	}

	if s.hasReps || s.weight != nil || s.hasRPE {
		in.Confidence = 0.80
	} else {
		in.Confidence = 0.50
	}
}

// parseLogOrMention handles the default template family: a set log when any
// numeric slot is present, a bare exercise mention otherwise.
func (p *Parser) parseLogOrMention(in *Intent, tokens []string, pctx Context) {
	s := p.extractSlots(tokens)
	exPhrase := strings.Join(s.exercise, " ")

	if !s.hasReps && s.weight == nil && !s.hasRPE {
		// No numbers at all: either an exercise mention or noise.
		matches := p.cat.ResolveAll(exPhrase)
		if len(matches) == 0 {
			return // KindUnknown, confidence 0
		}
		in.Kind = KindExerciseMention
		in.Confidence = matches[0].Score
		setExercise(&in.Params, matches[0])
		in.Alternatives = mentionAlternatives(matches[1:])
		return
	}

	in.Kind = KindLogSet
	p.applySlots(in, s)

	base := 0.50
	if s.hasReps {
		base += 0.20
	}
	if s.weight != nil {
		base += 0.15
	}
	if s.hasRPE {
		base += 0.10
	}

	switch {
	case exPhrase != "":
		matches := p.cat.ResolveAll(exPhrase)
		if len(matches) == 0 {
			// Unresolved exercise: keep the raw phrase so the confirmation
			// prompt can read it back.
			in.Params.Exercise = exPhrase
			in.Confidence = base * 0.50
			return
		}
		setExercise(&in.Params, matches[0])
		in.Confidence = base * matches[0].Score
		in.Alternatives = logSetAlternatives(matches[1:], in.Params, base)
	case pctx.LastExercise != "":
		p.inferExercise(in, pctx.LastExercise)
		in.Confidence = base * 0.90
	default:
		// Numbers with no exercise and no context to borrow one from.
		in.Confidence = base * 0.60
	}
}

// inferExercise fills the exercise slot from conversational context.
func (p *Parser) inferExercise(in *Intent, lastExercise string) {
	if m, ok := p.cat.Resolve(lastExercise); ok {
		setExercise(&in.Params, m)
	} else {
		in.Params.Exercise = lastExercise
	}
	in.Params.ExerciseInferred = true
}

func setExercise(params *Params, m Match) {
	params.ExerciseID = m.Exercise.ID
	params.Exercise = m.Exercise.Name
	params.ExerciseScore = m.Score
}

func mentionAlternatives(matches []Match) []Alternative {
	alts := make([]Alternative, 0, len(matches))
	for _, m := range matches {
		var params Params
		setExercise(&params, m)
		alts = append(alts, Alternative{
			Kind:       KindExerciseMention,
			Confidence: m.Score,
			Params:     params,
		})
	}
	return alts
}

func logSetAlternatives(matches []Match, primary Params, base float64) []Alternative {
	alts := make([]Alternative, 0, len(matches))
	for _, m := range matches {
		params := primary
		setExercise(&params, m)
		alts = append(alts, Alternative{
			Kind:       KindLogSet,
			Confidence: base * m.Score,
			Params:     params,
		})
	}
	return alts
}

// slots holds the raw extraction result before classification.
type slots struct {
	exercise []string
	reps     int
	hasReps  bool
	weight   *numparse.Weight
	rpe      float64
	hasRPE   bool
}

func (p *Parser) applySlots(in *Intent, s slots) {
	in.Params.Reps = s.reps
	in.Params.HasReps = s.hasReps
	in.Params.Weight = s.weight
	in.Params.RPE = s.rpe
	in.Params.HasRPE = s.hasRPE
}

// extractSlots scans the token stream once, pulling out reps, weight, and
// RPE and collecting the leading non-numeric tokens as the exercise phrase.
//
// Recognized shapes, all composable:
//
//	<exercise> <n> reps [at <w> [unit]] [at rpe <r>]
//	<exercise> <w> [unit] for <n> [reps]
//	<n> reps at <w>            (exercise from context)
func (p *Parser) extractSlots(tokens []string) slots {
	var s slots
	numbersSeen := false

	i := 0
	for i < len(tokens) {
		tok := tokens[i]

		if tok == "rpe" {
			if v, ok := numparse.ParseRPE(strings.Join(tokens[i:], " ")); ok {
				s.rpe, s.hasRPE = v, true
				break // RPE owns the tail of the utterance
			}
		}

		if val, end, ok := longestNumber(tokens, i); ok {
			numbersSeen = true
			var next string
			if end < len(tokens) {
				next = tokens[end]
			}
			var prev string
			if i > 0 {
				prev = tokens[i-1]
			}

			switch {
			case next == "rep" || next == "reps":
				s.reps, s.hasReps = int(val), true
				i = end + 1
			case isWeightUnit(next):
				u, _ := numparse.CanonicalWeightUnit(next)
				s.weight = &numparse.Weight{Value: val, Unit: u}
				i = end + 1
			case prev == "at" && s.weight == nil:
				s.weight = &numparse.Weight{Value: val, Unit: numparse.Pounds}
				i = end
			case next == "for" && s.weight == nil:
				s.weight = &numparse.Weight{Value: val, Unit: numparse.Pounds}
				i = end
			case !s.hasReps:
				s.reps, s.hasReps = int(val), true
				i = end
			case s.weight == nil:
				s.weight = &numparse.Weight{Value: val, Unit: numparse.Pounds}
				i = end
			default:
				i = end
			}
			continue
		}

		if _, ok := connectors[tok]; ok {
			i++
			continue
		}
		if !numbersSeen {
			s.exercise = append(s.exercise, tok)
		}
		i++
	}
	return s
}

// longestNumber finds the longest token run starting at i that parses as a
// number. A lone "a"/"an" is an article, not the number one.
func longestNumber(tokens []string, i int) (val float64, end int, ok bool) {
	for j := len(tokens); j > i; j-- {
		v, parsed := numparse.ParseNumber(strings.Join(tokens[i:j], " "))
		if !parsed {
			continue
		}
		if j == i+1 && (tokens[i] == "a" || tokens[i] == "an" || tokens[i] == "and") {
			return 0, 0, false
		}
		return v, j, true
	}
	return 0, 0, false
}

func isWeightUnit(tok string) bool {
	if tok == "" {
		return false
	}
	_, ok := numparse.CanonicalWeightUnit(tok)
	return ok
}

func isEditLead(tok string) bool {
	_, ok := editLeads[tok]
	return ok
}

func containsAnyWord(tokens []string, words map[string]struct{}) bool {
	for _, t := range tokens {
		if _, ok := words[t]; ok {
			return true
		}
	}
	return false
}

// containsAnyPhrase reports whether any phrase appears as a consecutive
// token run.
func containsAnyPhrase(tokens []string, phrases [][]string) bool {
	_, ok := matchAnyPhrase(tokens, phrases)
	return ok
}

// matchAnyPhrase finds the phrase occurrence reaching furthest into the
// token stream and returns the index just past it. Taking the furthest end
// keeps "start my workout legs day" from leaving "workout" in the title.
func matchAnyPhrase(tokens []string, phrases [][]string) (end int, ok bool) {
	for _, phrase := range phrases {
		if e, found := phraseEnd(tokens, phrase); found && e > end {
			end, ok = e, true
		}
	}
	return end, ok
}

// phraseEnd returns the index just past the first occurrence of phrase as a
// consecutive token run.
func phraseEnd(tokens, phrase []string) (int, bool) {
	if len(phrase) == 0 || len(phrase) > len(tokens) {
		return 0, false
	}
outer:
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		for j, w := range phrase {
			if tokens[i+j] != w {
				continue outer
			}
		}
		return i + len(phrase), true
	}
	return 0, false
}

// workoutTitle joins the tokens spoken after a start phrase into a workout
// name: "start workout legs day" → "legs day". Leading filler words are
// dropped; no trailing tokens means no title.
func workoutTitle(rest []string) string {
	for len(rest) > 0 {
		switch rest[0] {
		case "called", "named", "titled", "for", "the", "a", "an":
			rest = rest[1:]
		default:
			return strings.Join(rest, " ")
		}
	}
	return ""
}
