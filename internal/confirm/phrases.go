package confirm

import (
	"fmt"
	"strings"

	"github.com/voxlift/voxlift/internal/intent"
	"github.com/voxlift/voxlift/internal/numparse"
)

// Style controls how much of the interpretation a confirmation reads back.
type Style string

const (
	// StyleMinimal is a bare acknowledgement ("Logged").
	StyleMinimal Style = "minimal"

	// StyleConcise reads back the key fields. This is the default.
	StyleConcise Style = "concise"

	// StyleDetailed reads back everything, including RPE and a hint about
	// undo.
	StyleDetailed Style = "detailed"
)

// speakableWords expands written shorthand into words a synthesizer
// pronounces correctly. Keys are matched per token, case-insensitively.
var speakableWords = map[string]string{
	"lb":   "pounds",
	"lbs":  "pounds",
	"kg":   "kilograms",
	"kgs":  "kilograms",
	"kilo": "kilograms",
	"sec":  "seconds",
	"secs": "seconds",
	"min":  "minutes",
	"mins": "minutes",
	"rpe":  "R P E",
	"bb":   "barbell",
	"db":   "dumbbell",
	"bp":   "bench press",
	"ohp":  "overhead press",
	"rdl":  "Romanian deadlift",
	"rdls": "Romanian deadlifts",
}

// Speakable rewrites text so a synthesizer reads it naturally: unit
// shorthand becomes the full word and gym acronyms are expanded.
// Capitalization of unrecognized tokens is preserved.
func Speakable(text string) string {
	tokens := strings.Fields(text)
	for i, t := range tokens {
		trimmed := strings.Trim(t, ".,!?:;")
		if exp, ok := speakableWords[strings.ToLower(trimmed)]; ok {
			tokens[i] = strings.Replace(t, trimmed, exp, 1)
		}
	}
	return strings.Join(tokens, " ")
}

// ForIntent renders the confirmation utterance for a parsed intent in the
// given style. Intents flagged for confirmation come back phrased as a
// question instead of an acknowledgement.
func ForIntent(in intent.Intent, style Style) string {
	if in.NeedsConfirmation {
		return question(in)
	}

	switch in.Kind {
	case intent.KindLogSet:
		return logSetPhrase(in.Params, style)
	case intent.KindStartWorkout:
		name := "Workout"
		if t := in.Params.Title; t != "" {
			name = capitalize(t) + " workout"
		}
		if style == StyleDetailed {
			return name + " started. Tell me your first exercise when you're ready."
		}
		return name + " started."
	case intent.KindUndoLast:
		return "Last set removed."
	case intent.KindEditLast:
		if style == StyleMinimal {
			return "Updated."
		}
		return "Updated: " + slotSummary(in.Params) + "."
	case intent.KindRestTimer:
		return restPhrase(in.Params.RestSeconds, style)
	case intent.KindExerciseMention:
		if style == StyleMinimal {
			return "Got it."
		}
		return "Switched to " + Speakable(in.Params.Exercise) + "."
	default:
		return "Sorry, I didn't catch that."
	}
}

// question phrases a low-confidence interpretation as a read-back question.
func question(in intent.Intent) string {
	switch in.Kind {
	case intent.KindLogSet, intent.KindEditLast:
		return "Did you mean " + slotSummary(in.Params) + "?"
	case intent.KindRestTimer:
		return fmt.Sprintf("Rest for %s?", formatDuration(in.Params.RestSeconds))
	case intent.KindExerciseMention:
		return "Did you mean " + Speakable(in.Params.Exercise) + "?"
	default:
		return "Sorry, I didn't catch that. Could you repeat it?"
	}
}

// logSetPhrase renders a successful set log.
func logSetPhrase(p intent.Params, style Style) string {
	switch style {
	case StyleMinimal:
		return "Logged."
	case StyleDetailed:
		s := "Logged " + slotSummary(p) + "."
		if p.HasRPE {
			s += fmt.Sprintf(" R P E %s.", trimFloat(p.RPE))
		}
		return s + " Say undo to remove it."
	default:
		return capitalize(slotSummary(p)) + "."
	}
}

// slotSummary joins whichever slots are present: "bench press, 10 reps at
// 185 pounds".
func slotSummary(p intent.Params) string {
	var parts []string
	if p.Exercise != "" {
		parts = append(parts, strings.ToLower(Speakable(p.Exercise)))
	}
	if p.HasReps {
		parts = append(parts, fmt.Sprintf("%d reps", p.Reps))
	}
	if p.Weight != nil {
		w := fmt.Sprintf("at %s %s", trimFloat(p.Weight.Value), unitWord(p.Weight.Unit))
		if !p.HasReps {
			w = fmt.Sprintf("%s %s", trimFloat(p.Weight.Value), unitWord(p.Weight.Unit))
		}
		parts = append(parts, w)
	}
	if len(parts) == 0 {
		return "that"
	}
	return strings.Join(parts, ", ")
}

func restPhrase(seconds int, style Style) string {
	switch style {
	case StyleMinimal:
		return "Timer set."
	case StyleDetailed:
		return fmt.Sprintf("Rest timer set for %s. I'll let you know when it's done.", formatDuration(seconds))
	default:
		return fmt.Sprintf("Resting %s.", formatDuration(seconds))
	}
}

// formatDuration renders a duration the way a coach would say it.
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "0 seconds"
	}
	m, s := seconds/60, seconds%60
	switch {
	case m == 0:
		return fmt.Sprintf("%d %s", s, plural("second", s))
	case s == 0:
		return fmt.Sprintf("%d %s", m, plural("minute", m))
	default:
		return fmt.Sprintf("%d %s %d %s", m, plural("minute", m), s, plural("second", s))
	}
}

func plural(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func unitWord(u numparse.WeightUnit) string {
	switch u {
	case numparse.Kilograms:
		return "kilograms"
	case numparse.Stone:
		return "stone"
	case numparse.Ounces:
		return "ounces"
	default:
		return "pounds"
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// trimFloat renders a float without a trailing ".0".
func trimFloat(v float64) string {
	s := fmt.Sprintf("%.1f", v)
	return strings.TrimSuffix(s, ".0")
}
