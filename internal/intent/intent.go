// Package intent turns a finalized workout utterance into a structured
// intent.
//
// Parsing is deliberately template-driven rather than model-driven: the
// vocabulary of a logging utterance is narrow ("bench press 10 reps at 185
// pounds", "rest for 3 minutes"), so ordered keyword templates plus the
// numeric grammar in [numparse] cover it with predictable latency and no
// network dependency. Exercise names are resolved against a catalogue with
// phonetic and edit-distance fuzzy matching, because speech recognizers
// routinely mangle gym jargon ("RDLs" comes back as "our deals").
//
// Parse never returns an error. Unintelligible input yields
// [KindUnknown] with confidence zero; everything below the confirmation
// threshold is flagged for a spoken read-back before it is committed.
package intent

import "github.com/voxlift/voxlift/internal/numparse"

// Kind classifies what the speaker wants done.
type Kind string

const (
	// KindLogSet records one completed set: exercise, reps, load, optional RPE.
	KindLogSet Kind = "log_set"

	// KindStartWorkout opens a new workout session.
	KindStartWorkout Kind = "start_workout"

	// KindEditLast amends fields of the most recently logged set.
	KindEditLast Kind = "edit_last"

	// KindUndoLast discards the most recently logged set.
	KindUndoLast Kind = "undo_last"

	// KindRestTimer starts a rest countdown.
	KindRestTimer Kind = "rest_timer"

	// KindExerciseMention names an exercise with no numbers attached,
	// typically announcing the next movement.
	KindExerciseMention Kind = "exercise_mention"

	// KindUnknown is the terminal fallback. Confidence is always zero.
	KindUnknown Kind = "unknown"
)

// Params carries the slots extracted from the utterance. Which fields are
// meaningful depends on the intent Kind; Has* flags distinguish "absent"
// from zero values.
type Params struct {
	// ExerciseID and Exercise identify the resolved catalogue entry.
	// When resolution failed, Exercise holds the raw spoken phrase and
	// ExerciseID is empty.
	ExerciseID string
	Exercise   string

	// ExerciseScore is the catalogue match score in [0,1].
	ExerciseScore float64

	// ExerciseInferred is true when the exercise was not spoken and was
	// filled in from conversation context instead.
	ExerciseInferred bool

	Reps    int
	HasReps bool

	Weight *numparse.Weight

	RPE    float64
	HasRPE bool

	// RestSeconds is the requested rest duration for KindRestTimer.
	RestSeconds int

	// Title is the optional workout name spoken with KindStartWorkout
	// ("start workout legs day").
	Title string
}

// Alternative is a lower-ranked interpretation offered alongside the primary
// one when the parser is not certain.
type Alternative struct {
	Kind       Kind
	Confidence float64
	Params     Params
}

// Intent is the parse result for one utterance.
type Intent struct {
	Kind       Kind
	Confidence float64
	Params     Params

	// Utterance is the original text as spoken, unnormalized.
	Utterance string

	// NeedsConfirmation is true when Confidence fell below the parser's
	// confirmation threshold; the caller should read the interpretation back
	// before committing it.
	NeedsConfirmation bool

	// Alternatives holds up to three lower-ranked interpretations, best
	// first.
	Alternatives []Alternative
}

// Context is conversational state the parser may use to fill slots the
// speaker left implicit.
type Context struct {
	// LastExercise is the catalogue name of the most recently logged or
	// mentioned exercise, if any.
	LastExercise string

	// ActiveSession reports whether a workout session is currently open.
	// Logging intents are slightly more plausible mid-session.
	ActiveSession bool
}
