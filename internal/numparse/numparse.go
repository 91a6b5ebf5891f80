// Package numparse converts spoken numerals and unit phrases into numeric
// values and canonical units.
//
// All parse functions are pure and deterministic: they perform no I/O and
// never return an error. Input that cannot be understood yields the zero
// value and ok=false (or a nil result), letting callers fall back without
// exception-style control flow.
//
// Numbers are recognised in two forms:
//
//  1. Numeric literals ("185", "2.5") via a strconv fast path.
//  2. English cardinal words ("one hundred eighty five") via an additive/
//     multiplicative grammar: ones, teens, and tens accumulate additively
//     while "hundred" and "thousand" multiply the accumulator and flush.
//     Hyphenated compounds ("twenty-one") are handled as a two-token case.
package numparse

import (
	"strconv"
	"strings"
)

// WeightUnit is a canonical weight unit identifier.
type WeightUnit string

const (
	Pounds    WeightUnit = "lbs"
	Kilograms WeightUnit = "kg"
	Stone     WeightUnit = "stone"
	Ounces    WeightUnit = "oz"
)

// TimeUnit is a canonical time unit identifier.
type TimeUnit string

const (
	Seconds TimeUnit = "sec"
	Minutes TimeUnit = "min"
	Hours   TimeUnit = "hr"
)

// DistanceUnit is a canonical distance unit identifier.
type DistanceUnit string

const (
	Meters     DistanceUnit = "m"
	Kilometers DistanceUnit = "km"
	Miles      DistanceUnit = "mi"
)

// Weight is a parsed weight phrase such as "185 pounds".
type Weight struct {
	Value float64
	Unit  WeightUnit
}

// TimeSpan is a parsed duration phrase such as "3 minutes". Seconds always
// holds the value converted to seconds regardless of the spoken unit.
type TimeSpan struct {
	Value   float64
	Unit    TimeUnit
	Seconds float64
}

// Distance is a parsed distance phrase such as "5 kilometers".
type Distance struct {
	Value float64
	Unit  DistanceUnit
}

// ones covers zero through nineteen; values are added to the accumulator.
var ones = map[string]float64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
}

// tens covers the multiples of ten from twenty to ninety.
var tens = map[string]float64{
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

// multipliers scale and flush the running accumulator.
var multipliers = map[string]float64{
	"hundred":  100,
	"thousand": 1000,
}

// Unit alias tables map every spoken form to its canonical unit. Factors are
// relative to the canonical base of each dimension (pounds, seconds, meters).

var weightAliases = map[string]WeightUnit{
	"lb": Pounds, "lbs": Pounds, "pound": Pounds, "pounds": Pounds,
	"kg": Kilograms, "kgs": Kilograms, "kilo": Kilograms, "kilos": Kilograms,
	"kilogram": Kilograms, "kilograms": Kilograms,
	"stone": Stone, "stones": Stone, "st": Stone,
	"oz": Ounces, "ounce": Ounces, "ounces": Ounces,
}

// weightFactors convert each unit to pounds.
var weightFactors = map[WeightUnit]float64{
	Pounds:    1,
	Kilograms: 2.2046226218,
	Stone:     14,
	Ounces:    1.0 / 16.0,
}

var timeAliases = map[string]TimeUnit{
	"s": Seconds, "sec": Seconds, "secs": Seconds, "second": Seconds, "seconds": Seconds,
	"min": Minutes, "mins": Minutes, "minute": Minutes, "minutes": Minutes,
	"hr": Hours, "hrs": Hours, "hour": Hours, "hours": Hours,
}

// timeFactors convert each unit to seconds.
var timeFactors = map[TimeUnit]float64{
	Seconds: 1,
	Minutes: 60,
	Hours:   3600,
}

var distanceAliases = map[string]DistanceUnit{
	"m": Meters, "meter": Meters, "meters": Meters, "metre": Meters, "metres": Meters,
	"km": Kilometers, "kilometer": Kilometers, "kilometers": Kilometers,
	"kilometre": Kilometers, "kilometres": Kilometers, "k": Kilometers,
	"mi": Miles, "mile": Miles, "miles": Miles,
}

// distanceFactors convert each unit to meters.
var distanceFactors = map[DistanceUnit]float64{
	Meters:     1,
	Kilometers: 1000,
	Miles:      1609.344,
}

// ParseNumber parses text as a single number, either a numeric literal or a
// spoken English cardinal ("one hundred eighty five"). Returns ok=false when
// text is not a recognisable number.
func ParseNumber(text string) (float64, bool) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0, false
	}
	return parseTokens(tokens)
}

// parseTokens runs the cardinal grammar over tokens. Every token must be
// consumed for the parse to succeed.
func parseTokens(tokens []string) (float64, bool) {
	// Fast path: the whole phrase is a single numeric literal.
	if len(tokens) == 1 {
		if v, err := strconv.ParseFloat(tokens[0], 64); err == nil {
			return v, true
		}
	}

	var total, current float64
	seenWord := false

	for _, tok := range tokens {
		switch {
		case tok == "and":
			// Filler in phrases like "one hundred and five".
			continue

		case tok == "a" || tok == "an":
			// "a hundred", "an hour" style articles act as one.
			if current == 0 {
				current = 1
			}
			seenWord = true

		default:
			if v, ok := ones[tok]; ok {
				current += v
				seenWord = true
				continue
			}
			if v, ok := tens[tok]; ok {
				current += v
				seenWord = true
				continue
			}
			if m, ok := multipliers[tok]; ok {
				if current == 0 {
					current = 1
				}
				if m >= 1000 {
					total += current * m
					current = 0
				} else {
					current *= m
				}
				seenWord = true
				continue
			}
			// Numeric literal embedded in a word sequence ("2 hundred").
			if v, err := strconv.ParseFloat(tok, 64); err == nil {
				current += v
				seenWord = true
				continue
			}
			return 0, false
		}
	}

	if !seenWord {
		return 0, false
	}
	return total + current, true
}

// ParseWeight parses a weight phrase such as "185 pounds", "ninety kilos",
// or "225" (unit defaults to pounds when absent). Returns nil when no number
// can be extracted.
func ParseWeight(text string) *Weight {
	value, unitTok, ok := splitNumberUnit(text)
	if !ok {
		return nil
	}
	unit := Pounds
	if unitTok != "" {
		u, known := weightAliases[unitTok]
		if !known {
			return nil
		}
		unit = u
	}
	return &Weight{Value: value, Unit: unit}
}

// ParseTime parses a duration phrase such as "3 minutes" or "ninety seconds".
// A bare number is interpreted as seconds. Returns nil when no number can be
// extracted.
func ParseTime(text string) *TimeSpan {
	value, unitTok, ok := splitNumberUnit(text)
	if !ok {
		return nil
	}
	unit := Seconds
	if unitTok != "" {
		u, known := timeAliases[unitTok]
		if !known {
			return nil
		}
		unit = u
	}
	return &TimeSpan{
		Value:   value,
		Unit:    unit,
		Seconds: value * timeFactors[unit],
	}
}

// ParseDistance parses a distance phrase such as "5 kilometers". A bare
// number is interpreted as meters. Returns nil when no number can be
// extracted.
func ParseDistance(text string) *Distance {
	value, unitTok, ok := splitNumberUnit(text)
	if !ok {
		return nil
	}
	unit := Meters
	if unitTok != "" {
		u, known := distanceAliases[unitTok]
		if !known {
			return nil
		}
		unit = u
	}
	return &Distance{Value: value, Unit: unit}
}

// ParseRPE parses a Rate of Perceived Exertion phrase such as "rpe 8",
// "RPE eight and a half", or a bare "8". Values outside [1, 10] reject the
// parse.
func ParseRPE(text string) (float64, bool) {
	tokens := tokenize(text)
	// Strip a leading "rpe" or "at rpe" marker.
	for len(tokens) > 0 && (tokens[0] == "rpe" || tokens[0] == "at") {
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return 0, false
	}

	// "eight and a half" — the grammar treats "and" as filler, so handle the
	// half suffix before the main parse.
	half := false
	if n := len(tokens); n >= 2 && tokens[n-1] == "half" {
		tokens = tokens[:n-1]
		for len(tokens) > 0 {
			last := tokens[len(tokens)-1]
			if last == "a" || last == "an" || last == "and" {
				tokens = tokens[:len(tokens)-1]
				continue
			}
			break
		}
		half = true
	}

	v, ok := parseTokens(tokens)
	if !ok {
		return 0, false
	}
	if half {
		v += 0.5
	}
	if v < 1 || v > 10 {
		return 0, false
	}
	return v, true
}

// ConvertWeight converts value from one weight unit to another. Returns
// ok=false when either unit is unknown.
func ConvertWeight(value float64, from, to WeightUnit) (float64, bool) {
	ff, ok1 := weightFactors[from]
	tf, ok2 := weightFactors[to]
	if !ok1 || !ok2 {
		return 0, false
	}
	return value * ff / tf, true
}

// ConvertTime converts value from one time unit to another. Returns ok=false
// when either unit is unknown.
func ConvertTime(value float64, from, to TimeUnit) (float64, bool) {
	ff, ok1 := timeFactors[from]
	tf, ok2 := timeFactors[to]
	if !ok1 || !ok2 {
		return 0, false
	}
	return value * ff / tf, true
}

// ConvertDistance converts value from one distance unit to another. Returns
// ok=false when either unit is unknown.
func ConvertDistance(value float64, from, to DistanceUnit) (float64, bool) {
	ff, ok1 := distanceFactors[from]
	tf, ok2 := distanceFactors[to]
	if !ok1 || !ok2 {
		return 0, false
	}
	return value * ff / tf, true
}

// CanonicalWeightUnit resolves a spoken unit token ("kgs", "pound") to its
// canonical unit. Returns ok=false for unrecognised tokens.
func CanonicalWeightUnit(token string) (WeightUnit, bool) {
	u, ok := weightAliases[strings.ToLower(strings.TrimSpace(token))]
	return u, ok
}

// splitNumberUnit tokenizes text and splits it into the longest leading
// number phrase and an optional single trailing unit token.
func splitNumberUnit(text string) (value float64, unitTok string, ok bool) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0, "", false
	}

	// Try the longest number prefix first so "one hundred eighty five pounds"
	// consumes four tokens before treating "pounds" as the unit.
	for end := len(tokens); end >= 1; end-- {
		v, numOK := parseTokens(tokens[:end])
		if !numOK {
			continue
		}
		rest := tokens[end:]
		switch len(rest) {
		case 0:
			return v, "", true
		case 1:
			return v, rest[0], true
		}
	}
	return 0, "", false
}

// tokenize lowercases text, splits hyphenated compounds ("twenty-one") into
// their two component tokens, and returns whitespace-separated tokens.
func tokenize(text string) []string {
	text = strings.ToLower(strings.TrimSpace(text))
	text = strings.ReplaceAll(text, "-", " ")
	return strings.Fields(text)
}
