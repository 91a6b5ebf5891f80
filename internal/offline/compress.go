package offline

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode/utf8"
)

// WireEvent is an event prepared for transmission: the stored transcript
// decompressed back to its spoken form and identical consecutive events
// collapsed into one record with a repeat count.
type WireEvent struct {
	Event Event
	Count int

	// collapsedIDs are the local ids folded into this wire event, in queue
	// order. The first id is Event.ID itself.
	collapsedIDs []string
}

// IDs returns the local event ids this wire event represents.
func (w WireEvent) IDs() []string { return w.collapsedIDs }

// Compress prepares a pending batch for the wire. Transcripts come off
// disk in their compressed form and are expanded back to what the user
// said; runs of identical consecutive events (same session, kind, and
// payload) collapse into a single event with a count. Order is preserved.
func Compress(events []Event) []WireEvent {
	out := make([]WireEvent, 0, len(events))
	for _, ev := range events {
		ev.Transcript = DecompressTranscript(ev.Transcript)

		if n := len(out); n > 0 && sameRun(out[n-1].Event, ev) {
			out[n-1].Count++
			out[n-1].collapsedIDs = append(out[n-1].collapsedIDs, ev.ID)
			continue
		}
		out = append(out, WireEvent{
			Event:        ev,
			Count:        1,
			collapsedIDs: []string{ev.ID},
		})
	}
	return out
}

// sameRun reports whether b continues a run started by a.
func sameRun(a, b Event) bool {
	return a.SessionID == b.SessionID &&
		a.Kind == b.Kind &&
		bytes.Equal(a.Payload, b.Payload)
}

// Transcript run-length encoding. Recognition engines occasionally emit
// drawn-out vocalizations ("gooooooooal") whose repeated characters are
// pure storage cost. Runs of rleMinRun or more identical characters are
// stored as marker + char + count + marker; everything else is copied
// through. The marker is a control character that never appears in speech
// transcripts.
const (
	rleMarker = '\x1f'
	rleMinRun = 4
)

// CompressTranscript folds long repeated-character runs before durable
// storage. Text containing the marker byte is stored as-is, since it could
// not be decoded unambiguously.
func CompressTranscript(text string) string {
	if strings.ContainsRune(text, rleMarker) {
		return text
	}
	var b strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		if n := j - i; n >= rleMinRun {
			b.WriteRune(rleMarker)
			b.WriteRune(runes[i])
			b.WriteString(strconv.Itoa(n))
			b.WriteRune(rleMarker)
		} else {
			for ; i < j; i++ {
				b.WriteRune(runes[i])
			}
		}
		i = j
	}
	return b.String()
}

// DecompressTranscript restores a transcript compressed by
// [CompressTranscript]. Malformed sequences pass through untouched rather
// than failing the sync.
func DecompressTranscript(text string) string {
	if !strings.ContainsRune(text, rleMarker) {
		return text
	}
	var b strings.Builder
	for len(text) > 0 {
		start := strings.IndexRune(text, rleMarker)
		if start < 0 {
			b.WriteString(text)
			break
		}
		b.WriteString(text[:start])
		rest := text[start+1:]

		ch, size := utf8.DecodeRuneInString(rest)
		end := strings.IndexRune(rest[size:], rleMarker)
		if ch == utf8.RuneError || end < 0 {
			b.WriteString(text[start:])
			break
		}
		n, err := strconv.Atoi(rest[size : size+end])
		if err != nil || n < rleMinRun {
			b.WriteString(text[start:])
			break
		}
		for range n {
			b.WriteRune(ch)
		}
		text = rest[size+end+1:]
	}
	return b.String()
}

// StripAlternatives removes the "alternatives" key from a JSON payload.
// Payloads that do not decode to an object pass through untouched.
func StripAlternatives(payload json.RawMessage) json.RawMessage {
	if len(payload) == 0 {
		return payload
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return payload
	}
	if _, ok := obj["alternatives"]; !ok {
		return payload
	}
	delete(obj, "alternatives")
	stripped, err := json.Marshal(obj)
	if err != nil {
		return payload
	}
	return stripped
}
