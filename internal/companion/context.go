// Package companion holds the SoonPsy persona and the per-request user
// context that is folded into the system instruction.
package companion

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

const (
	MoodPlaceholder      = "Not specified"
	GratitudePlaceholder = "None"

	// ConnectionCheckMessage is sent by the connectivity probe.
	ConnectionCheckMessage = "Hello, can you hear me?"
)

// Context carries the optional form values collected next to a message.
// A nil *Context is valid and means nothing was provided.
type Context struct {
	Mood      string
	RestHours float64
	Gratitude string
}

const instructionTemplate = `You are SoonPsy, an AI companion for mental health and well-being.

CURRENT USER CONTEXT:
- Mood: %MOOD%
- Pet Sleep: %REST% hours
- Gratitude: %GRATITUDE%

Provide supportive mental health guidance.`

// SystemInstruction renders the persona prompt for c.
func SystemInstruction(c *Context) string {
	var mood, gratitude string
	var rest float64
	if c != nil {
		mood = strings.TrimSpace(c.Mood)
		gratitude = strings.TrimSpace(c.Gratitude)
		rest = c.RestHours
	}
	if mood == "" {
		mood = MoodPlaceholder
	}
	if gratitude == "" {
		gratitude = GratitudePlaceholder
	}

	r := strings.NewReplacer(
		"%MOOD%", mood,
		"%REST%", FormatRestHours(rest),
		"%GRATITUDE%", gratitude,
	)
	return r.Replace(instructionTemplate)
}

// FormatRestHours prints v in its shortest decimal form. Negative and
// non-finite values print as 0.
func FormatRestHours(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseRestHours reads a raw form value the lenient way browsers do:
// the longest leading decimal prefix counts, exponent included, and
// anything unparsable is 0.
func ParseRestHours(raw string) float64 {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for ; i < len(s) && isDigit(s[i]); i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		for i++; i < len(s) && isDigit(s[i]); i++ {
			digits++
		}
	}
	if digits == 0 {
		return 0
	}
	end := i
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		expStart := j
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		if j > expStart {
			end = j
		}
	}
	v, err := strconv.ParseFloat(s[:end], 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }
