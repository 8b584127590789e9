// Package vitals pulls vital signs out of patient replies and keeps a per-sign
// history for the session.
package vitals

import (
	"fmt"
	"regexp"
	"strings"
)

type Sign string

const (
	BloodPressure Sign = "blood_pressure"
	HeartRate     Sign = "heart_rate"
	Temperature   Sign = "temperature"
	Saturation    Sign = "spo2"
)

// Signs is the fixed display order.
var Signs = []Sign{BloodPressure, HeartRate, Temperature, Saturation}

// Labels are matched case-insensitively and must not be glued to a preceding
// letter, so "t" in "at 37 weeks" is not a temperature.
var (
	bpPattern   = regexp.MustCompile(`(?i)\b(\d{2,3})\s*(?:/|на)\s*(\d{2,3})\b`)
	hrPattern   = regexp.MustCompile(`(?i)(^|[^\p{L}])((?:ЧСС|пульс|heart rate|pulse|HR)\s*:?\s*)(\d{2,3})\b`)
	tempPattern = regexp.MustCompile(`(?i)(^|[^\p{L}])((?:температура|temperature|temp|t)\s*:?\s*)(\d{2}(?:[.,]\d)?)\b`)
	satPattern  = regexp.MustCompile(`(?i)(^|[^\p{L}])((?:сатурация|saturation|SpO2)\s*:?\s*)(\d{2,3})(\s*%)`)
)

// Reading holds the first mention of each sign in one text. Empty strings
// mean the sign was not mentioned.
type Reading struct {
	BloodPressure string `json:"blood_pressure,omitempty"`
	HeartRate     string `json:"heart_rate,omitempty"`
	Temperature   string `json:"temperature,omitempty"`
	Saturation    string `json:"spo2,omitempty"`
}

func (r Reading) Empty() bool {
	return r == Reading{}
}

func (r Reading) value(s Sign) string {
	switch s {
	case BloodPressure:
		return r.BloodPressure
	case HeartRate:
		return r.HeartRate
	case Temperature:
		return r.Temperature
	case Saturation:
		return r.Saturation
	}
	return ""
}

// Extract finds blood pressure, heart rate, temperature, and saturation in
// text. Decimal commas are normalized to periods.
func Extract(text string) Reading {
	var r Reading
	if m := bpPattern.FindStringSubmatch(text); m != nil {
		r.BloodPressure = m[1] + "/" + m[2]
	}
	if m := hrPattern.FindStringSubmatch(text); m != nil {
		r.HeartRate = m[3]
	}
	if m := tempPattern.FindStringSubmatch(text); m != nil {
		r.Temperature = strings.Replace(m[3], ",", ".", 1)
	}
	if m := satPattern.FindStringSubmatch(text); m != nil {
		r.Saturation = m[3]
	}
	return r
}

// Entry is one recorded value, tagged with the turn it was seen on.
type Entry struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// format renders the entry with the unit of its sign.
func (e Entry) format(s Sign) string {
	switch s {
	case HeartRate:
		return fmt.Sprintf("%s: %s bpm", e.Tag, e.Value)
	case Temperature:
		return fmt.Sprintf("%s: %s°C", e.Tag, e.Value)
	case Saturation:
		return fmt.Sprintf("%s: %s%%", e.Tag, e.Value)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Value)
}

// History is the running per-sign list for one session.
type History map[Sign][]Entry

func NewHistory() History {
	h := make(History, len(Signs))
	for _, s := range Signs {
		h[s] = []Entry{}
	}
	return h
}

// Record extracts vitals from text and appends each one found under tag.
func (h History) Record(text, tag string) Reading {
	r := Extract(text)
	for _, s := range Signs {
		if v := r.value(s); v != "" {
			h[s] = append(h[s], Entry{Tag: tag, Value: v})
		}
	}
	return r
}

// Lines returns the formatted history of one sign.
func (h History) Lines(s Sign) []string {
	out := make([]string, 0, len(h[s]))
	for _, e := range h[s] {
		out = append(out, e.format(s))
	}
	return out
}

// TurnTag is the label recorded values carry.
func TurnTag(turn int) string {
	return fmt.Sprintf("Question #%d", turn)
}

// Highlight wraps every vital sign value in **bold** markup for display.
func Highlight(text string) string {
	text = bpPattern.ReplaceAllStringFunc(text, func(m string) string { return "**" + m + "**" })
	text = hrPattern.ReplaceAllString(text, "${1}${2}**${3}**")
	text = tempPattern.ReplaceAllString(text, "${1}${2}**${3}**")
	text = satPattern.ReplaceAllString(text, "${1}${2}**${3}${4}**")
	return text
}
