package models

// AnyOption leaves a generation filter unconstrained.
const AnyOption = "any"

type AgeRange struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
}

var AgeRanges = []AgeRange{
	{Label: "Infant/young child (0-5)", Min: 0, Max: 5},
	{Label: "Child (6-12)", Min: 6, Max: 12},
	{Label: "Adolescent (13-17)", Min: 13, Max: 17},
	{Label: "Young adult (18-35)", Min: 18, Max: 35},
	{Label: "Middle-aged (36-60)", Min: 36, Max: 60},
	{Label: "Elderly (61-80)", Min: 61, Max: 80},
	{Label: "Senile (81+)", Min: 81, Max: 100},
}

// FindAgeRange looks up an age range by label.
func FindAgeRange(label string) (AgeRange, bool) {
	for _, r := range AgeRanges {
		if r.Label == label {
			return r, true
		}
	}
	return AgeRange{}, false
}

var Genders = []string{AnyOption, "male", "female"}

var Specializations = []string{
	"General practice",
	"Gastroenterology",
	"Cardiology",
	"Pulmonology",
	"Neurology",
	"Endocrinology",
	"Nephrology (Urology)",
	"Infectious diseases",
	"Rheumatology",
	"Pediatrics (common cases)",
	"Traumatology and Orthopedics (uncomplicated cases)",
	"Gynecology (basic cases)",
	"Dermatology",
}

var TimerOptions = []int{0, 5, 10, 15, 20, 30}

// ValidTimerMinutes reports whether m is one of TimerOptions.
func ValidTimerMinutes(m int) bool {
	for _, o := range TimerOptions {
		if o == m {
			return true
		}
	}
	return false
}

// Options is returned to clients that build the scenario filter form.
type Options struct {
	AgeRanges       []AgeRange   `json:"age_ranges"`
	Genders         []string     `json:"genders"`
	Specializations []string     `json:"specializations"`
	Difficulties    []Difficulty `json:"difficulties"`
	TimerMinutes    []int        `json:"timer_minutes"`
	MaxConsults     int          `json:"max_consultations"`
}
