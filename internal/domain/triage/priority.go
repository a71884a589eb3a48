package triage

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Result is the score of one pending admission along with the findings that
// produced it. Results are computed on demand and never stored.
type Result struct {
	Admission Admission `json:"admission"`
	Score     int       `json:"score"`
	Reasons   []string  `json:"reasons"`
	Level     Level     `json:"emergency_level"`
}

// noteRule scores a clinical note finding. A rule fires once when any of its
// stems appears in the accent-folded, lower-cased note.
type noteRule struct {
	stems  []string
	points int
	reason string
}

var noteRules = []noteRule{
	{stems: []string{"dolor torac", "chest pain"}, points: 3, reason: "note: chest pain"},
	{stems: []string{"disnea", "dyspnea", "dyspnoea"}, points: 3, reason: "note: dyspnea"},
	{stems: []string{"inconscien", "unconscious"}, points: 5, reason: "note: unconscious"},
	{stems: []string{"convulsi", "seizure"}, points: 5, reason: "note: seizures"},
	{stems: []string{"sangrado", "hemorrag", "bleeding"}, points: 4, reason: "note: bleeding"},
	{stems: []string{"politrauma", "polytrauma"}, points: 4, reason: "note: polytrauma"},
	{stems: []string{"acv", "stroke"}, points: 4, reason: "note: suspected stroke"},
}

// Rank orders the pending admissions for attention. Admissions are grouped
// by emergency level, most severe group first; inside a group they are sorted
// by score descending and then by arrival. Score never moves an admission
// across levels.
func Rank(admissions []Admission, now time.Time) []Result {
	groups := make(map[Level][]Result)
	for _, a := range admissions {
		if a.State() != StatePending {
			continue
		}
		groups[a.Level] = append(groups[a.Level], score(a, now))
	}
	if len(groups) == 0 {
		return []Result{}
	}

	levels := make([]Level, 0, len(groups))
	for l := range groups {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return CompareLevels(levels[i], levels[j]) < 0 })

	ranked := make([]Result, 0, len(admissions))
	for _, l := range levels {
		group := groups[l]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Score != group[j].Score {
				return group[i].Score > group[j].Score
			}
			return group[i].Admission.ArrivedAt.Before(group[j].Admission.ArrivedAt)
		})
		ranked = append(ranked, group...)
	}
	return ranked
}

// Suggest returns the top ranked admission. ok is false when nobody waits.
func Suggest(admissions []Admission, now time.Time) (r Result, ok bool) {
	ranked := Rank(admissions, now)
	if len(ranked) == 0 {
		return Result{}, false
	}
	return ranked[0], true
}

func score(a Admission, now time.Time) Result {
	r := Result{Admission: a, Level: a.Level, Reasons: []string{}}
	r.Score += scoreVitals(a.Vitals, &r.Reasons)
	r.Score += scoreNote(a.Note, &r.Reasons)
	r.Score += scoreWait(now.Sub(a.ArrivedAt), &r.Reasons)
	return r
}

func scoreVitals(v VitalSigns, reasons *[]string) int {
	points := 0
	add := func(p int, format string, args ...interface{}) {
		points += p
		*reasons = append(*reasons, fmt.Sprintf(format, args...))
	}

	switch t := float64(v.Temperature); {
	case t >= 39:
		add(3, "high temperature (%g°C)", t)
	case t >= 38:
		add(1, "fever (%g°C)", t)
	case t <= 35:
		add(3, "low temperature (%g°C)", t)
	}

	switch hr := float64(v.HeartRate); {
	case hr >= 130:
		add(3, "marked tachycardia (%g bpm)", hr)
	case hr >= 110:
		add(2, "tachycardia (%g bpm)", hr)
	case hr <= 50:
		add(2, "bradycardia (%g bpm)", hr)
	}

	switch rr := float64(v.RespiratoryRate); {
	case rr >= 30:
		add(3, "marked tachypnea (%g rpm)", rr)
	case rr >= 22:
		add(2, "tachypnea (%g rpm)", rr)
	case rr <= 10:
		add(3, "bradypnea (%g rpm)", rr)
	}

	sys, dia := v.BloodPressure.Systolic, v.BloodPressure.Diastolic
	switch {
	case sys <= 90:
		add(3, "hypotension (%g/%g mmHg)", sys, dia)
	case sys >= 160 || dia >= 100:
		add(2, "hypertension (%g/%g mmHg)", sys, dia)
	}
	return points
}

func scoreNote(note string, reasons *[]string) int {
	folded := foldText(note)
	if folded == "" {
		return 0
	}
	points := 0
	for _, rule := range noteRules {
		for _, stem := range rule.stems {
			if strings.Contains(folded, stem) {
				points += rule.points
				*reasons = append(*reasons, rule.reason)
				break
			}
		}
	}
	return points
}

func scoreWait(waited time.Duration, reasons *[]string) int {
	minutes := int(waited / time.Minute)
	switch {
	case minutes >= 120:
		*reasons = append(*reasons, fmt.Sprintf("high wait time (%d min)", minutes))
		return 2
	case minutes >= 60:
		*reasons = append(*reasons, fmt.Sprintf("moderate wait time (%d min)", minutes))
		return 1
	}
	return 0
}

// foldText lower-cases s and strips combining marks so "Dolor torácico"
// matches the stem "dolor torac".
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}
