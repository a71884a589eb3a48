package triage

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Level is the emergency classification of an admission. A lower code is more
// severe, so the natural integer order is the queue order.
type Level int

const (
	LevelCritical     Level = 1
	LevelEmergency    Level = 2
	LevelUrgency      Level = 3
	LevelMinorUrgency Level = 4
	LevelNoUrgency    Level = 5
)

// Levels lists every level from most to least severe.
var Levels = []Level{LevelCritical, LevelEmergency, LevelUrgency, LevelMinorUrgency, LevelNoUrgency}

var levelNames = map[Level]string{
	LevelCritical:     "critical",
	LevelEmergency:    "emergency",
	LevelUrgency:      "urgency",
	LevelMinorUrgency: "minor_urgency",
	LevelNoUrgency:    "no_urgency",
}

var levelLabels = map[Level]string{
	LevelCritical:     "Critical",
	LevelEmergency:    "Emergency",
	LevelUrgency:      "Urgency",
	LevelMinorUrgency: "Minor Urgency",
	LevelNoUrgency:    "No Urgency",
}

func (l Level) Code() int { return int(l) }

func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "unknown"
}

// Label is the human readable description shown on waiting-list screens.
func (l Level) Label() string {
	if label, ok := levelLabels[l]; ok {
		return label
	}
	return "Unknown"
}

// CompareLevels orders a before b when a is more severe.
func CompareLevels(a, b Level) int {
	return a.Code() - b.Code()
}

// ParseLevel accepts a level name ("minor_urgency"), its label ("Minor
// Urgency") or its numeric code ("4").
func ParseLevel(s string) (Level, error) {
	s = strings.TrimSpace(s)
	if code, err := strconv.Atoi(s); err == nil {
		if l := Level(code); l.Valid() {
			return l, nil
		}
		return 0, ErrInvalidLevel
	}
	key := strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(s))
	for l, name := range levelNames {
		if name == key {
			return l, nil
		}
	}
	return 0, ErrInvalidLevel
}

func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Code        int    `json:"code"`
		Name        string `json:"name"`
		Description string `json:"description"`
	}{l.Code(), l.String(), l.Label()})
}
