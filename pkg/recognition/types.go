// Package recognition holds the shared recognition record and the
// lock-guarded state the pipeline loops coordinate through.
package recognition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reservation is the elevator request attached to a user in the directory.
type Reservation struct {
	EntryFloor            int    `json:"entryFloor"`
	DestinationFloor      int    `json:"destinationFloor"`
	NumberOfPeople        int    `json:"numberOfPeople"`
	UrgencyLevel          string `json:"urgencyLevel"`
	WaitingTimePreference int    `json:"waitingTimePreference"`
}

// UnmarshalJSON accepts numbers stored as strings and an urgency stored as
// a number; the directory is written by several clients.
func (r *Reservation) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"entryFloor", &r.EntryFloor},
		{"destinationFloor", &r.DestinationFloor},
		{"numberOfPeople", &r.NumberOfPeople},
		{"waitingTimePreference", &r.WaitingTimePreference},
	}
	for _, f := range ints {
		v, ok := raw[f.key]
		if !ok || v == nil {
			continue
		}
		n, ok := toInt(v)
		if !ok {
			return fmt.Errorf("reservation: %s: unexpected value %v", f.key, v)
		}
		*f.dst = n
	}

	switch v := raw["urgencyLevel"].(type) {
	case nil:
	case string:
		r.UrgencyLevel = v
	case json.Number:
		r.UrgencyLevel = v.String()
	case bool:
		r.UrgencyLevel = strconv.FormatBool(v)
	default:
		return fmt.Errorf("reservation: urgencyLevel: unexpected value %v", v)
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return int(i), true
		}
		if f, err := val.Float64(); err == nil {
			return int(f), true
		}
	case string:
		s := strings.TrimSpace(val)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int(f), true
		}
	case float64:
		return int(val), true
	}
	return 0, false
}

// Recognition is the enriched result of one accepted match.
// It is built once per session and not modified afterwards.
type Recognition struct {
	UserID            string      `json:"userID"`
	UserName          string      `json:"userName"`
	ExternalUID       string      `json:"firebaseUID"`
	Designation       string      `json:"designation"`
	Reservation       Reservation `json:"reservation"`
	PredictedPriority float64     `json:"predictedPriority"`
}

// LogEntry is what the shutdown sequencer hands to recorders.
type LogEntry struct {
	SessionID   string
	Key         string
	CapturedAt  time.Time
	Recognition Recognition
}

// LogTimeLayout formats the timestamp segment of a log key.
const LogTimeLayout = "2006-01-02 15:04:05"

// LogKey returns the directory path a recognition is logged under.
func LogKey(userID string, at time.Time) string {
	return fmt.Sprintf("/recognized_users_log/%s/%s", userID, at.Format(LogTimeLayout))
}

// FormatPriority renders a priority score without trailing zeros.
func FormatPriority(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// DisplayLines returns the overlay text shown for a recognition.
func DisplayLines(r Recognition) []string {
	res := r.Reservation
	return []string{
		fmt.Sprintf("User Name: %s", r.UserName),
		fmt.Sprintf("User ID: %s", r.UserID),
		fmt.Sprintf("Designation: %s", r.Designation),
		fmt.Sprintf("Entry Floor: %d, Dest Floor: %d", res.EntryFloor, res.DestinationFloor),
		fmt.Sprintf("People: %d, Urgency: %s", res.NumberOfPeople, res.UrgencyLevel),
		fmt.Sprintf("Wait Pref: %d min", res.WaitingTimePreference),
		fmt.Sprintf("Predicted Priority: %s", FormatPriority(r.PredictedPriority)),
	}
}

// Announcement returns the sentence spoken when a user is recognized.
func Announcement(r Recognition) string {
	return fmt.Sprintf("User %s recognized. Priority score is %s. Going to floor %d.",
		r.UserID, FormatPriority(r.PredictedPriority), r.Reservation.DestinationFloor)
}
