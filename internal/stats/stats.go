package stats

import "strings"

// UserStats is the profile-facing statistics payload.
type UserStats struct {
	TotalChallenges      int `json:"totalChallenges"`
	CompletedChallenges  int `json:"completedChallenges"`
	TotalCaloriesBurned  int `json:"totalCaloriesBurned"`
	TotalWorkoutMinutes  int `json:"totalWorkoutMinutes"`
	Score                int `json:"score"`
	TrainingCount        int `json:"trainingCount"`
	TotalTrainingMinutes int `json:"totalTrainingMinutes"`
	BadgeCount           int `json:"badgeCount"`
	FriendCount          int `json:"friendCount"`
}

// Snapshot is the read-only, flattened view of a user's statistics that
// badge rules are evaluated against. Derived fields (trainingCount,
// completedChallenges, totalTrainingMinutes) are recomputed from the
// training and participation stores when the snapshot is built, so rule
// evaluation never trusts a drifted persisted counter.
type Snapshot map[string]any

// Resolve walks a dot-delimited path key by key. A missing key or a
// non-object intermediate value resolves to (nil, false); the caller treats
// that as an always-false rule rather than an error.
func (s Snapshot) Resolve(path string) (any, bool) {
	var current any = map[string]any(s)
	for _, key := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
