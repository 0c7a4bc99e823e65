package city

// Documented mood deltas. Accumulated over the day, applied once in the
// mood-update phase, clamped to [-1, +1].
const (
	MoodTheftVictim    = -0.20
	MoodAssetDestroyed = -0.30
	MoodColdCase       = -0.15
	MoodWelfare        = 0.10
	MoodHealed         = 0.15
	MoodJusticeServed  = 0.20
	MoodStrongEarnings = 0.05
	MoodDailyStress    = -0.10
)

// addMood accumulates a delta into the agent's day bucket.
func (a *Agent) addMood(delta float64) {
	a.moodDelta += delta
}

// applyMoodDelta folds the day's accumulated deltas into the mood scalar
// and resets the bucket. Called only by the scheduler's mood phase.
func (a *Agent) applyMoodDelta() {
	a.Mood = clamp1(a.Mood + a.moodDelta)
	a.moodDelta = 0
}

// moodText converts the scalar into the descriptive framing the reasoning
// model sees. The number itself is never shown.
func moodText(m float64) string {
	switch {
	case m <= -0.7:
		return "desperate and hopeless"
	case m <= -0.4:
		return "miserable"
	case m <= -0.1:
		return "uneasy and frustrated"
	case m < 0.1:
		return "steady"
	case m < 0.4:
		return "content"
	case m < 0.7:
		return "upbeat"
	default:
		return "thriving"
	}
}
