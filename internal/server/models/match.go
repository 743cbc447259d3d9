package models

// MatchResult is the outcome of one biometric matching attempt. Matched is
// true only when the best candidate's distance is strictly below Threshold;
// the closest candidate always wins. Margin is the distance gap to the
// runner-up (0 when the gallery holds a single user), reported so a stricter
// policy layer can reject thin wins.
type MatchResult struct {
	Matched   bool
	UserID    string
	Distance  float64
	Threshold float64
	Margin    float64
}
