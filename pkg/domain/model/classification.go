package model

// Classification is the learner's verdict on a chat message that is worth remembering
type Classification struct {
	Question   string
	Answer     string
	Category   string
	Confidence float64
}
