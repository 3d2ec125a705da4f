package domain

import "time"

// Feature names the screen an activity originated from.
type Feature string

const (
	FeatureChat       Feature = "chat"
	FeatureImage      Feature = "image"
	FeatureStory      Feature = "story"
	FeatureTranscribe Feature = "transcribe"
	FeatureMultimodal Feature = "multimodal"
)

// ChatTurn is one user or assistant line of a chat screen's history.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Activity is a single successful screen round trip, keyed by session.
type Activity struct {
	SessionID string    `json:"session_id"`
	Feature   Feature   `json:"feature"`
	Input     string    `json:"input"`
	Output    string    `json:"output"`
	CreatedAt time.Time `json:"created_at"`
}
