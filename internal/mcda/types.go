package mcda

type Level string

const (
	LevelProceed Level = "proceed"
	LevelRevise  Level = "revise"
	LevelStop    Level = "stop"
)

type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

type Recommendation struct {
	Level      Level           `json:"level"`
	Confidence ConfidenceLevel `json:"confidence"`
	Rationale  string          `json:"rationale"`
	Blockers   []string        `json:"blockers,omitempty"`
}

// Score is the multi-criteria result for one concept. Every dimension is in
// [1, 5]; Overall is their weighted sum.
type Score struct {
	Scientific     float64        `json:"scientific"`
	Clinical       float64        `json:"clinical"`
	Commercial     float64        `json:"commercial"`
	Feasibility    float64        `json:"feasibility"`
	Weights        Weights        `json:"weights"`
	Overall        float64        `json:"overall"`
	Recommendation Recommendation `json:"recommendation"`
	Alerts         []string       `json:"alerts,omitempty"`
}
