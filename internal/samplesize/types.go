package samplesize

type EndpointType string

const (
	EndpointSurvival     EndpointType = "survival"
	EndpointResponseRate EndpointType = "response_rate"
	EndpointContinuous   EndpointType = "continuous"
	EndpointSafety       EndpointType = "safety"
	EndpointBiomarker    EndpointType = "biomarker"
)

// Valid reports whether t is one of the known endpoint families.
func (t EndpointType) Valid() bool {
	switch t {
	case EndpointSurvival, EndpointResponseRate, EndpointContinuous, EndpointSafety, EndpointBiomarker:
		return true
	}
	return false
}

// EndpointSpec describes the primary endpoint a concept is sized against.
// Baseline and Target are proportions for response/safety endpoints,
// correlation coefficients for biomarker endpoints and median months for
// survival endpoints.
type EndpointSpec struct {
	Type              EndpointType `json:"type"`
	Description       string       `json:"description"`
	Baseline          float64      `json:"baseline"`
	Target            float64      `json:"target,omitempty"`
	HasTarget         bool         `json:"has_target"`
	HazardRatio       float64      `json:"hazard_ratio,omitempty"`
	StandardDeviation float64      `json:"standard_deviation,omitempty"`
}

type Parameters struct {
	Alpha           float64 `json:"alpha"`
	Power           float64 `json:"power"`
	Beta            float64 `json:"beta"`
	EffectSize      float64 `json:"effect_size"`
	DropoutRate     float64 `json:"dropout_rate"`
	AllocationRatio float64 `json:"allocation_ratio"`
	Arms            int     `json:"arms"`
}

type Source string

const (
	SourceFormula     Source = "formula"
	SourceAIEstimator Source = "ai_estimator"
)

type Result struct {
	Patients      int          `json:"patients"`
	Justification string       `json:"justification"`
	Parameters    Parameters   `json:"parameters"`
	Endpoint      EndpointSpec `json:"endpoint"`
	PowerAnalysis string       `json:"power_analysis"`
	Adjustments   []string     `json:"adjustments,omitempty"`
	Source        Source       `json:"source"`
}
