package mcda

import (
	"fmt"
	"math"
)

// Weights sets the relative importance of the four dimensions. They must sum
// to 1.0 within 0.001.
type Weights struct {
	Scientific  float64 `json:"scientific"`
	Clinical    float64 `json:"clinical"`
	Commercial  float64 `json:"commercial"`
	Feasibility float64 `json:"feasibility"`
}

func DefaultWeights() Weights {
	return Weights{
		Scientific:  0.30,
		Clinical:    0.30,
		Commercial:  0.25,
		Feasibility: 0.15,
	}
}

func (w Weights) Sum() float64 {
	return w.Scientific + w.Clinical + w.Commercial + w.Feasibility
}

func (w Weights) Validate() error {
	if math.Abs(w.Sum()-1.0) > 0.001 {
		return fmt.Errorf("mcda weights sum to %.4f, must sum to 1.0", w.Sum())
	}
	for _, v := range []float64{w.Scientific, w.Clinical, w.Commercial, w.Feasibility} {
		if v < 0 {
			return fmt.Errorf("mcda weights: negative weight %f", v)
		}
	}
	return nil
}
