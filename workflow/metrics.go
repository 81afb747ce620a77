package workflow

import "time"

// Metrics summarizes an instance's execution, derived entirely from its
// trace history. No separate counters are maintained during execution;
// the history is the single source of truth.
type Metrics struct {
	TotalDuration       time.Duration `json:"totalDuration"`
	StepsExecuted       int           `json:"stepsExecuted"`
	StepsSucceeded      int           `json:"stepsSucceeded"`
	StepsFailed         int           `json:"stepsFailed"`
	StepsCompensated    int           `json:"stepsCompensated"`
	TotalRetries        int           `json:"totalRetries"`
	AverageStepDuration time.Duration `json:"averageStepDuration"`

	// Custom holds caller-defined measurements, populated through the
	// engine's metrics hook after the built-in fields are derived.
	Custom map[string]float64 `json:"custom,omitempty"`
}

// SetCustom records a caller-defined measurement, allocating the map on
// first use.
func (m *Metrics) SetCustom(name string, value float64) {
	if m.Custom == nil {
		m.Custom = make(map[string]float64)
	}
	m.Custom[name] = value
}

// SuccessRate returns succeeded/executed, or zero for an empty history.
func (m *Metrics) SuccessRate() float64 {
	if m.StepsExecuted == 0 {
		return 0
	}
	return float64(m.StepsSucceeded) / float64(m.StepsExecuted)
}

// ComputeMetrics derives Metrics from a trace history and the overall
// instance duration.
func ComputeMetrics(history []StepTrace, total time.Duration) *Metrics {
	m := &Metrics{TotalDuration: total}
	var stepTime time.Duration
	for _, t := range history {
		m.StepsExecuted++
		m.TotalRetries += t.RetryAttempts
		stepTime += t.Duration()
		switch t.Outcome {
		case OutcomeSuccess:
			m.StepsSucceeded++
		case OutcomeFailure:
			m.StepsFailed++
		}
		if t.Compensated {
			m.StepsCompensated++
		}
	}
	if m.StepsExecuted > 0 {
		m.AverageStepDuration = stepTime / time.Duration(m.StepsExecuted)
	}
	return m
}
