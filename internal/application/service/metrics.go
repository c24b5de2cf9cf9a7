package service

import "time"

// Metrics receives counters from the lifecycle steps
type Metrics interface {
	ObserveStep(step string, report *StepReport, elapsed time.Duration)
	IncPenalty(reason, outcome string)
	IncNotification(eventType, status string)
	IncTransition(from, to string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveStep(string, *StepReport, time.Duration) {}
func (nopMetrics) IncPenalty(string, string)                      {}
func (nopMetrics) IncNotification(string, string)                 {}
func (nopMetrics) IncTransition(string, string)                   {}

func orNopMetrics(m Metrics) Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
