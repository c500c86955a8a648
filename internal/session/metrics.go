package session

// Metrics receives session telemetry. internal/metrics.Collector implements it.
type Metrics interface {
	ObserveOperation(op string, err error)
	ObserveProfileResolution(outcome string)
	SetActiveSessions(n int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveOperation(string, error)  {}
func (nopMetrics) ObserveProfileResolution(string) {}
func (nopMetrics) SetActiveSessions(int)           {}
