package usecase

import "time"

// Observer receives pipeline events for metrics. Implementations must be safe for concurrent use.
type Observer interface {
	ObserveSearch(mode string, hits int, duration time.Duration, err error)
	ObserveHybridFailOpen(reason string)
	ObserveEnrichmentFailure(kind string)
	ObserveGeneration(provider, strategy string, duration time.Duration, err error)
	ObserveAnswer(provider, strategy string, evidence int, duration time.Duration)
	ObserveIngest(chunks int, duration time.Duration, skipped bool, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveSearch(string, int, time.Duration, error) {}
func (nopObserver) ObserveHybridFailOpen(string) {}
func (nopObserver) ObserveEnrichmentFailure(string) {}
func (nopObserver) ObserveGeneration(string, string, time.Duration, error) {}
func (nopObserver) ObserveAnswer(string, string, int, time.Duration) {}
func (nopObserver) ObserveIngest(int, time.Duration, bool, error) {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
