package registry

import "time"

// RecordScrapeSuccess increments the success counter and refreshes the
// last-success timestamp and duration gauges for router.
func (r *Registry) RecordScrapeSuccess(router string, duration time.Duration, at time.Time) {
	r.scrapeSuccess.WithLabelValues(router).Inc()
	r.scrapeDurationMilliseconds.WithLabelValues(router).Set(float64(duration.Milliseconds()))
	r.scrapeLastSuccessTimestampSecond.WithLabelValues(router).Set(float64(at.Unix()))
}

// RecordScrapeError increments the error counter and refreshes the
// duration gauge for router; the last-success timestamp is left untouched.
func (r *Registry) RecordScrapeError(router string, duration time.Duration) {
	r.scrapeErrors.WithLabelValues(router).Inc()
	r.scrapeDurationMilliseconds.WithLabelValues(router).Set(float64(duration.Milliseconds()))
}

// SetConsecutiveErrors mirrors the pool's per-target consecutive-error
// count into a gauge, for dashboards that want it without scraping /health.
func (r *Registry) SetConsecutiveErrors(router string, count int) {
	r.connectionConsecutiveErrors.WithLabelValues(router).Set(float64(count))
}

// SetCollectionCycleDuration records the wall-clock time of one full
// scheduler cycle across every target.
func (r *Registry) SetCollectionCycleDuration(d time.Duration) {
	r.collectionCycleDurationMilliseconds.Set(float64(d.Milliseconds()))
}

// SetPoolStats mirrors the pool's total/leased connection counts.
func (r *Registry) SetPoolStats(total, active int) {
	r.connectionPoolSize.Set(float64(total))
	r.connectionPoolActive.Set(float64(active))
}
