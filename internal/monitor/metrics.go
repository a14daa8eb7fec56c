package monitor

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// LatencyStats summarises tick handling time in milliseconds. Quantiles are
// estimated from the histogram buckets the same way histogram_quantile does.
type LatencyStats struct {
	Count uint64  `json:"count"`
	Avg   float64 `json:"avg"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Snapshot is the JSON view of a session's counters.
type Snapshot struct {
	TickLatency         LatencyStats      `json:"tick_latency"`
	Admitted            uint64            `json:"admitted"`
	Rejected            map[string]uint64 `json:"rejected"`
	Triggers            uint64            `json:"triggers"`
	OrdersPlaced        map[string]uint64 `json:"orders_placed"`
	ActiveSubscriptions int               `json:"active_subscriptions"`
	Violations          map[string]uint64 `json:"violations"`
	BusDropped          uint64            `json:"bus_dropped"`
	Timestamp           time.Time         `json:"timestamp"`
}

func latencyStats(h prometheus.Histogram) LatencyStats {
	var pb dto.Metric
	if err := h.Write(&pb); err != nil || pb.Histogram == nil {
		return LatencyStats{}
	}
	hist := pb.Histogram
	n := hist.GetSampleCount()
	if n == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Count: n,
		Avg:   hist.GetSampleSum() / float64(n) * 1000,
		P50:   bucketQuantile(0.50, hist) * 1000,
		P95:   bucketQuantile(0.95, hist) * 1000,
		P99:   bucketQuantile(0.99, hist) * 1000,
	}
}

// bucketQuantile interpolates linearly inside the bucket holding rank q.
// Ranks beyond the last finite bucket report that bucket's upper bound.
func bucketQuantile(q float64, hist *dto.Histogram) float64 {
	rank := q * float64(hist.GetSampleCount())
	var lower float64
	var below uint64
	for _, b := range hist.GetBucket() {
		upper := b.GetUpperBound()
		cum := b.GetCumulativeCount()
		if math.IsInf(upper, 1) {
			break
		}
		if float64(cum) >= rank {
			inBucket := cum - below
			if inBucket == 0 {
				return upper
			}
			return lower + (upper-lower)*(rank-float64(below))/float64(inBucket)
		}
		lower, below = upper, cum
	}
	return lower
}
