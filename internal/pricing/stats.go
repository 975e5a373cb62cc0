package pricing

import (
	"math"
	"sort"
	"time"

	"github.com/quantrend/dexarb/internal/domain"
)

// Average returns the arithmetic mean price of the points, or 0 when empty.
func Average(points []domain.PricePoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Price
	}
	return sum / float64(len(points))
}

// Volatility returns the population standard deviation of the prices. Fewer
// than two points yield 0.
func Volatility(points []domain.PricePoint) float64 {
	if len(points) < 2 {
		return 0
	}

	mean := Average(points)
	var variance float64
	for _, p := range points {
		d := p.Price - mean
		variance += d * d
	}
	variance /= float64(len(points))
	return math.Sqrt(variance)
}

// Candle is one OHLC bucket aggregated from price points.
type Candle struct {
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Samples   int
	StartTime time.Time
	EndTime   time.Time
}

// Candleify buckets the points into fixed-width OHLC candles ordered oldest
// first. Points are sorted by their own timestamps, so the caller may pass
// ring output in any order. A non-positive bucket defaults to one minute.
func Candleify(points []domain.PricePoint, bucket time.Duration) []Candle {
	if len(points) == 0 {
		return nil
	}
	if bucket <= 0 {
		bucket = time.Minute
	}

	sorted := make([]domain.PricePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var out []Candle
	var cur *Candle
	for _, p := range sorted {
		start := p.Timestamp.Truncate(bucket)
		if cur == nil || !cur.StartTime.Equal(start) {
			out = append(out, Candle{
				Open:      p.Price,
				High:      p.Price,
				Low:       p.Price,
				Close:     p.Price,
				Samples:   1,
				StartTime: start,
				EndTime:   start.Add(bucket),
			})
			cur = &out[len(out)-1]
			continue
		}

		if p.Price > cur.High {
			cur.High = p.Price
		}
		if p.Price < cur.Low {
			cur.Low = p.Price
		}
		cur.Close = p.Price
		cur.Samples++
	}
	return out
}
