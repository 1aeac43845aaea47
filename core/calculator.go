package core

import (
	"math"
	"time"
)

const BytesPerMB = 1 << 20

// Display precision shared by the dashboard and the CLI report.
const (
	DeltaPlaces   = 2
	ElapsedPlaces = 2
	RatePlaces    = 1
)

func BytesToMB(b int64) float64 {
	return float64(b) / BytesPerMB
}

func MBToBytes(mb float64) float64 {
	return mb * BytesPerMB
}

// SeriesPoint is one stored sample converted to megabytes, with the first
// difference against the previous sample. The first point has zero deltas.
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	RxMB      float64   `json:"rx_mb"`
	TxMB      float64   `json:"tx_mb"`
	DeltaRxMB float64   `json:"delta_rx_mb"`
	DeltaTxMB float64   `json:"delta_tx_mb"`
	RxAbsent  bool      `json:"rx_absent,omitempty"`
	TxAbsent  bool      `json:"tx_absent,omitempty"`
}

// DeltaRecord describes the interval between two adjacent samples. Rates are
// nil when the interval has no positive duration.
type DeltaRecord struct {
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	DeltaRxMB        float64   `json:"delta_rx_mb"`
	DeltaTxMB        float64   `json:"delta_tx_mb"`
	ElapsedHours     float64   `json:"elapsed_hours"`
	RxRatePerHour    *float64  `json:"rx_mb_per_hour"`
	TxRatePerHour    *float64  `json:"tx_mb_per_hour"`
	CounterDecreased bool      `json:"counter_decreased"`
}

// Series converts samples in storage order. Absent counters count as zero.
func Series(samples []Sample) []SeriesPoint {
	points := make([]SeriesPoint, len(samples))
	for i, s := range samples {
		p := SeriesPoint{
			Timestamp: s.Timestamp,
			RxAbsent:  s.RxBytes == nil,
			TxAbsent:  s.TxBytes == nil,
		}
		if s.RxBytes != nil {
			p.RxMB = BytesToMB(*s.RxBytes)
		}
		if s.TxBytes != nil {
			p.TxMB = BytesToMB(*s.TxBytes)
		}
		if i > 0 {
			p.DeltaRxMB = p.RxMB - points[i-1].RxMB
			p.DeltaTxMB = p.TxMB - points[i-1].TxMB
		}
		points[i] = p
	}
	return points
}

// Deltas returns one record per adjacent pair of samples. Counter decreases
// are passed through as negative deltas.
func Deltas(samples []Sample) []DeltaRecord {
	if len(samples) < 2 {
		return []DeltaRecord{}
	}
	points := Series(samples)

	out := make([]DeltaRecord, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		d := DeltaRecord{
			StartTime:        prev.Timestamp,
			EndTime:          cur.Timestamp,
			DeltaRxMB:        cur.DeltaRxMB,
			DeltaTxMB:        cur.DeltaTxMB,
			ElapsedHours:     cur.Timestamp.Sub(prev.Timestamp).Seconds() / 3600,
			CounterDecreased: cur.DeltaRxMB < 0 || cur.DeltaTxMB < 0,
		}
		if d.ElapsedHours > 0 {
			d.RxRatePerHour = finite(d.DeltaRxMB / d.ElapsedHours)
			d.TxRatePerHour = finite(d.DeltaTxMB / d.ElapsedHours)
		}
		out = append(out, d)
	}
	return out
}

// DeltaEndingAt returns the last record whose interval ends at t.
func DeltaEndingAt(records []DeltaRecord, t time.Time) (DeltaRecord, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].EndTime.Equal(t) {
			return records[i], true
		}
	}
	return DeltaRecord{}, false
}

func (d DeltaRecord) RateAvailable() bool {
	return d.RxRatePerHour != nil && d.TxRatePerHour != nil
}

// Rounded applies the display precision.
func (d DeltaRecord) Rounded() DeltaRecord {
	r := d
	r.DeltaRxMB = Round(d.DeltaRxMB, DeltaPlaces)
	r.DeltaTxMB = Round(d.DeltaTxMB, DeltaPlaces)
	r.ElapsedHours = Round(d.ElapsedHours, ElapsedPlaces)
	if d.RxRatePerHour != nil {
		v := Round(*d.RxRatePerHour, RatePlaces)
		r.RxRatePerHour = &v
	}
	if d.TxRatePerHour != nil {
		v := Round(*d.TxRatePerHour, RatePlaces)
		r.TxRatePerHour = &v
	}
	return r
}

func (p SeriesPoint) Rounded() SeriesPoint {
	r := p
	r.RxMB = Round(p.RxMB, DeltaPlaces)
	r.TxMB = Round(p.TxMB, DeltaPlaces)
	r.DeltaRxMB = Round(p.DeltaRxMB, DeltaPlaces)
	r.DeltaTxMB = Round(p.DeltaTxMB, DeltaPlaces)
	return r
}

// Round rounds half away from zero and never returns negative zero.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	r := math.Round(v*p) / p
	if r == 0 {
		return 0
	}
	return r
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
