package core

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"
)

// TableTimeLayout is the short day.month.year form used in tables.
const TableTimeLayout = "02.01.06 15:04"

type TableRow struct {
	Start            string `json:"start"`
	End              string `json:"end"`
	DeltaRxMB        string `json:"delta_rx_mb"`
	DeltaTxMB        string `json:"delta_tx_mb"`
	ElapsedHours     string `json:"elapsed_hours"`
	RxMBPerHour      string `json:"rx_mb_per_hour"`
	TxMBPerHour      string `json:"tx_mb_per_hour"`
	CounterDecreased bool   `json:"counter_decreased"`
}

// TableRows renders records newest first with display precision applied.
// Unavailable rates are rendered as "-".
func TableRows(records []DeltaRecord, loc *time.Location) []TableRow {
	if loc == nil {
		loc = time.UTC
	}
	rows := make([]TableRow, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		d := records[i].Rounded()
		rows = append(rows, TableRow{
			Start:            d.StartTime.In(loc).Format(TableTimeLayout),
			End:              d.EndTime.In(loc).Format(TableTimeLayout),
			DeltaRxMB:        formatFixed(d.DeltaRxMB, DeltaPlaces),
			DeltaTxMB:        formatFixed(d.DeltaTxMB, DeltaPlaces),
			ElapsedHours:     formatFixed(d.ElapsedHours, ElapsedPlaces),
			RxMBPerHour:      formatRate(d.RxRatePerHour),
			TxMBPerHour:      formatRate(d.TxRatePerHour),
			CounterDecreased: d.CounterDecreased,
		})
	}
	return rows
}

// WriteTable prints rows as an aligned text table.
func WriteTable(w io.Writer, rows []TableRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "start\tend\tΔrx MB\tΔtx MB\thours\trx MB/h\ttx MB/h\t")
	for _, r := range rows {
		mark := ""
		if r.CounterDecreased {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Start, r.End, r.DeltaRxMB, r.DeltaTxMB, r.ElapsedHours, r.RxMBPerHour, r.TxMBPerHour, mark)
	}
	return tw.Flush()
}

// ChartPoint is one vertex of the sawtooth chart. Label is set on peaks
// whose interval has a rate.
type ChartPoint struct {
	Time  time.Time `json:"time"`
	RxMB  float64   `json:"rx_mb"`
	TxMB  float64   `json:"tx_mb"`
	Label string    `json:"label,omitempty"`
}

// Sawtooth draws each interval as (start,0) (end,delta) (end,0).
func Sawtooth(records []DeltaRecord) []ChartPoint {
	pts := make([]ChartPoint, 0, len(records)*3)
	for _, rec := range records {
		d := rec.Rounded()
		peak := ChartPoint{Time: d.EndTime, RxMB: d.DeltaRxMB, TxMB: d.DeltaTxMB}
		if d.RateAvailable() {
			peak.Label = fmt.Sprintf("%s / %s MB/h", formatRate(d.RxRatePerHour), formatRate(d.TxRatePerHour))
		}
		pts = append(pts,
			ChartPoint{Time: d.StartTime},
			peak,
			ChartPoint{Time: d.EndTime},
		)
	}
	return pts
}

func formatFixed(v float64, places int) string {
	return strconv.FormatFloat(Round(v, places), 'f', places, 64)
}

func formatRate(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatFixed(*v, RatePlaces)
}
