package api

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"math"
	"strings"
	"time"

	"github.com/Ogstra/ifstat/core"
)

const (
	chartWidth  = 900
	chartHeight = 320
	chartPad    = 40
)

// renderChart draws the sawtooth series as a standalone SVG document.
func renderChart(w io.Writer, pts []core.ChartPoint, loc *time.Location) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" font-family="sans-serif" font-size="11">`, chartWidth, chartHeight)
	bw.WriteString("\n")

	if len(pts) == 0 {
		fmt.Fprintf(bw, `<text x="%d" y="%d" text-anchor="middle">not enough samples</text>`, chartWidth/2, chartHeight/2)
		bw.WriteString("\n</svg>\n")
		return bw.Flush()
	}

	t0, t1 := pts[0].Time, pts[0].Time
	lo, hi := 0.0, 0.0
	for _, p := range pts {
		if p.Time.Before(t0) {
			t0 = p.Time
		}
		if p.Time.After(t1) {
			t1 = p.Time
		}
		lo = math.Min(lo, math.Min(p.RxMB, p.TxMB))
		hi = math.Max(hi, math.Max(p.RxMB, p.TxMB))
	}
	if hi == lo {
		hi = lo + 1
	}
	span := t1.Sub(t0).Seconds()

	x := func(t time.Time) float64 {
		if span <= 0 {
			return chartWidth / 2
		}
		return chartPad + t.Sub(t0).Seconds()/span*(chartWidth-2*chartPad)
	}
	y := func(v float64) float64 {
		return chartHeight - chartPad - (v-lo)/(hi-lo)*(chartHeight-2*chartPad)
	}

	// axes
	fmt.Fprintf(bw, `<line x1="%d" y1="%.1f" x2="%d" y2="%.1f" stroke="#999"/>`+"\n",
		chartPad, y(0), chartWidth-chartPad, y(0))
	fmt.Fprintf(bw, `<text x="4" y="%.1f">%s</text>`+"\n", y(hi)+4, html.EscapeString(fmt.Sprintf("%.2f MB", hi)))
	fmt.Fprintf(bw, `<text x="%d" y="%d">%s</text>`+"\n", chartPad, chartHeight-8, t0.In(loc).Format(core.TableTimeLayout))
	fmt.Fprintf(bw, `<text x="%d" y="%d" text-anchor="end">%s</text>`+"\n", chartWidth-chartPad, chartHeight-8, t1.In(loc).Format(core.TableTimeLayout))

	line := func(color string, val func(core.ChartPoint) float64) {
		var b strings.Builder
		for i, p := range pts {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%.1f,%.1f", x(p.Time), y(val(p)))
		}
		fmt.Fprintf(bw, `<polyline fill="none" stroke="%s" stroke-width="1.5" points="%s"/>`+"\n", color, b.String())
	}
	line("#1f77b4", func(p core.ChartPoint) float64 { return p.RxMB })
	line("#ff7f0e", func(p core.ChartPoint) float64 { return p.TxMB })

	for _, p := range pts {
		if p.Label == "" {
			continue
		}
		fmt.Fprintf(bw, `<text x="%.1f" y="%.1f" text-anchor="middle">%s</text>`+"\n",
			x(p.Time), y(math.Max(p.RxMB, p.TxMB))-6, html.EscapeString(p.Label))
	}
	fmt.Fprintf(bw, `<text x="%d" y="14" fill="#1f77b4">rx</text><text x="%d" y="14" fill="#ff7f0e">tx</text>`+"\n",
		chartWidth-chartPad-40, chartWidth-chartPad-16)
	bw.WriteString("</svg>\n")
	return bw.Flush()
}
