// Package report renders HTML performance reports.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"papertrade/internal/domain"
	"papertrade/internal/store"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorEquity   = "#3b82f6"
	colorDrawdown = "#f87171"

	chartWidth  = "1200px"
	chartHeight = "420px"
)

// Renderer builds equity and drawdown charts from closed positions.
type Renderer struct {
	store          store.Store
	initialBalance float64
}

func NewRenderer(st store.Store, initialBalance float64) *Renderer {
	return &Renderer{store: st, initialBalance: initialBalance}
}

// RenderEquity writes an HTML page with the cumulative equity curve and the
// running drawdown. A strategyID of 0 covers the whole portfolio.
func (r *Renderer) RenderEquity(ctx context.Context, strategyID int64, w io.Writer) error {
	positions, err := r.store.Positions().ListClosedSince(ctx, strategyID, time.Time{})
	if err != nil {
		return fmt.Errorf("equity report: %w", err)
	}
	sort.SliceStable(positions, func(i, j int) bool {
		return closedAt(&positions[i]).Before(closedAt(&positions[j]))
	})

	xAxis := make([]string, 0, len(positions)+1)
	equity := make([]opts.LineData, 0, len(positions)+1)
	drawdown := make([]opts.LineData, 0, len(positions)+1)

	xAxis = append(xAxis, "start")
	equity = append(equity, opts.LineData{Value: r.initialBalance})
	drawdown = append(drawdown, opts.LineData{Value: 0.0})

	balance := r.initialBalance
	peak := r.initialBalance
	for i := range positions {
		p := &positions[i]
		balance += p.RealizedPnL
		if balance > peak {
			peak = balance
		}
		xAxis = append(xAxis, closedAt(p).Format("2006-01-02 15:04"))
		equity = append(equity, opts.LineData{Value: balance})
		drawdown = append(drawdown, opts.LineData{Value: peak - balance})
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(
		buildLine("Equity Curve", "cumulative balance after each close", xAxis, "Equity", equity, colorEquity),
		buildLine("Drawdown", "decline from the running peak", xAxis, "Drawdown", drawdown, colorDrawdown),
	)
	return page.Render(w)
}

func buildLine(title, subtitle string, xAxis []string, name string, data []opts.LineData, color string) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:  types.ThemeWesteros,
			Width:  chartWidth,
			Height: chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries(name, data, charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}))
	return line
}

func closedAt(p *domain.Position) time.Time {
	if p.ClosedAt != nil {
		return *p.ClosedAt
	}
	return p.OpenedAt
}
