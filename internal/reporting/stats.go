package reporting

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"solana-sniper/internal/domain"
)

// positionReturn is realized P/L over entry cost.
func positionReturn(p *domain.Position) float64 {
	if p.EntryCost.Sign() <= 0 {
		return 0
	}
	r, _ := p.RealizedPnL().Div(p.EntryCost).Float64()
	return r
}

// summarize computes the summary of closed positions. closed must be in
// close order.
func summarize(closed []*domain.Position) Summary {
	s := Summary{
		Closed:      len(closed),
		Invested:    decimal.Zero,
		RealizedPnL: decimal.Zero,
	}
	n := len(closed)
	if n == 0 {
		return s
	}

	returns := make([]float64, n)
	pnls := make([]float64, n)
	var held time.Duration
	for i, p := range closed {
		pnl := p.RealizedPnL()
		if pnl.Sign() > 0 {
			s.Wins++
		} else {
			s.Losses++
		}
		s.Invested = s.Invested.Add(p.EntryCost)
		s.RealizedPnL = s.RealizedPnL.Add(pnl)
		returns[i] = positionReturn(p)
		pnls[i], _ = pnl.Float64()
		held += p.ClosedAt.Sub(p.OpenedAt)

		if s.FirstOpened.IsZero() || p.OpenedAt.Before(s.FirstOpened) {
			s.FirstOpened = p.OpenedAt
		}
		if p.ClosedAt.After(s.LastClosed) {
			s.LastClosed = p.ClosedAt
		}
	}

	sorted := make([]float64, n)
	copy(sorted, returns)
	sort.Float64s(sorted)

	s.WinRate = winRate(s.Wins, n)
	s.ReturnMean = mean(returns)
	s.ReturnStddev = stddev(returns, s.ReturnMean)
	s.ReturnMedian = percentile(sorted, 0.50)
	s.ReturnP10 = percentile(sorted, 0.10)
	s.ReturnP90 = percentile(sorted, 0.90)
	s.ReturnMin = sorted[0]
	s.ReturnMax = sorted[n-1]
	s.MaxDrawdown = maxDrawdown(pnls)
	s.MaxConsecutiveLosses = maxConsecutiveLosses(pnls)
	s.AvgHold = (held / time.Duration(n)).Round(time.Second)
	return s
}

// group summarizes closed positions by key, sorted by key.
func group(closed []*domain.Position, key func(*domain.Position) string) []GroupRow {
	byKey := make(map[string][]*domain.Position)
	for _, p := range closed {
		k := key(p)
		byKey[k] = append(byKey[k], p)
	}

	rows := make([]GroupRow, 0, len(byKey))
	for k, ps := range byKey {
		row := GroupRow{Key: k, Trades: len(ps), RealizedPnL: decimal.Zero}
		returns := make([]float64, 0, len(ps))
		for _, p := range ps {
			pnl := p.RealizedPnL()
			if pnl.Sign() > 0 {
				row.Wins++
			}
			row.RealizedPnL = row.RealizedPnL.Add(pnl)
			returns = append(returns, positionReturn(p))
		}
		sort.Float64s(returns)
		row.WinRate = winRate(row.Wins, row.Trades)
		row.ReturnMedian = percentile(returns, 0.50)
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

func winRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev is the sample standard deviation (n-1 denominator).
func stddev(xs []float64, mean float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(n-1))
}

// percentile uses linear interpolation. sorted must be ascending.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	idx := p * float64(n-1)
	lower := int(idx)
	upper := lower + 1
	if upper >= n {
		return sorted[n-1]
	}
	frac := idx - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// maxDrawdown is the worst peak-to-trough fall of the cumulative sum.
func maxDrawdown(pnls []float64) float64 {
	cumulative, peak, worst := 0.0, 0.0, 0.0
	for _, x := range pnls {
		cumulative += x
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > worst {
			worst = dd
		}
	}
	return worst
}

// maxConsecutiveLosses is the longest run of pnl <= 0.
func maxConsecutiveLosses(pnls []float64) int {
	longest, current := 0, 0
	for _, x := range pnls {
		if x <= 0 {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return longest
}
