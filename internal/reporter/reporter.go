package reporter

import (
	"fmt"
	"io"
	"time"

	"grid-engine-go/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xuri/excelize/v2"
)

// Metrics are the performance figures of one run.
type Metrics struct {
	Symbol           string
	InitialBalance   float64
	FinalBalance     float64
	TotalProfit      float64
	ProfitPercentage float64
	TotalTrades      int
	BuyTrades        int
	SellTrades       int
	WinningTrades    int
	LosingTrades     int
	WinRate          float64
	TotalFees        float64
	MaxDrawdown      float64
	StartTime        time.Time
	EndTime          time.Time
}

// CalculateMetrics derives run metrics from the trade journal and the equity
// curve. Sells are matched FIFO against earlier buys to classify round trips
// as wins or losses.
func CalculateMetrics(trades []*models.CompletedTrade, equityCurve []float64, initialBalance, finalBalance float64) *Metrics {
	m := &Metrics{
		InitialBalance: initialBalance,
		FinalBalance:   finalBalance,
		TotalTrades:    len(trades),
	}

	var openBuys []*models.CompletedTrade
	for _, trade := range trades {
		if m.Symbol == "" {
			m.Symbol = trade.Symbol
		}
		m.TotalFees += trade.Fee

		switch trade.Side {
		case models.Buy:
			m.BuyTrades++
			openBuys = append(openBuys, trade)
		case models.Sell:
			m.SellTrades++
			if len(openBuys) == 0 {
				continue
			}
			buy := openBuys[0]
			openBuys = openBuys[1:]
			profit := (trade.Price-buy.Price)*trade.Quantity - trade.Fee - buy.Fee
			if profit > 0 {
				m.WinningTrades++
			} else {
				m.LosingTrades++
			}
		}
	}

	roundTrips := m.WinningTrades + m.LosingTrades
	if roundTrips > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(roundTrips) * 100
	}

	m.TotalProfit = finalBalance - initialBalance
	if initialBalance != 0 {
		m.ProfitPercentage = m.TotalProfit / initialBalance * 100
	}
	m.MaxDrawdown = calculateMaxDrawdown(equityCurve) * 100

	if len(trades) > 0 {
		m.StartTime = trades[0].Timestamp
		m.EndTime = trades[len(trades)-1].Timestamp
	}
	return m
}

func calculateMaxDrawdown(equityCurve []float64) float64 {
	if len(equityCurve) < 2 {
		return 0
	}
	peak := equityCurve[0]
	maxDrawdown := 0.0
	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		if peak <= 0 {
			continue
		}
		drawdown := (peak - equity) / peak
		if drawdown > maxDrawdown {
			maxDrawdown = drawdown
		}
	}
	return maxDrawdown
}

// RenderTable writes the metrics as a formatted table.
func RenderTable(m *Metrics, w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Grid Trading Report: %s", m.Symbol)
	t.AppendRows([]table.Row{
		{"Initial Balance", fmt.Sprintf("%.2f", m.InitialBalance)},
		{"Final Balance", fmt.Sprintf("%.2f", m.FinalBalance)},
		{"Total Profit", fmt.Sprintf("%.2f", m.TotalProfit)},
		{"Return", fmt.Sprintf("%.2f%%", m.ProfitPercentage)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Total Trades", m.TotalTrades},
		{"Buys / Sells", fmt.Sprintf("%d / %d", m.BuyTrades, m.SellTrades)},
		{"Winning Round Trips", m.WinningTrades},
		{"Losing Round Trips", m.LosingTrades},
		{"Win Rate", fmt.Sprintf("%.2f%%", m.WinRate)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Total Fees", fmt.Sprintf("%.4f", m.TotalFees)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", m.MaxDrawdown)},
	})
	if !m.StartTime.IsZero() {
		t.AppendSeparator()
		t.AppendRows([]table.Row{
			{"First Trade", m.StartTime.Format("2006-01-02 15:04")},
			{"Last Trade", m.EndTime.Format("2006-01-02 15:04")},
		})
	}
	t.Render()
}

// ExportTrades writes the trade journal to an xlsx file for offline analysis.
func ExportTrades(trades []*models.CompletedTrade, filePath string) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Trades"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Time", "Order ID", "Symbol", "Side", "Price", "Quantity", "Fee", "Grid Price"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for row, trade := range trades {
		values := []interface{}{
			trade.Timestamp.Format(time.RFC3339),
			trade.OrderID,
			trade.Symbol,
			string(trade.Side),
			trade.Price,
			trade.Quantity,
			trade.Fee,
			trade.GridPrice,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return f.SaveAs(filePath)
}
