package services

import "context"

// DashboardStats is the summary shown on the reports screen, aggregated
// client-side over the fetched (or cached) rows.
type DashboardStats struct {
	Revenue         float64
	Profit          float64
	ExpenseTotal    float64
	Net             float64
	SaleCount       int
	LowStockCount   int
	UnpaidDebtTotal float64
	UnpaidDebtCount int
}

// DashboardStats aggregates revenue, profit, expenses, low-stock and
// debt figures. Each source read goes through the routed read path, so
// the dashboard keeps working offline on cached data.
func (s *Service) DashboardStats(ctx context.Context) (DashboardStats, error) {
	var stats DashboardStats

	transactions, err := s.GetTransactions(ctx)
	if err != nil {
		return stats, err
	}
	for _, tx := range transactions {
		if tx.Type != "sale" {
			continue
		}
		stats.Revenue += tx.TotalAmount
		stats.Profit += tx.Profit
		stats.SaleCount++
	}

	expenses, err := s.GetExpenses(ctx)
	if err != nil {
		return stats, err
	}
	for _, e := range expenses {
		stats.ExpenseTotal += e.Amount
	}
	stats.Net = stats.Profit - stats.ExpenseTotal

	products, err := s.GetProducts(ctx)
	if err != nil {
		return stats, err
	}
	for _, p := range products {
		if p.Stock <= p.MinimalStock {
			stats.LowStockCount++
		}
	}

	debts, err := s.GetDebts(ctx)
	if err != nil {
		return stats, err
	}
	for _, d := range debts {
		if d.Status == "unpaid" {
			stats.UnpaidDebtTotal += d.Amount
			stats.UnpaidDebtCount++
		}
	}

	return stats, nil
}
