package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"category"`
	Amount Money  `json:"amount"`
}

// Summary holds the ledger totals. Net may be negative.
type Summary struct {
	TotalIncome  Money `json:"total_income"`
	TotalExpense Money `json:"total_expense"`
	Net          Money `json:"net"`
}

// Summarize totals incomes and expenses over txs.
func Summarize(txs []Transaction) Summary {
	var s Summary
	for _, t := range txs {
		switch t.Type {
		case Income:
			s.TotalIncome = s.TotalIncome.Add(t.Amount)
		case Expense:
			s.TotalExpense = s.TotalExpense.Add(t.Amount)
		}
	}
	s.Net = s.TotalIncome.Sub(s.TotalExpense)
	return s
}

// ExpenseBreakdown sums expense amounts per category, keeping the order in
// which categories first appear.
func ExpenseBreakdown(txs []Transaction) []CategoryAmount {
	idx := map[string]int{}
	var out []CategoryAmount
	for _, t := range txs {
		if t.Type != Expense {
			continue
		}
		i, ok := idx[t.Category]
		if !ok {
			i = len(out)
			idx[t.Category] = i
			out = append(out, CategoryAmount{Name: t.Category})
		}
		out[i].Amount = out[i].Amount.Add(t.Amount)
	}
	return out
}
