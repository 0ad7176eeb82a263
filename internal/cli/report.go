package cli

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"

	"ledger/internal/core"
	"ledger/internal/ledger"
)

type reportCmd struct {
	app   *App
	raw   bool
	width int
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "print totals, breakdown and transactions as a styled report" }
func (*reportCmd) Usage() string {
	return `ledger report [-raw] [-w <columns>]

  Renders a markdown report of the whole ledger for the terminal.
  Use -raw to print the markdown source instead.
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.raw, "raw", false, "Print markdown without terminal styling.")
	f.IntVar(&c.width, "w", 100, "Wrap width in columns.")
}

func (c *reportCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return c.app.withStore(ctx, func(s *ledger.Store) error {
		md := reportMarkdown(s.Summarize(), s.CategoryBreakdown(), s.All(), c.app.currency())
		if c.raw {
			_, err := fmt.Fprint(c.app.Out, md)
			return err
		}
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(c.width),
		)
		if err != nil {
			return fmt.Errorf("create renderer: %w", err)
		}
		out, err := r.Render(md)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		_, err = fmt.Fprint(c.app.Out, out)
		return err
	})
}

func mdCell(s string) string {
	if s == "" {
		return "-"
	}
	return strings.ReplaceAll(s, "|", `\|`)
}

// reportMarkdown lays out the summary, the expense breakdown and every
// transaction as markdown tables.
func reportMarkdown(sum core.Summary, cats []core.CategoryAmount, txs []core.Transaction, currency string) string {
	var b strings.Builder

	b.WriteString("# Ledger\n\n")
	b.WriteString("| | Amount |\n|---|---:|\n")
	fmt.Fprintf(&b, "| Income | %s |\n", core.FormatAmount(sum.TotalIncome, currency))
	fmt.Fprintf(&b, "| Expenses | %s |\n", core.FormatAmount(sum.TotalExpense, currency))
	fmt.Fprintf(&b, "| **Balance** | **%s** |\n", core.FormatAmount(sum.Net, currency))

	b.WriteString("\n## Expenses by category\n\n")
	if len(cats) == 0 {
		b.WriteString("No expenses.\n")
	} else {
		b.WriteString("| Category | Amount |\n|---|---:|\n")
		for _, c := range cats {
			fmt.Fprintf(&b, "| %s | %s |\n", mdCell(c.Name), core.FormatAmount(c.Amount, currency))
		}
	}

	fmt.Fprintf(&b, "\n## Transactions (%d)\n\n", len(txs))
	if len(txs) == 0 {
		b.WriteString("No transactions.\n")
		return b.String()
	}
	b.WriteString("| Date | Type | Category | Description | Amount |\n|---|---|---|---|---:|\n")
	for _, t := range txs {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			t.Date, t.Type, mdCell(t.Category), mdCell(t.Description), core.FormatSigned(t, currency))
	}
	return b.String()
}
