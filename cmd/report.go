package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"timekeep/internal/clock"
	"timekeep/internal/store"
)

var (
	reportRange string
	reportDate  string
	reportTabs  bool
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	identityStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	hoursStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show accumulated hours per program or domain",
	Long: `Show the daily summary rollups: hours of focus per program
executable, or per browser domain with --tabs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		loc, err := cfg.Location()
		if err != nil {
			return err
		}
		clk := clock.NewSystem(loc)

		st, err := store.Open(cfg.DBPath, cfg.FlushInterval(), slog.Default())
		if err != nil {
			return fmt.Errorf("failed to open store: %w", err)
		}
		defer st.Close()

		entity := st.Programs()
		label := "Program"
		if reportTabs {
			entity = st.Tabs()
			label = "Domain"
		}

		ref := clk.Now()
		if reportDate != "" {
			ref, err = time.ParseInLocation("2006-01-02", reportDate, loc)
			if err != nil {
				return fmt.Errorf("invalid --date (want YYYY-MM-DD): %w", err)
			}
		}

		var rows []store.SummaryRow
		switch reportRange {
		case "day":
			rows, err = entity.ReadDay(ref)
		case "week":
			rows, err = entity.ReadPastWeek(ref)
		case "month":
			rows, err = entity.ReadPastMonth(ref)
		case "all":
			rows, err = entity.ReadAll()
		default:
			return fmt.Errorf("invalid --range %q (want day, week, month, or all)", reportRange)
		}
		if err != nil {
			return fmt.Errorf("failed to read summaries: %w", err)
		}

		if len(rows) == 0 {
			fmt.Println("No activity recorded for that period.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			headerStyle.Render("Date"),
			headerStyle.Render(label),
			headerStyle.Render("Hours"))
		var total float64
		for _, row := range rows {
			total += row.HoursSpent
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				dateStyle.Render(row.GatheringDateLocal),
				identityStyle.Render(row.Identity),
				hoursStyle.Render(fmt.Sprintf("%.2f", row.HoursSpent)))
		}
		w.Flush()
		fmt.Printf("\nTotal: %s hours across %d identities\n",
			hoursStyle.Render(fmt.Sprintf("%.2f", total)), len(rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVarP(&reportRange, "range", "r", "day", "Report range (day, week, month, all)")
	reportCmd.Flags().StringVarP(&reportDate, "date", "d", "", "Reference date (YYYY-MM-DD, default today)")
	reportCmd.Flags().BoolVar(&reportTabs, "tabs", false, "Report browser domains instead of programs")
}
