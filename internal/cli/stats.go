package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/period"
	"github.com/emiliopalmerini/studi/internal/pkg/theme"
	"github.com/emiliopalmerini/studi/internal/util"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show study statistics",
	Long: `Show the stored aggregate of a day, week or month.

Examples:
  studi stats --user ada                          # Today
  studi stats --user ada --period week            # This week
  studi stats --user ada --period month --date 2024-02-10
  studi stats --user ada --period week --refresh  # Recompute before showing`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

var (
	statsUser    string
	statsPeriod  string
	statsDate    string
	statsRefresh bool
)

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringVarP(&statsUser, "user", "u", "", "User ID or username")
	statsCmd.Flags().StringVarP(&statsPeriod, "period", "p", "day", "Time period: day, week, month")
	statsCmd.Flags().StringVarP(&statsDate, "date", "d", "", "Date in the period, YYYY-MM-DD (default today)")
	statsCmd.Flags().BoolVar(&statsRefresh, "refresh", false, "Recompute the aggregate before showing it")
}

// summary is the part shared by all aggregate granularities.
type summary struct {
	Label         string
	TotalDuration int64
	BreakDuration int64
	Categories    map[string]int64
	SessionCount  int64
	BreakCount    int64
	FlowScore     *float64
	IsFinal       bool
}

func runStats(cmd *cobra.Command, args []string) error {
	g, err := period.ParseGranularity(statsPeriod)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	return withApp(ctx, func(app *AppContext) error {
		user, err := resolveUser(ctx, app, statsUser)
		if err != nil {
			return err
		}
		date, err := dateOrToday(statsDate, app.Timezone.Location(user.Timezone))
		if err != nil {
			return err
		}
		start, end, err := app.Calendar.Bounds(date, g)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		store := app.Repos.Aggregates

		switch g {
		case period.Daily:
			if statsRefresh {
				if _, err := app.Engine.RecomputeDaily(ctx, user.ID, date); err != nil {
					return err
				}
			}
			a, err := store.GetDaily(ctx, user.ID, date)
			if err != nil {
				return err
			}
			if a == nil {
				return noData(out, date.String())
			}
			printSummary(out, summary{
				Label: a.Date.String(), TotalDuration: a.TotalDuration, BreakDuration: a.BreakDuration,
				Categories: a.CategoryDurations, SessionCount: a.SessionCount, BreakCount: a.BreakCount,
				FlowScore: a.FlowScore, IsFinal: a.IsFinal,
			})
			printTimeline(out, a.Timeline)
		case period.Weekly:
			if statsRefresh {
				if _, err := app.Engine.RecomputeWeekly(ctx, user.ID, start, end); err != nil {
					return err
				}
			}
			a, err := store.GetWeekly(ctx, user.ID, start)
			if err != nil {
				return err
			}
			if a == nil {
				return noData(out, fmt.Sprintf("week of %s", start))
			}
			printSummary(out, summary{
				Label: fmt.Sprintf("%s .. %s", a.WeekStart, a.WeekEnd), TotalDuration: a.TotalDuration,
				BreakDuration: a.BreakDuration, Categories: a.CategoryDurations, SessionCount: a.SessionCount,
				BreakCount: a.BreakCount, FlowScore: a.FlowScore, IsFinal: a.IsFinal,
			})
			printWeekDays(out, a, period.Days(a.WeekStart, a.WeekEnd))
		case period.Monthly:
			if statsRefresh {
				if _, err := app.Engine.RecomputeMonthly(ctx, user.ID, start, end); err != nil {
					return err
				}
			}
			a, err := store.GetMonthly(ctx, user.ID, start)
			if err != nil {
				return err
			}
			if a == nil {
				return noData(out, fmt.Sprintf("month of %s", start))
			}
			printSummary(out, summary{
				Label: fmt.Sprintf("%s .. %s", a.MonthStart, a.MonthEnd), TotalDuration: a.TotalDuration,
				BreakDuration: a.BreakDuration, Categories: a.CategoryDurations, SessionCount: a.SessionCount,
				BreakCount: a.BreakCount, FlowScore: a.FlowScore, IsFinal: a.IsFinal,
			})
			printHeatmap(out, a, app.Calendar.WeekStart)
		}
		return nil
	})
}

func noData(w io.Writer, what string) error {
	fmt.Fprintf(w, "No aggregate stored for %s. Run with --refresh or use `studi recompute`.\n", what)
	return nil
}

func printSummary(w io.Writer, s summary) {
	st := theme.Default()

	status := st.Warning.Render("open")
	if s.IsFinal {
		status = st.Success.Render("final")
	}
	score := st.Muted.Render("-")
	if s.FlowScore != nil {
		score = st.Score(int(*s.FlowScore)).Render(fmt.Sprintf("%.2f", *s.FlowScore))
	}

	fmt.Fprintln(w, st.Title.Render(s.Label)+"  "+status)
	fmt.Fprintln(w, st.Row("Sessions", fmt.Sprintf("%d", s.SessionCount)))
	fmt.Fprintln(w, st.Row("Total", util.FormatDuration(s.TotalDuration)))
	fmt.Fprintln(w, st.Row("Breaks", fmt.Sprintf("%s (%d)", util.FormatDuration(s.BreakDuration), s.BreakCount)))
	fmt.Fprintln(w, st.Row("Flow score", score))

	if len(s.Categories) == 0 {
		return
	}
	fmt.Fprintln(w)
	names := make([]string, 0, len(s.Categories))
	var top int64
	for name, secs := range s.Categories {
		names = append(names, name)
		if secs > top {
			top = secs
		}
	}
	sort.Slice(names, func(i, j int) bool {
		if s.Categories[names[i]] != s.Categories[names[j]] {
			return s.Categories[names[i]] > s.Categories[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		secs := s.Categories[name]
		fmt.Fprintf(w, "%s %s %s\n", st.Label.Render(name), st.ProgressBar(float64(secs), float64(top), 24), util.FormatDuration(secs))
	}
}

func printTimeline(w io.Writer, timeline []domain.TimelineEntry) {
	if len(timeline) == 0 {
		return
	}
	st := theme.Default()
	fmt.Fprintln(w)
	for _, e := range timeline {
		end := "open"
		if e.EndedAt != nil {
			end = e.EndedAt.Format("15:04")
		}
		score := ""
		if e.FlowScore != nil {
			score = fmt.Sprintf("  flow %d", *e.FlowScore)
		}
		subjects := make([]string, 0, len(e.Blocks))
		for _, b := range e.Blocks {
			subjects = append(subjects, b.Category)
		}
		fmt.Fprintf(w, "%s-%s  %s  %s%s\n",
			e.StartedAt.Format("15:04"), end, util.FormatDuration(e.DurationSeconds),
			st.Muted.Render(strings.Join(subjects, ", ")), score)
	}
}

func printWeekDays(w io.Writer, a *domain.WeeklyAggregate, days []civil.Date) {
	st := theme.Default()
	var top int64
	for _, d := range a.DailyBreakdown {
		if d.Total > top {
			top = d.Total
		}
	}
	fmt.Fprintln(w)
	for _, day := range days {
		code := period.DayCode(day)
		total := a.DailyBreakdown[code].Total
		fmt.Fprintf(w, "%s %s %s %s\n", code, day.String(), st.ProgressBar(float64(total), float64(top), 24), util.FormatDuration(total))
	}
}

// printHeatmap renders the month as calendar rows, one cell per day.
func printHeatmap(w io.Writer, a *domain.MonthlyAggregate, weekStart time.Weekday) {
	st := theme.Default()
	var top float64
	for _, h := range a.Heatmap {
		if h > top {
			top = h
		}
	}
	fmt.Fprintln(w)
	var row []string
	for _, day := range period.Days(a.MonthStart, a.MonthEnd) {
		h := a.Heatmap[day.String()]
		row = append(row, heatCell(st, h, top))
		if period.Weekday(day.AddDays(1)) == weekStart {
			fmt.Fprintln(w, strings.Join(row, " "))
			row = row[:0]
		}
	}
	if len(row) > 0 {
		fmt.Fprintln(w, strings.Join(row, " "))
	}
	fmt.Fprintln(w)
	for _, d := range a.DailyBreakdown {
		fmt.Fprintf(w, "%s %s\n", d.Date.String(), util.FormatHours(d.Hours))
	}
}

func heatCell(st *theme.Styles, hours, top float64) string {
	switch {
	case hours <= 0 || top <= 0:
		return st.Muted.Render("·")
	case hours >= top*0.66:
		return st.Success.Render("█")
	case hours >= top*0.33:
		return st.Warning.Render("▓")
	default:
		return st.Bar.Render("░")
	}
}
