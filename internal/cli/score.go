package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/emiliopalmerini/studi/internal/domain"
	"github.com/emiliopalmerini/studi/internal/flowscore"
	"github.com/emiliopalmerini/studi/internal/normalize"
	"github.com/emiliopalmerini/studi/internal/pkg/theme"
	"github.com/emiliopalmerini/studi/internal/util"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score a session described in a YAML file",
	Long: `Score a session described in a YAML file without storing it.

Example file:
  start: 2024-01-15T09:00:00Z
  end: 2024-01-15T10:30:00Z
  timezone: Europe/Rome
  focus_rating: 4
  blocks:
    - category: Math
      start: 2024-01-15T09:00:00Z
      end: 2024-01-15T09:50:00Z
    - break: true
      start: 2024-01-15T09:50:00Z
      end: 2024-01-15T10:00:00Z`,
	Args: cobra.NoArgs,
	RunE: runScore,
}

var scoreFile string

func init() {
	rootCmd.AddCommand(scoreCmd)
	scoreCmd.Flags().StringVarP(&scoreFile, "file", "f", "", "YAML session file (- for stdin)")
	_ = scoreCmd.MarkFlagRequired("file")
}

// SessionFile is the YAML shape accepted by the score command.
type SessionFile struct {
	Start       time.Time   `yaml:"start"`
	End         time.Time   `yaml:"end"`
	Timezone    string      `yaml:"timezone"`
	FocusRating *int        `yaml:"focus_rating"`
	Blocks      []BlockFile `yaml:"blocks"`
}

type BlockFile struct {
	Category string     `yaml:"category"`
	Break    bool       `yaml:"break"`
	Start    time.Time  `yaml:"start"`
	End      *time.Time `yaml:"end"`
}

// parseSessionFile decodes and validates a session file into a record and its location.
func parseSessionFile(r io.Reader) (domain.SessionRecord, *time.Location, error) {
	var f SessionFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return domain.SessionRecord{}, nil, fmt.Errorf("failed to parse session file: %w", err)
	}
	if f.Start.IsZero() || !f.End.After(f.Start) {
		return domain.SessionRecord{}, nil, fmt.Errorf("%w: session needs a start before its end", domain.ErrInvalidInput)
	}
	if f.FocusRating != nil && (*f.FocusRating < 1 || *f.FocusRating > 5) {
		return domain.SessionRecord{}, nil, fmt.Errorf("%w: focus_rating must be between 1 and 5", domain.ErrInvalidInput)
	}
	loc := time.UTC
	if f.Timezone != "" {
		l, err := time.LoadLocation(f.Timezone)
		if err != nil {
			return domain.SessionRecord{}, nil, fmt.Errorf("%w: unknown timezone %q", domain.ErrInvalidInput, f.Timezone)
		}
		loc = l
	}

	end := f.End.UTC()
	session := &domain.StudySession{
		ID:          "file",
		StartedAt:   f.Start.UTC(),
		EndedAt:     &end,
		Status:      domain.SessionCompleted,
		FocusRating: f.FocusRating,
	}
	session.DeriveDuration()

	rec := domain.SessionRecord{Session: session}
	for _, b := range f.Blocks {
		block := domain.CategoryBlock{
			CategoryName: b.Category,
			StartedAt:    b.Start.UTC(),
			EndedAt:      b.End,
			IsBreak:      b.Break,
		}
		block.DeriveDuration()
		rec.Intervals = append(rec.Intervals, block.Interval())
	}
	return rec, loc, nil
}

func runScore(cmd *cobra.Command, args []string) error {
	var r io.Reader = cmd.InOrStdin()
	if scoreFile != "-" {
		f, err := os.Open(scoreFile)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	rec, loc, err := parseSessionFile(r)
	if err != nil {
		return err
	}
	printScore(cmd.OutOrStdout(), rec.Session.Duration(), normalize.ScoreSession(rec, loc))
	return nil
}

// printScore renders a flow score card, or a note when the session was too short.
func printScore(w io.Writer, durationSeconds int64, res *flowscore.Result) {
	s := theme.Default()
	if res == nil {
		fmt.Fprintf(w, "%s\n%s\n",
			s.Row("Duration", util.FormatDuration(durationSeconds)),
			s.Muted.Render(fmt.Sprintf("Sessions under %d minutes are not scored.", normalize.MinScoredSeconds/60)))
		return
	}

	c := res.Components
	lines := []string{
		s.Title.Render("Flow score ") + s.Score(res.Score).Render(fmt.Sprintf("%d", res.Score)),
		"",
		s.Row("Duration", util.FormatDuration(durationSeconds)),
		s.Row("Focus", s.ProgressBar(c.Focus, 1, 20)),
		s.Row("Duration fit", s.ProgressBar(c.Duration, 1, 20)),
		s.Row("Breaks", s.ProgressBar(c.Breaks, 1, 20)),
		s.Row("Deep work", s.ProgressBar(c.DeepWork, 1, 20)),
		s.Row("Time of day", fmt.Sprintf("x%.2f", c.TimeMultiplier)),
		"",
		s.Muted.Render(res.CoachingMessage),
	}
	fmt.Fprintln(w, s.Card.Render(strings.Join(lines, "\n")))
}
