package admin

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"librarysystem/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewActivityCommand creates the activity command
func NewActivityCommand(opts *Options) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent library activity from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := opts.OpenJournal()
			if err != nil {
				return err
			}
			defer j.Close()

			activities, err := j.Recent(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to read activity: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				for _, activity := range activities {
					if err := enc.Encode(activity); err != nil {
						return err
					}
				}
				return nil
			}

			if len(activities) == 0 {
				fmt.Fprintln(out, "No activity recorded")
				return nil
			}
			for _, activity := range activities {
				fmt.Fprintln(out, formatActivity(activity))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show, 0 for all")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print one JSON object per line")

	return cmd
}

// formatActivity renders one entry as a single line
func formatActivity(a models.Activity) string {
	var line strings.Builder
	line.WriteString(fmt.Sprintf("%s  %-15s", a.OccurredAt.UTC().Format("2006-01-02 15:04:05"), a.Kind))
	for _, ref := range []struct{ name, id string }{
		{"book", a.BookID},
		{"user", a.UserID},
		{"borrowing", a.BorrowingID},
	} {
		if ref.id != "" {
			line.WriteString(fmt.Sprintf("  %s=%s", ref.name, ref.id))
		}
	}
	if len(a.Details) > 0 {
		details, err := json.MarshalToString(a.Details)
		if err == nil {
			line.WriteString("  " + details)
		}
	}
	return line.String()
}
