package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage coaching sessions",
	}
	cmd.AddCommand(newSessionsListCommand(ctx))
	cmd.AddCommand(newSessionsShowCommand(ctx))
	cmd.AddCommand(newSessionsCreateCommand(ctx))
	cmd.AddCommand(newSessionsCommentCommand(ctx))
	return cmd
}

func (c *commandContext) client() (*apiClient, error) {
	addr, err := c.apiAddr()
	if err != nil {
		return nil, err
	}
	return newAPIClient(addr), nil
}

func newSessionsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			sessions, err := client.listSessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(sessions) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}

			rows := make([][]string, 0, len(sessions))
			for _, s := range sessions {
				rows = append(rows, []string{
					s.ID,
					s.GameDate,
					s.HomeTeam + " vs " + s.AwayTeam,
					s.Rink.Name,
					s.Status,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(),
				renderTable([]string{"ID", "Date", "Matchup", "Rink", "Status"}, rows, nil))
			return nil
		},
	}
}

func newSessionsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a session and its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			session, err := client.getSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s vs %s at %s (%s)\n", session.HomeTeam, session.AwayTeam, session.Rink.Name, session.GameDate)
			fmt.Fprintf(out, "status: %s\n", session.Status)
			if len(session.Comments) == 0 {
				fmt.Fprintln(out, "no comments")
				return nil
			}
			rows := make([][]string, 0, len(session.Comments))
			for _, c := range session.Comments {
				rows = append(rows, []string{formatTimestamp(c.TimestampMS), c.Text})
			}
			fmt.Fprintln(out, renderTable([]string{"Time", "Comment"}, rows, []columnAlignment{alignRight, alignLeft}))
			return nil
		},
	}
}

func newSessionsCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		rinkName string
		rinkID   string
		gameDate string
		homeTeam string
		awayTeam string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			session, err := client.createSession(cmd.Context(), map[string]any{
				"rink": map[string]string{
					"name":             rinkName,
					"provider_rink_id": rinkID,
				},
				"game_date": gameDate,
				"home_team": homeTeam,
				"away_team": awayTeam,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created session %s\n", session.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&rinkName, "rink", "", "Rink name")
	cmd.Flags().StringVar(&rinkID, "rink-id", "", "Provider rink/feed identifier")
	cmd.Flags().StringVar(&gameDate, "date", "", "Game date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&homeTeam, "home", "", "Home team name")
	cmd.Flags().StringVar(&awayTeam, "away", "", "Away team name")
	_ = cmd.MarkFlagRequired("rink-id")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("home")
	_ = cmd.MarkFlagRequired("away")
	return cmd
}

func newSessionsCommentCommand(ctx *commandContext) *cobra.Command {
	var (
		timestampMS int64
		author      string
	)
	cmd := &cobra.Command{
		Use:   "comment <session-id> <text>",
		Short: "Add a timestamped comment to a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.addComment(cmd.Context(), args[0], map[string]any{
				"timestamp_ms": timestampMS,
				"text":         args[1],
				"author":       author,
			}); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "comment added")
			return nil
		},
	}
	cmd.Flags().Int64Var(&timestampMS, "at", 0, "Timestamp in milliseconds on the feed timeline")
	cmd.Flags().StringVar(&author, "author", "", "Comment author")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

// formatTimestamp renders milliseconds as m:ss or h:mm:ss.
func formatTimestamp(ms int64) string {
	seconds := ms / 1000
	if seconds < 3600 {
		return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// formatProgress renders a percentage for table output.
func formatProgress(progress int) string {
	return strconv.Itoa(progress) + "%"
}
