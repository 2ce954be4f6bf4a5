package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/trailchat/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/trailchat/backend/internal/service/chat"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)
)

const timeLayout = "2006-01-02 15:04:05"

func newSessionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List active sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *chatservice.Service) error {
				sessions, err := svc.ListSessions(ctx)
				if err != nil {
					return fmt.Errorf("failed to list sessions: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Sessions (%d)", len(sessions))))
				if len(sessions) == 0 {
					fmt.Fprintln(out, dateStyle.Render("no sessions"))
					return nil
				}

				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, s := range sessions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
						idStyle.Render(s.ID),
						titleStyle.Render(s.Title),
						countStyle.Render(strconv.FormatInt(s.MessageCount, 10)+" msgs"),
						dateStyle.Render(s.CreatedAt.Local().Format(timeLayout)),
					)
				}
				return w.Flush()
			})
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <session-id>",
		Short: "Print the live messages of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *chatservice.Service) error {
				messages, err := svc.ListHistory(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to read history: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s: %d messages", args[0], len(messages))))
				for _, m := range messages {
					fmt.Fprintf(out, "%s %s %s\n",
						dateStyle.Render(formatMillis(m.TS)),
						senderStyle.Render(m.Sender+":"),
						m.Content,
					)
				}
				return nil
			})
		},
	}
}

func newDeletedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deleted <session-id>",
		Short: "Print restorable deleted messages",
		Long:  "Print the deleted messages still inside the retention window. Expired records are purged as a side effect.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withService(cmd, func(ctx context.Context, svc *chatservice.Service) error {
				records, err := svc.ListDeleted(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to read deleted history: %w", err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%s: %d deleted", args[0], len(records))))
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				for _, r := range records {
					fmt.Fprintf(w, "ts=%d\tdeleted_at=%d\t%s\t%s\n",
						r.TS,
						r.DeletedAt,
						senderStyle.Render(r.Sender),
						truncate(r.Content, 60),
					)
				}
				return w.Flush()
			})
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <session-id> <ts> <deleted-at>",
		Short: "Move a deleted message back into the live log",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ts, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid ts %q: %w", args[1], err)
			}
			deletedAt, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid deleted-at %q: %w", args[2], err)
			}

			return a.withService(cmd, func(ctx context.Context, svc *chatservice.Service) error {
				msg, err := svc.RestoreMessage(ctx, args[0], ts, deletedAt)
				if err != nil {
					return fmt.Errorf("failed to restore: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n",
					countStyle.Render("restored"),
					describe(msg),
				)
				return nil
			})
		},
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format(timeLayout)
}

func describe(m chat.Message) string {
	return fmt.Sprintf("ts=%d sender=%s %q", m.TS, m.Sender, truncate(m.Content, 60))
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
