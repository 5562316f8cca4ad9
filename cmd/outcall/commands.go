package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"outbound-caller/internal/actions"
	"outbound-caller/internal/app"
	"outbound-caller/internal/auth"
	"outbound-caller/internal/calls"
	"outbound-caller/internal/config"
	"outbound-caller/internal/outbound"
	"outbound-caller/pkg/logger"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "outcall",
		Short: "Outbound caller operator tool",
		Long: `Outbound caller operator tool

Place calls, mint API tokens and inspect the agent command table.
Configuration is read from the environment (or CONFIG_FILE) like the API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newDialCmd(), newTokenCmd(), newActionsCmd(), newCallbacksCmd())
	return root
}

func newDialCmd() *cobra.Command {
	var (
		phone    string
		trunk    string
		room     string
		metadata string
		timeout  time.Duration
		poll     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "dial",
		Short: "Place one call and wait for its outcome",
		Long: `Place one call and wait for its outcome.

--metadata accepts the agent job metadata form: JSON {"phone_number","trunk_id"}
or a bare phone number. It overrides --phone and, when it names one, --trunk.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if metadata != "" {
				m, err := outbound.ParseJobMetadata(metadata)
				if err != nil {
					return err
				}
				phone = m.PhoneNumber
				if m.TrunkID != "" {
					trunk = m.TrunkID
				}
			}
			if strings.TrimSpace(phone) == "" {
				return errors.New("--phone or --metadata is required")
			}

			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			st, err := rt.Manager.Start(cmd.Context(), outbound.StartRequest{
				PhoneNumber: phone,
				TrunkID:     trunk,
				RoomID:      room,
				Timeout:     timeout,
				ActorUserID: "cli",
				ActorRole:   "admin",
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Dialing %s in room %s (session %s)\n", st.Identity, st.RoomID, st.SessionID)

			out, err := waitOutcome(cmd.Context(), rt.Manager, st.SessionID, poll, cmd.OutOrStdout())
			if err != nil {
				// interrupted: cancel the call and report what it became
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = rt.Manager.Shutdown(shutdownCtx)
				if v, gerr := rt.Manager.Get(st.SessionID); gerr == nil && v.Outcome != nil {
					out = *v.Outcome
				} else {
					return err
				}
			}
			renderOutcome(cmd.OutOrStdout(), out)
			if out.Result != outbound.ResultEnded {
				return fmt.Errorf("call did not complete: %s", out.Result)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&phone, "phone", "p", "", "Phone number to call")
	cmd.Flags().StringVarP(&trunk, "trunk", "t", "", "Outbound SIP trunk id (default OUTBOUND_TRUNK_ID)")
	cmd.Flags().StringVarP(&room, "room", "r", "", "Room name (default: fresh call-xxxxxxxx)")
	cmd.Flags().StringVarP(&metadata, "metadata", "m", "", "Agent job metadata")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "How long to wait for the callee to answer (default JOIN_TIMEOUT)")
	cmd.Flags().DurationVar(&poll, "poll", time.Second, "Status refresh interval")
	return cmd
}

// waitOutcome prints status changes until the session finishes.
func waitOutcome(ctx context.Context, m *outbound.Manager, id string, poll time.Duration, w io.Writer) (outbound.Outcome, error) {
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	var last calls.Status
	for {
		v, err := m.Get(id)
		if err != nil {
			return outbound.Outcome{}, err
		}
		if v.Status != last {
			fmt.Fprintf(w, "  %s %s\n", time.Now().Format(time.TimeOnly), statusColor(v.Status))
			last = v.Status
		}
		if v.Outcome != nil {
			return *v.Outcome, nil
		}
		select {
		case <-ctx.Done():
			return outbound.Outcome{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func statusColor(s calls.Status) string {
	switch s {
	case calls.StatusActive, calls.StatusAutomating:
		return color.GreenString(string(s))
	case calls.StatusError, calls.StatusTimeout:
		return color.RedString(string(s))
	case calls.StatusVoicemail:
		return color.YellowString(string(s))
	}
	return string(s)
}

func renderOutcome(w io.Writer, out outbound.Outcome) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Field", "Value"})
	table.SetBorder(true)
	table.SetRowLine(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)

	result := color.GreenString(string(out.Result))
	if out.Result != outbound.ResultEnded {
		result = color.RedString(string(out.Result))
	}
	rows := [][]string{
		{"Result", result},
		{"Status", string(out.Status)},
		{"Reason", string(out.Reason)},
		{"Session", out.SessionID},
		{"Room", out.RoomID},
		{"Identity", out.Identity},
		{"Joined", formatTime(out.JoinedAt)},
		{"Ended", formatTime(out.EndedAt)},
	}
	if out.Error != "" {
		rows = append(rows, []string{"Error", out.Error})
	}
	table.AppendBulk(rows)
	table.Render()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func newTokenCmd() *cobra.Command {
	var user, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API access token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			m, err := auth.NewManager(cfg.Auth)
			if err != nil {
				return err
			}
			tok, err := m.IssueAccess(time.Now(), user, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVarP(&user, "user", "u", "", "User id (required)")
	cmd.Flags().StringVarP(&role, "role", "r", "dispatcher", "Role: admin, dispatcher, viewer, agent")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions",
		Short: "List the commands the voice agent can invoke",
		Run: func(cmd *cobra.Command, _ []string) {
			renderActions(cmd.OutOrStdout(), actions.New(actions.Deps{}).Commands())
		},
	}
}

func renderActions(w io.Writer, specs []actions.Spec) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Description", "Params"})
	table.SetBorder(true)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, s := range specs {
		params := make([]string, 0, len(s.Params))
		for _, p := range s.Params {
			params = append(params, p.Name)
		}
		table.Append([]string{s.Name, s.Description, strings.Join(params, ", ")})
	}
	table.Render()
}

func newCallbacksCmd() *cobra.Command {
	var phone string
	cmd := &cobra.Command{
		Use:   "callbacks",
		Short: "List callback requests for a phone number",
		RunE: func(cmd *cobra.Command, _ []string) error {
			normalized, err := calls.Normalize(phone)
			if err != nil {
				return err
			}
			rt, err := loadRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.DB == nil {
				color.Yellow("No database configured; only callbacks from this process are visible.")
			}

			items, err := rt.Callbacks.ForPhone(cmd.Context(), normalized)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No callbacks for %s\n", normalized)
				return nil
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Requested", "Date", "Time", "Room", "Session"})
			table.SetBorder(true)
			for _, in := range items {
				table.Append([]string{in.RequestedAt.Format(time.RFC3339), in.Date, in.Time, in.RoomID, in.SessionID})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVarP(&phone, "phone", "p", "", "Phone number (required)")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func loadRuntime(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(logger.Options{Env: cfg.App.Env, SentryDSN: cfg.SentryDSN})
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return app.New(ctx, cfg, log)
}
