package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

// adminURL derives the daemon's base URL from the configured listen
// address.
func adminURL(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "http://127.0.0.1" + listen
	}
	return "http://" + listen
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions on the running daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(adminURL(cfg.Listen) + "/api/sessions")
		if err != nil {
			return fmt.Errorf("is the daemon running? %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("daemon returned %d", resp.StatusCode)
		}

		var sessions []struct {
			CallID            string `json:"call_id"`
			UserName          string `json:"user_name"`
			Warnings          int    `json:"warnings"`
			Violations        int    `json:"violations"`
			Terminated        bool   `json:"terminated"`
			TerminationReason string `json:"termination_reason"`
			StartedAt         string `json:"started_at"`
			EventCount        int64  `json:"event_count"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
			return fmt.Errorf("decode sessions: %w", err)
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CALL\tUSER\tVIOLATIONS\tSTATUS\tEVENTS\tSTARTED")
		for _, s := range sessions {
			status := "active"
			if s.Terminated {
				status = "terminated (" + s.TerminationReason + ")"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%s\n",
				s.CallID, s.UserName, s.Violations, status, s.EventCount, s.StartedAt)
		}
		return w.Flush()
	},
}
