package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newTriggerCmd() *cobra.Command {
	var date, addr, token string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Ask a running server to sweep one local date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := json.Marshal(map[string]string{"date": date})
			if err != nil {
				return err
			}

			url := strings.TrimRight(addr, "/") + "/api/v1/admin/sweeps"
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}

			client := &http.Client{Timeout: timeout}
			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("sweep request failed: %w", err)
			}
			defer resp.Body.Close()

			out, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("sweep failed: %s: %s", resp.Status, strings.TrimSpace(string(out)))
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "local date to sweep, YYYY-MM-DD")
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&token, "token", os.Getenv("COMPLIANCE_ADMIN_TOKEN"), "admin bearer token")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}
