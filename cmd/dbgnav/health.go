package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	dbghttp "github.com/fyrsmithlabs/dbgnav/internal/http"
	"github.com/spf13/cobra"
)

func newHealthCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check a dbgnav snapshot server",
		Long: `Check the status of a server started with dbgnav serve.

Examples:
  dbgnav health
  dbgnav health --server http://localhost:9400`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base := strings.TrimRight(c.cfg.Client.BaseURL, "/")
			status, err := fetchStatus(cmd, base+"/api/v1/status")
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Server Status: %s\n", status.Status)
			fmt.Fprintf(w, "Server URL: %s\n", base)
			if status.Version != "" {
				fmt.Fprintf(w, "Version: %s\n", status.Version)
			}
			if status.PointerSize > 0 {
				fmt.Fprintf(w, "Pointer Size: %d\n", status.PointerSize)
			}
			fmt.Fprintf(w, "Uptime: %s\n", status.Uptime)
			if status.Status != "ok" {
				return fmt.Errorf("server is %s", status.Status)
			}
			return nil
		},
	}
}

func fetchStatus(cmd *cobra.Command, url string) (*dbghttp.StatusResponse, error) {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr != nil {
			return nil, fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var status dbghttp.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &status, nil
}
