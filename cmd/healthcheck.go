// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"ipfixgen/common/httpserver"
)

type healthcheckOptions struct {
	HTTP string
	Unix string
}

// HealthcheckOptions stores the command-line option values for the healthcheck
// command.
var HealthcheckOptions healthcheckOptions

func init() {
	RootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().StringVar(&HealthcheckOptions.HTTP, "http", "",
		"HTTP host:port for health check")
	healthcheckCmd.Flags().StringVar(&HealthcheckOptions.Unix, "unix", httpserver.HealthcheckSocket,
		"Unix socket for health check (used when --http is not provided)")
}

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check healthness",
	Long:  `Check if ipfixgen is alive using the builtin HTTP endpoint.`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		client := &http.Client{Timeout: 5 * time.Second}
		host := HealthcheckOptions.HTTP
		if host == "" {
			host = "unix"
			socket := HealthcheckOptions.Unix
			client.Transport = &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socket)
				},
			}
		}
		resp, err := client.Get(fmt.Sprintf("http://%s/api/v0/healthcheck", host))
		if err != nil {
			return fmt.Errorf("unable to connect to service: %w", err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("service is unhealthy (%d): %s", resp.StatusCode, body)
		}
		cmd.Printf("%s\n", body)
		return nil
	},
}
