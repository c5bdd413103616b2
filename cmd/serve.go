// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ipfixgen/common/daemon"
	"ipfixgen/common/httpserver"
	"ipfixgen/common/reporter"
	"ipfixgen/ipfix"
)

// ServeConfiguration represents the configuration file for the serve command.
type ServeConfiguration struct {
	Reporting reporter.Configuration
	HTTP      httpserver.Configuration
	IPFIX     ipfix.Configuration
}

// Reset sets the default configuration for the serve command.
func (c *ServeConfiguration) Reset() {
	*c = ServeConfiguration{
		HTTP:      httpserver.DefaultConfiguration(),
		Reporting: reporter.DefaultConfiguration(),
		IPFIX:     ipfix.DefaultConfiguration(),
	}
}

type serveOptions struct {
	ConfigRelatedOptions
	CheckMode bool
	Profile   string
}

// ServeOptions stores the command-line option values for the serve
// command.
var ServeOptions serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve [CONFIG]",
	Short: "Start simulating exporters",
	Long: `Simulate IPFIX and NetFlow v9 exporters. Each client of the profile
exports synthetic records to its collector. Clients are controlled
through the HTTP API.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := ServeConfiguration{}
		config.Reset()
		if len(args) > 0 {
			ServeOptions.Path = args[0]
		}
		if ServeOptions.Profile != "" {
			ServeOptions.BeforeDump = func() {
				config.IPFIX.ProfileFile = ServeOptions.Profile
			}
		}
		if err := ServeOptions.Parse(cmd.OutOrStdout(), "serve", &config); err != nil {
			return err
		}

		r, err := reporter.New(config.Reporting)
		if err != nil {
			return fmt.Errorf("unable to initialize reporter: %w", err)
		}
		return serveStart(r, config, ServeOptions.CheckMode)
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVarP(&ServeOptions.ConfigRelatedOptions.Dump, "dump", "D", false,
		"Dump configuration before starting")
	serveCmd.Flags().BoolVarP(&ServeOptions.CheckMode, "check", "C", false,
		"Check configuration, but does not start")
	serveCmd.Flags().StringVarP(&ServeOptions.Profile, "profile", "p", "",
		"Profile to load on start")
}

func serveStart(r *reporter.Reporter, config ServeConfiguration, checkOnly bool) error {
	daemonComponent, err := daemon.New(r)
	if err != nil {
		return fmt.Errorf("unable to initialize daemon component: %w", err)
	}
	httpComponent, err := httpserver.New(r, config.HTTP, httpserver.Dependencies{
		Daemon: daemonComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize HTTP component: %w", err)
	}
	ipfixComponent, err := ipfix.New(r, config.IPFIX, ipfix.Dependencies{
		HTTP: httpComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize IPFIX component: %w", err)
	}

	// Expose some informations and metrics
	addCommonHTTPHandlers(r, "ipfix", httpComponent)
	versionMetrics(r)

	// If we only asked for a check, stop here.
	if checkOnly {
		if config.IPFIX.ProfileFile != "" {
			if err := checkProfile(config.IPFIX.ProfileFile, nil); err != nil {
				return err
			}
		}
		return nil
	}

	// Start all the components.
	components := []any{
		httpComponent,
		ipfixComponent,
	}
	return StartStopComponents(r, daemonComponent, components)
}
