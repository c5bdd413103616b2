// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"ipfixgen/common/daemon"
	"ipfixgen/common/helpers"
	"ipfixgen/common/reporter"
	"ipfixgen/ipfix"
	"ipfixgen/ipfix/session"
	"ipfixgen/ipfix/transport"
)

type pushOptions struct {
	DstURL               string
	Dir                  string
	DirScansNum          int
	FilesWaitTime        time.Duration
	FilesWaitTimeSpeedup float64
	HTTPRepeatsNum       int
	HTTPRepeatsWaitTime  time.Duration
	HTTPSitesPerTenant   int
	HTTPDevicesPerSite   int
	UDPPacketsWaitTime   time.Duration
	Headers              map[string]string
}

// PushOptions stores the command-line option values for the push
// command.
var PushOptions pushOptions

func defaultPushOptions() pushOptions {
	defaults := ipfix.DefaultPushConfiguration()
	return pushOptions{
		DirScansNum:          defaults.DirScansNum,
		FilesWaitTime:        time.Duration(defaults.FilesWaitTime),
		FilesWaitTimeSpeedup: defaults.FilesWaitTimeSpeedup,
		HTTPRepeatsNum:       defaults.HTTPRepeatsNum,
		HTTPRepeatsWaitTime:  time.Duration(defaults.HTTPRepeatsWaitTime),
		HTTPSitesPerTenant:   defaults.HTTPSitesPerTenant,
		HTTPDevicesPerSite:   defaults.HTTPDevicesPerSite,
		UDPPacketsWaitTime:   time.Duration(defaults.UDPPacketsWaitTime),
	}
}

func (o pushOptions) configuration() ipfix.PushConfiguration {
	return ipfix.PushConfiguration{
		DstURL:               o.DstURL,
		Dir:                  o.Dir,
		DirScansNum:          o.DirScansNum,
		FilesWaitTime:        transport.Duration(o.FilesWaitTime),
		FilesWaitTimeSpeedup: o.FilesWaitTimeSpeedup,
		HTTPRepeatsNum:       o.HTTPRepeatsNum,
		HTTPRepeatsWaitTime:  transport.Duration(o.HTTPRepeatsWaitTime),
		HTTPSitesPerTenant:   o.HTTPSitesPerTenant,
		HTTPDevicesPerSite:   o.HTTPDevicesPerSite,
		UDPPacketsWaitTime:   transport.Duration(o.UDPPacketsWaitTime),
		Headers:              o.Headers,
	}
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push files to a collector",
	Long: `Push the IPFIX or NetFlow v9 files of a directory to a collector,
either as UDP datagrams or as HTTP uploads. The directory is scanned
again for new files until the requested number of scans is reached.`,
	Args: cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		config := PushOptions.configuration()
		if err := helpers.Validate.Struct(config); err != nil {
			return fmt.Errorf("invalid push configuration:\n%w", err)
		}
		r, err := reporter.New(reporter.DefaultConfiguration())
		if err != nil {
			return fmt.Errorf("unable to initialize reporter: %w", err)
		}
		records, err := pushStart(r, config)
		for _, record := range records {
			cmd.Printf("%s: %s, %d bytes, %d templates, %d records\n",
				record.Name, record.Status, record.BytesUploaded,
				record.TempRecordsUploaded, record.DataRecordsUploaded)
		}
		if err != nil {
			return err
		}
		failed := 0
		for _, record := range records {
			if record.Status != session.StatusSuccess {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d files could not be pushed", failed)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(pushCmd)
	defaults := defaultPushOptions()
	pushCmd.Flags().StringVar(&PushOptions.DstURL, "dst", "",
		"Collector (host:port or udp:// for UDP, http:// or https:// for HTTP)")
	pushCmd.Flags().StringVar(&PushOptions.Dir, "dir", "",
		"Directory to push")
	pushCmd.Flags().IntVar(&PushOptions.DirScansNum, "scans", defaults.DirScansNum,
		"Number of scans of the directory (0 for no limit)")
	pushCmd.Flags().DurationVar(&PushOptions.FilesWaitTime, "wait", defaults.FilesWaitTime,
		"Wait between two scans")
	pushCmd.Flags().Float64Var(&PushOptions.FilesWaitTimeSpeedup, "wait-speedup", defaults.FilesWaitTimeSpeedup,
		"Divide the wait by this factor after each empty scan")
	pushCmd.Flags().IntVar(&PushOptions.HTTPRepeatsNum, "http-repeats", defaults.HTTPRepeatsNum,
		"Number of retries for an HTTP upload")
	pushCmd.Flags().DurationVar(&PushOptions.HTTPRepeatsWaitTime, "http-repeats-wait", defaults.HTTPRepeatsWaitTime,
		"Wait between two HTTP attempts")
	pushCmd.Flags().IntVar(&PushOptions.HTTPSitesPerTenant, "http-sites", defaults.HTTPSitesPerTenant,
		"Number of simulated sites, each pushing the whole directory")
	pushCmd.Flags().IntVar(&PushOptions.HTTPDevicesPerSite, "http-devices", defaults.HTTPDevicesPerSite,
		"Number of simulated devices per site")
	pushCmd.Flags().DurationVar(&PushOptions.UDPPacketsWaitTime, "udp-wait", defaults.UDPPacketsWaitTime,
		"Wait between two UDP datagrams")
	pushCmd.Flags().StringToStringVar(&PushOptions.Headers, "header", nil,
		"Header to add to HTTP uploads (KEY=VALUE)")
}

// pushStart pushes the directory until all scans are done or until
// the daemon is asked to stop. It returns the session records.
func pushStart(r *reporter.Reporter, config ipfix.PushConfiguration) ([]session.Record, error) {
	daemonComponent, err := daemon.New(r)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize daemon component: %w", err)
	}
	job, err := ipfix.NewPushJob(r, config, clock.New())
	if err != nil {
		return nil, fmt.Errorf("unable to initialize push job: %w", err)
	}
	if err := daemonComponent.Start(); err != nil {
		job.Close()
		return nil, fmt.Errorf("unable to start daemon component: %w", err)
	}
	defer daemonComponent.Stop()
	if err := job.Start(); err != nil {
		return nil, fmt.Errorf("unable to start push job: %w", err)
	}
	select {
	case <-job.Done():
	case <-daemonComponent.Terminated():
		r.Info().Msg("push interrupted")
	}
	err = job.Stop()
	return job.Tracker().Records(), err
}
