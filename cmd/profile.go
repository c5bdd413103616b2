// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"ipfixgen/ipfix"
	"ipfixgen/ipfix/domain"
)

func init() {
	RootCmd.AddCommand(profileCmd)
}

var profileCmd = &cobra.Command{
	Use:   "profile FILE",
	Short: "Check a profile",
	Long: `Check a JSON profile and display the clients and generators it
defines. No packet is sent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return checkProfile(args[0], cmd.OutOrStdout())
	},
}

// checkProfile validates the clients of a profile. When out is not
// nil, a summary is written to it.
func checkProfile(path string, out io.Writer) error {
	profile, err := ipfix.ReadProfileFile(path)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, client := range profile.Clients {
		if seen[client.Name] {
			return fmt.Errorf("duplicate client %q: %w", client.Name, ipfix.ErrValidation)
		}
		seen[client.Name] = true
		if client.Name == "" || client.Name == ipfix.PushClient {
			return fmt.Errorf("invalid client name %q: %w", client.Name, ipfix.ErrValidation)
		}
		infos, err := domain.Check(client.Name, client.Domain)
		if err != nil {
			return err
		}
		if out == nil {
			continue
		}
		fmt.Fprintf(out, "%s: %s to %s\n", client.Name, client.Domain.NetflowVersion, client.Domain.Dst)
		for i, info := range infos {
			kind := "template"
			if info.OptionsTemplate {
				kind = "options template"
			}
			fmt.Fprintf(out, "  - %s: %s %d, %d fields, %d records per packet\n",
				client.Domain.Generators[i].Name, kind, info.TemplateID,
				info.FieldsNum, info.DataRecordsNumSend)
		}
	}
	return nil
}
