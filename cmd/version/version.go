// Package versioncmder prints the build identity of the binary.
package versioncmder

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ephemera/pkg/utils"
)

func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version, commit, and build time of this CLI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b := utils.Build()
			w := cmd.OutOrStdout()
			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return json.NewEncoder(w).Encode(b)
			}
			_, err := fmt.Fprintf(w, "Version: %s\nSha: %s\nBuilt at: %s\n", b.Version, b.Sha, b.Buildtime)
			return err
		},
	}
}
