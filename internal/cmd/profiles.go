package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/launchkit/internal/profile"
)

// profileTable lists client profiles in text output.
type profileTable []*profile.ClientProfile

func (t profileTable) Header() []string {
	return []string{"Title", "Version", "Dir", "Server", "Command"}
}

func (t profileTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, p := range t {
		rows = append(rows, []string{
			p.Title,
			p.Version,
			p.Dir,
			p.Address(),
			p.Command,
		})
	}
	return rows
}

func newProfilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the signed client profiles published by the server",
		Long: `List the client profiles the server publishes.

Profiles are only sent to an up-to-date launcher, so this fails when a
launcher update is pending.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfiles(cmd)
		},
	}
}

func runProfiles(cmd *cobra.Command) error {
	svc, ctx, err := loadService(cmd)
	if err != nil {
		return err
	}
	w, err := newWriter(cmd)
	if err != nil {
		return err
	}

	res, _, err := svc.CheckLauncher(ctx)
	if err != nil {
		return err
	}
	if res.UpdateAvailable() {
		return fmt.Errorf("launcher update pending; run 'launchkit self-update' first")
	}

	profiles := res.ClientProfiles()
	profile.SortProfiles(profiles)
	return w.Write(profileTable(profiles))
}
