package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/adamancini/launchkit/internal/interactive"
	"github.com/adamancini/launchkit/internal/output"
	"github.com/adamancini/launchkit/internal/profile"
)

type selfUpdateOptions struct {
	check bool
	yes   bool
}

// selfUpdateStatus is the structured result of self-update.
type selfUpdateStatus struct {
	Path            string                   `json:"path" yaml:"path"`
	UpdateAvailable bool                     `json:"update_available" yaml:"update_available"`
	Size            int                      `json:"size,omitempty" yaml:"size,omitempty"`
	Installed       bool                     `json:"installed" yaml:"installed"`
	Profiles        []*profile.ClientProfile `json:"profiles,omitempty" yaml:"profiles,omitempty"`
}

func newSelfUpdateCmd() *cobra.Command {
	opts := &selfUpdateOptions{}
	cmd := &cobra.Command{
		Use:   "self-update",
		Short: "Check and install launcher updates",
		Long: `Ask the server whether the launcher binary is current. The local binary is
checked against the server's signature; a binary that does not match, or is
missing, is replaced by the verified binary the server sends.

Examples:
  launchkit self-update --check    # Only report whether an update exists
  launchkit self-update --yes      # Install without prompting`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfUpdate(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.check, "check", false, "Check for an update without installing")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Install without prompting")

	return cmd
}

func runSelfUpdate(cmd *cobra.Command, opts *selfUpdateOptions) error {
	svc, ctx, err := loadService(cmd)
	if err != nil {
		return err
	}
	w, err := newWriter(cmd)
	if err != nil {
		return err
	}

	res, path, err := svc.CheckLauncher(ctx)
	if err != nil {
		return err
	}

	status := &selfUpdateStatus{Path: path, UpdateAvailable: res.UpdateAvailable()}
	if !status.UpdateAvailable {
		status.Profiles = res.ClientProfiles()
		profile.SortProfiles(status.Profiles)
		if w.Format() != output.FormatText {
			return w.Write(status)
		}
		w.Printf("Launcher %s is up to date\n", path)
		return w.Write(profileTable(status.Profiles))
	}

	data, _ := res.Binary()
	status.Size = len(data)
	w.Printf("Launcher update available for %s (%s)\n", path, humanize.IBytes(uint64(len(data))))

	if opts.check {
		if w.Format() != output.FormatText {
			return w.Write(status)
		}
		w.Printf("Run 'launchkit self-update' to install\n")
		return nil
	}

	if !opts.yes {
		if !interactive.IsTerminal() {
			return fmt.Errorf("installing the launcher requires confirmation; rerun with --yes")
		}
		prompter := interactive.NewPrompterWithIO(cmd.InOrStdin(), cmd.ErrOrStderr())
		if !prompter.Confirm("Install launcher update?") {
			w.Printf("Aborted.\n")
			return nil
		}
	}

	if err := svc.InstallLauncher(path, res); err != nil {
		return err
	}
	status.Installed = true

	if w.Format() != output.FormatText {
		return w.Write(status)
	}
	w.Printf("Installed launcher at %s\n", path)
	return nil
}
