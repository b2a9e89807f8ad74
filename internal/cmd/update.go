package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adamancini/launchkit/internal/interactive"
)

type updateOptions struct {
	noSave bool
	delete bool
	yes    bool
	dryRun bool
}

func newUpdateCmd() *cobra.Command {
	opts := &updateOptions{}
	cmd := &cobra.Command{
		Use:   "update [dir...]",
		Short: "Fetch the signed server state of update directories",
		Long: `Request the signed file listing of each configured update directory, verify it
and compare it with the last verified listing cached locally.

The resulting plan lists files to fetch, replace and delete. With --delete,
local files the server no longer has are removed after confirmation.

Examples:
  launchkit update                    # Check every configured directory
  launchkit update client             # Check one directory
  launchkit update --delete --yes     # Remove stale files without prompting
  launchkit update -o json            # Machine-readable plans`,
		ValidArgsFunction: completeDirNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noSave, "no-save", false, "Do not cache the new listing as a snapshot")
	cmd.Flags().BoolVar(&opts.delete, "delete", false, "Remove local files the server no longer has")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Do not prompt before deleting")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Report deletions without removing anything")

	return cmd
}

// updateReports renders several directory reports as one document.
type updateReports []*DirReport

func (r updateReports) String() string {
	parts := make([]string, len(r))
	for i, rep := range r {
		parts[i] = rep.String()
	}
	return strings.Join(parts, "\n\n")
}

func runUpdate(cmd *cobra.Command, args []string, opts *updateOptions) error {
	svc, ctx, err := loadService(cmd)
	if err != nil {
		return err
	}
	w, err := newWriter(cmd)
	if err != nil {
		return err
	}

	dirs, err := svc.SelectDirs(args)
	if err != nil {
		return err
	}

	store, err := svc.OpenStore()
	if err != nil {
		return err
	}
	defer store.Close()

	var (
		reports updateReports
		failed  []error
	)
	for _, dir := range dirs {
		report, err := svc.UpdateDir(ctx, store, dir, !opts.noSave)
		if err != nil {
			return err
		}
		reports = append(reports, report)

		if !opts.delete || len(report.Plan.Deletions()) == 0 {
			continue
		}

		p := report.Plan
		if !opts.yes && !opts.dryRun {
			if !interactive.IsTerminal() {
				return fmt.Errorf("%s: deleting files requires confirmation; rerun with --yes", dir.Name)
			}
			prompter := interactive.NewPrompterWithIO(cmd.InOrStdin(), cmd.ErrOrStderr())
			selected, proceed := prompter.PromptForSelection(p)
			if !proceed {
				continue
			}
			p = selected
		}

		res, err := svc.ApplyDeletions(ctx, dir, p, opts.dryRun)
		if err != nil {
			return err
		}
		report.Deleted = res
		failed = append(failed, res.Errors...)
	}

	if err := w.Write(reports); err != nil {
		return err
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d deletions failed: %w", len(failed), errors.Join(failed...))
	}
	return nil
}

// completeDirNames completes update directory names from the Launchfile.
func completeDirNames(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	svc, err := NewService(configPath, appVersion, nil)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var names []string
	for _, d := range svc.Launchfile().Dirs {
		if strings.HasPrefix(d.Name, toComplete) {
			names = append(names, d.Name)
		}
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}
