package cmd

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/adamancini/launchkit/internal/output"
	"github.com/adamancini/launchkit/internal/update"
)

// versionInfo is the build information printed by the version command.
type versionInfo struct {
	Version  string `json:"version" yaml:"version"`
	Commit   string `json:"commit" yaml:"commit"`
	Date     string `json:"date" yaml:"date"`
	Go       string `json:"go" yaml:"go"`
	Platform string `json:"platform" yaml:"platform"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long: `Display the launchkit version and build information.

The launcher binary itself is updated with 'launchkit self-update'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd)
		},
	}
}

func runVersion(cmd *cobra.Command) error {
	w, err := newWriter(cmd)
	if err != nil {
		return err
	}

	p := update.Detect()
	info := versionInfo{
		Version:  appVersion,
		Commit:   appCommit,
		Date:     appDate,
		Go:       runtime.Version(),
		Platform: p.OS + "/" + p.Arch,
	}
	if w.Format() != output.FormatText {
		return w.Write(info)
	}
	w.Printf("launchkit version %s (commit %s, built %s)\n", info.Version, info.Commit, info.Date)
	w.Printf("%s %s\n", info.Go, info.Platform)
	return nil
}
