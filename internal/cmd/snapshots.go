package cmd

import (
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/adamancini/launchkit/internal/output"
	"github.com/adamancini/launchkit/internal/snapshot"
)

// snapshotTable lists cached snapshots in text output.
type snapshotTable []snapshot.Info

func (t snapshotTable) Header() []string {
	return []string{"Dir", "ID", "Created", "Size"}
}

func (t snapshotTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, info := range t {
		rows = append(rows, []string{
			info.Dir,
			info.ID,
			info.CreatedAt.Local().Format(time.DateTime),
			humanize.IBytes(uint64(info.Size)),
		})
	}
	return rows
}

func newSnapshotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage cached server listings",
		Long: `Each successful update caches the verified server listing of a directory.
The newest snapshot is the baseline the next update compares against.`,
	}

	cmd.AddCommand(newSnapshotsListCmd())
	cmd.AddCommand(newSnapshotsDeleteCmd())
	cmd.AddCommand(newSnapshotsPruneCmd())

	return cmd
}

func newSnapshotsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "list [dir]",
		Short:             "List cached snapshots, newest first",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: completeDirNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return withStore(cmd, func(svc *Service, w *output.Writer, store *snapshot.Store) error {
				infos, err := store.List(dir)
				if err != nil {
					return err
				}
				return w.Write(snapshotTable(infos))
			})
		},
	}
}

func newSnapshotsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <dir> <id>",
		Short: "Delete one cached snapshot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(svc *Service, w *output.Writer, store *snapshot.Store) error {
				if err := store.Delete(args[0], args[1]); err != nil {
					return err
				}
				w.Printf("Deleted snapshot %s\n", args[1])
				return nil
			})
		},
	}
}

func newSnapshotsPruneCmd() *cobra.Command {
	var (
		keep int
		dir  string
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old snapshots",
		Long: `Delete old snapshots, keeping the newest per directory. Without --keep the
Launchfile's snapshots.keep setting applies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(svc *Service, w *output.Writer, store *snapshot.Store) error {
				if !cmd.Flags().Changed("keep") {
					keep = svc.Launchfile().KeepCount(snapshot.DefaultKeepCount)
				}
				result, err := store.Prune(dir, keep)
				if err != nil {
					return err
				}
				if w.Format() != output.FormatText {
					return w.Write(result)
				}
				w.Printf("Pruned %d snapshots, kept %d\n", len(result.Deleted), result.Kept)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", snapshot.DefaultKeepCount, "Snapshots to keep per directory")
	cmd.Flags().StringVar(&dir, "dir", "", "Only prune this directory")

	return cmd
}

// withStore opens the snapshot cache named by the Launchfile for fn.
func withStore(cmd *cobra.Command, fn func(svc *Service, w *output.Writer, store *snapshot.Store) error) error {
	svc, _, err := loadService(cmd)
	if err != nil {
		return err
	}
	w, err := newWriter(cmd)
	if err != nil {
		return err
	}
	store, err := svc.OpenStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(svc, w, store)
}
