package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/assetvault/assetvault/pkg/fsguard"
	"github.com/assetvault/assetvault/pkg/preferences"
	"github.com/assetvault/assetvault/pkg/storage"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <new-data-dir>",
		Short: "Copy the data directory to a new location and switch to it",
		Long: `Copies metadata, data folders and images to the new directory, which must be
absent or empty, then reloads from it and records it in the preferences
document. The old directory is left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			old := a.store.Root()
			err = a.runTask(cmd.Context(), "migrate", func(ctx context.Context, progress fsguard.ProgressFunc) error {
				return a.store.MigrateDataDir(ctx, dst, progress)
			})
			if err != nil {
				return err
			}

			a.prefs.DataDirPath = a.store.Root()
			if err := preferences.Save(a.cfg.Storage.PreferencesPath, a.prefs); err != nil {
				return fmt.Errorf("migrated to %s but failed to save preferences: %w", a.store.Root(), err)
			}

			fmt.Fprintf(a.stdout, "Migrated %s -> %s\n", old, a.store.Root())
			return nil
		},
	}
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <archive.zip>",
		Short: "Merge an exported archive into the data directory",
		Long: `Extracts the archive into a scratch folder and merges its assets. Assets whose
identifier is already in use get a new identifier, and dependency lists are
rewritten to match. Images whose name is already taken are copied in under
a new name.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			var res storage.MergeResult
			err = a.runTask(cmd.Context(), "import", func(ctx context.Context, progress fsguard.ProgressFunc) error {
				var err error
				res, err = a.store.ImportArchive(ctx, args[0], progress)
				return err
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "Imported %d assets\n", res.Merged)
			pairs := make([]string, 0, len(res.Reassigned))
			for src, dst := range res.Reassigned {
				pairs = append(pairs, fmt.Sprintf("%s -> %s", src, dst))
			}
			sort.Strings(pairs)
			for _, p := range pairs {
				fmt.Fprintf(a.stdout, "  reassigned %s\n", p)
			}
			renames := make([]string, 0, len(res.RenamedImages))
			for src, dst := range res.RenamedImages {
				renames = append(renames, fmt.Sprintf("%s -> %s", src, dst))
			}
			sort.Strings(renames)
			for _, r := range renames {
				fmt.Fprintf(a.stdout, "  renamed image %s\n", r)
			}
			return nil
		},
	}
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	var asDir bool

	cmd := &cobra.Command{
		Use:   "export <destination>",
		Short: "Export the data directory to a zip archive or folder",
		Long: `Writes metadata documents, data folders and images. A zip destination must not
exist; with --dir the destination folder must be absent or empty.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.runTask(cmd.Context(), "export", func(ctx context.Context, progress fsguard.ProgressFunc) error {
				if asDir {
					return a.store.ExportDir(ctx, dst, progress)
				}
				return a.store.ExportArchive(ctx, dst, progress)
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(a.stdout, "Exported to %s\n", dst)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asDir, "dir", false, "Export to a folder instead of a zip archive")
	return cmd
}
