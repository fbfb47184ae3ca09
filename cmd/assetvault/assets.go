package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/assetvault/assetvault/pkg/asset"
	"github.com/assetvault/assetvault/pkg/search"
)

// assetRow is the printed form of one asset.
type assetRow struct {
	ID       uuid.UUID  `json:"id"`
	Kind     asset.Kind `json:"kind"`
	Name     string     `json:"name"`
	Creator  string     `json:"creator"`
	Category string     `json:"category,omitempty"`
	Tags     []string   `json:"tags"`
}

func rowOf(a asset.Asset) assetRow {
	d := a.Desc()
	row := assetRow{ID: a.GetID(), Kind: a.Kind(), Name: d.Name, Creator: d.Creator, Tags: d.Tags}
	if c, ok := a.(asset.Categorized); ok {
		row.Category = c.GetCategory()
	}
	return row
}

func printAssets(w io.Writer, assets []asset.Asset, asJSON bool) error {
	rows := make([]assetRow, 0, len(assets))
	for _, a := range assets {
		rows = append(rows, rowOf(a))
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tNAME\tCREATOR\tCATEGORY\tTAGS")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Kind, r.Name, r.Creator, r.Category, strings.Join(r.Tags, ","))
	}
	return tw.Flush()
}

// parseKindFlag accepts a kind name or "all" (empty result).
func parseKindFlag(s string) (asset.Kind, error) {
	if s == "" || strings.EqualFold(s, "all") {
		return "", nil
	}
	return asset.ParseKind(s)
}

func newListCmd(opts *globalOptions) *cobra.Command {
	var (
		kind   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKindFlag(kind)
			if err != nil {
				return err
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			assets := a.store.Snapshot().All()
			if k != "" {
				filtered := assets[:0]
				for _, x := range assets {
					if x.Kind() == k {
						filtered = append(filtered, x)
					}
				}
				assets = filtered
			}
			return printAssets(a.stdout, assets, asJSON)
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "all", "Asset kind (avatar, avatarWearable, worldObject, otherAsset, all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		kind       string
		categories []string
		tags       []string
		tagMode    string
		avatars    []string
		avatarMode string
		asJSON     bool
		onlyIDs    bool
	)

	cmd := &cobra.Command{
		Use:   "search [text...]",
		Short: "Filter assets by text, category, tags or supported avatars",
		Long: `Every word of the text must occur, ignoring case, in the name, the creator
or a tag of an asset. --tag and --avatar match all given values by default;
use --tag-mode or / --avatar-mode or to match any of them. Filtering on a
concept a kind does not have (a category on avatars) excludes that kind.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKindFlag(kind)
			if err != nil {
				return err
			}
			tm, err := search.ParseMatchMode(tagMode)
			if err != nil {
				return err
			}
			am, err := search.ParseMatchMode(avatarMode)
			if err != nil {
				return err
			}

			req := search.Request{
				Kind:             k,
				Text:             strings.Join(args, " "),
				Categories:       categories,
				Tags:             search.ValueFilter{Values: tags, Mode: tm},
				SupportedAvatars: search.ValueFilter{Values: avatars, Mode: am},
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			ids, err := search.Run(a.store, req)
			if err != nil {
				return err
			}

			if onlyIDs {
				for _, id := range ids {
					fmt.Fprintln(a.stdout, id)
				}
				return nil
			}

			matches := make([]asset.Asset, 0, len(ids))
			for _, id := range ids {
				if x, ok := a.store.GetAsset(id); ok {
					matches = append(matches, x)
				}
			}
			return printAssets(a.stdout, matches, asJSON)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&kind, "kind", "k", "all", "Asset kind (avatar, avatarWearable, worldObject, otherAsset, all)")
	f.StringSliceVar(&categories, "category", nil, "Category (repeatable; any matches)")
	f.StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	f.StringVar(&tagMode, "tag-mode", "and", "Tag match mode (and, or)")
	f.StringSliceVar(&avatars, "avatar", nil, "Supported avatar (repeatable)")
	f.StringVar(&avatarMode, "avatar-mode", "and", "Supported avatar match mode (and, or)")
	f.BoolVar(&asJSON, "json", false, "Print JSON")
	f.BoolVar(&onlyIDs, "ids", false, "Print identifiers only")
	return cmd
}

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete assets, their data folders and images",
		Long: `Deletes each asset from whichever kind holds it, removes its data folder and
image, and drops it from the dependency lists of every other asset.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uuid.UUID, 0, len(args))
			for _, arg := range args {
				id, err := uuid.Parse(arg)
				if err != nil {
					return fmt.Errorf("invalid asset id %q: %w", arg, err)
				}
				ids = append(ids, id)
			}

			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			for _, id := range ids {
				if err := a.store.DeleteAsset(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(a.stdout, "Deleted %s\n", id)
			}
			return nil
		},
	}
}

func newSweepCmd(opts *globalOptions) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove images no asset references",
		Long: `Removes images that no asset description names, and uncommitted temp_
uploads older than --grace.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.store.SweepImages(cmd.Context(), grace)
			for _, name := range removed {
				fmt.Fprintf(a.stdout, "Removed %s\n", name)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%d images removed\n", len(removed))
			return nil
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", 24*time.Hour, "Keep temp uploads younger than this")
	return cmd
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show asset counts per kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.store.Stats()
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Data directory:\t%s\n", st.Root)
			for _, k := range asset.Kinds {
				fmt.Fprintf(tw, "%s:\t%d\n", k, st.Counts[k])
			}
			fmt.Fprintf(tw, "Identifiers in use:\t%d\n", st.UsedIDs)
			return tw.Flush()
		},
	}
}
