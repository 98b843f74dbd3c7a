package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cjeanneret/SurveyCam/internal/gallery"
	"github.com/cjeanneret/SurveyCam/internal/storage"
)

// withGallery loads the config and opens the store without a camera.
func withGallery(opts *rootOptions, cmd *cobra.Command, fn func(a *app) error) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid photo id %q", s)
	}
	return id, nil
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored photos, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGallery(opts, cmd, func(a *app) error {
				photos := a.gallery.Photos()
				out := cmd.OutOrStdout()
				if asJSON {
					if photos == nil {
						photos = []storage.Photo{}
					}
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(photos)
				}
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTIME\tFILTER\tSIZE\tPROJECT\tCOMMENT")
				for _, p := range photos {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
						p.ID, p.Timestamp.Local().Format(time.DateTime), p.Filter, p.Size, p.ProjectName, p.Comment)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print photo records as JSON")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format string
		output string
		ids    []int64
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export photo metadata as CSV or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != gallery.FormatCSV && format != gallery.FormatJSON {
				return fmt.Errorf("format must be csv or json, got %q", format)
			}
			return withGallery(opts, cmd, func(a *app) error {
				photos := a.gallery.Photos()
				if len(ids) > 0 {
					photos = a.gallery.Select(ids)
				}
				if output == "-" {
					return gallery.Export(cmd.OutOrStdout(), format, photos)
				}
				if output == "" {
					output = gallery.ExportFilename(format, time.Now())
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				if err := gallery.Export(f, format, photos); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "exported %d photos to %s\n", len(photos), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", gallery.FormatCSV, "csv or json")
	cmd.Flags().StringVarP(&output, "output", "o", "", `output file ("-" for stdout, default photos_metadata_<time>.<ext>)`)
	cmd.Flags().Int64SliceVar(&ids, "ids", nil, "export only these photo ids")
	return cmd
}

func newImageCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "image <id>",
		Short: "Write a stored photo to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withGallery(opts, cmd, func(a *app) error {
				p, ok := a.gallery.Get(id)
				if !ok {
					return fmt.Errorf("photo %d: %w", id, storage.ErrNotFound)
				}
				data, err := a.gallery.Image(id)
				if err != nil {
					return err
				}
				if output == "" {
					output = gallery.Filename(p)
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), output)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: survey file name)")
	return cmd
}

func newCommentCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "comment <id> <text>",
		Short: `Set a photo's comment ("" clears it)`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withGallery(opts, cmd, func(a *app) error {
				p, err := a.gallery.SetComment(id, args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\n", p.ID, p.Comment)
				return nil
			})
		},
	}
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "delete [id...]",
		Short: "Delete photos by id, or every photo with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return errors.New("give photo ids or --all, not both")
			}
			ids := make([]int64, 0, len(args))
			for _, s := range args {
				id, err := parseID(s)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return withGallery(opts, cmd, func(a *app) error {
				n := a.gallery.Len()
				if all {
					if err := a.gallery.Clear(); err != nil {
						return err
					}
				} else {
					var err error
					if n, err = a.gallery.Remove(ids...); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d photos\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "delete every photo")
	return cmd
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import a legacy JSON photo export (images as data URLs)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return withGallery(opts, cmd, func(a *app) error {
				res, err := a.gallery.Import(cmd.Context(), f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d photos, skipped %d\n", res.Imported, res.Skipped)
				return nil
			})
		},
	}
}

func newUsageCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show storage usage against the quota",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGallery(opts, cmd, func(a *app) error {
				u, err := a.gallery.Usage()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "photos: %d\nbytes:  %d\n", u.Photos, u.Bytes)
				if u.Quota > 0 {
					fmt.Fprintf(out, "quota:  %d (%.1f%%)\n", u.Quota, u.Percent())
				}
				if level := gallery.Level(u); level != "" {
					fmt.Fprintf(out, "level:  %s\n", level)
				}
				return nil
			})
		},
	}
}
