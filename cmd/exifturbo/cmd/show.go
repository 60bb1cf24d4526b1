package cmd

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/exif-turbo/exifturbo/internal/errors"
	"github.com/exif-turbo/exifturbo/internal/output"
	"github.com/exif-turbo/exifturbo/internal/store"
)

func newShowCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <path|id>",
		Short: "Print every stored tag of one file",
		Long: `Print the indexed record of one file, looked up by path or by the
numeric id shown in JSON search results.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := a.openReadOnly(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ref := args[0]
			var rec *store.FileRecord
			err = st.View(ctx, func(v *store.View) error {
				var err error
				if id, perr := strconv.ParseInt(ref, 10, 64); perr == nil && !fileExists(ref) {
					rec, err = v.Get(ctx, id)
					return err
				}
				path, err := filepath.Abs(ref)
				if err != nil {
					return err
				}
				rec, err = v.GetByPath(ctx, path)
				return err
			})
			if err != nil {
				return err
			}
			if rec == nil {
				return errors.New(errors.ErrCodeFileNotFound, fmt.Sprintf("%s is not in the index", ref), nil).
					WithSuggestion("Run 'exifturbo index' on its folder first")
			}

			out := output.New(cmd.OutOrStdout())
			if jsonOutput {
				return out.JSON(rec)
			}
			return out.Record(rec)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the record as JSON")

	return cmd
}
