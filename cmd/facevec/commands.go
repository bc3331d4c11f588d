package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/liliang-cn/facevec"
	"github.com/liliang-cn/facevec/internal/encoding"
	"github.com/liliang-cn/facevec/pkg/core"
)

func (a *app) addCmd() *cobra.Command {
	var (
		face       facevec.Face
		vectorStr  string
		vectorFile string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a face",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			embedding, err := a.readVector(vectorStr, vectorFile)
			if err != nil {
				return err
			}
			face.Name = args[0]
			face.Embedding = embedding

			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			id, err := db.Add(cmd.Context(), &face)
			if err != nil {
				return fmt.Errorf("failed to add face: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Face '%s' added with ID %d\n", face.Name, id)
			return nil
		},
	}

	cmd.Flags().Int32Var(&face.Age, "age", 0, "Age")
	cmd.Flags().StringVar(&face.Gender, "gender", "", "Gender")
	cmd.Flags().StringVar(&face.Hairstyle, "hairstyle", "", "Hairstyle")
	cmd.Flags().Int32Var(&face.FeatureVersion, "feature-version", 1, "Version of the model that produced the embedding")
	cmd.Flags().StringVar(&vectorStr, "vector", "", "Embedding values (comma-separated)")
	cmd.Flags().StringVar(&vectorFile, "vector-file", "", "File holding the embedding as raw float32 values")

	return cmd
}

func (a *app) getCmd() *cobra.Command {
	var all, outputJSON bool

	cmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Get a face by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			var records []*facevec.Record
			if all {
				records, err = db.List(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to list faces: %w", err)
				}
			} else {
				rec, found, err := db.Get(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("failed to get face: %w", err)
				}
				if found {
					records = append(records, rec)
				}
			}
			if len(records) == 0 {
				return fmt.Errorf("face '%s' not found", args[0])
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				if all {
					return writeJSON(out, records)
				}
				return writeJSON(out, records[0])
			}

			for _, rec := range records {
				fmt.Fprintf(out, "ID: %d\n", rec.ID)
				fmt.Fprintf(out, "  Name: %s\n", rec.Name)
				fmt.Fprintf(out, "  Age: %d\n", rec.Age)
				fmt.Fprintf(out, "  Gender: %s\n", rec.Gender)
				fmt.Fprintf(out, "  Hairstyle: %s\n", rec.Hairstyle)
				fmt.Fprintf(out, "  Feature Version: %d\n", rec.FeatureVersion)
				fmt.Fprintf(out, "  Embedding: %d values\n", len(rec.Embedding))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Show every face with the name")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	return cmd
}

func (a *app) queryCmd() *cobra.Command {
	var (
		k          int
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "query <name>",
		Short: "Find the faces nearest to a stored face",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			matches, found, err := db.QueryByName(cmd.Context(), args[0], k)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			if !found {
				return fmt.Errorf("face '%s' not found", args[0])
			}

			return printMatches(cmd, matches, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 2, "Number of results")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	return cmd
}

func (a *app) searchCmd() *cobra.Command {
	var (
		k          int
		radius     float32
		vectorStr  string
		vectorFile string
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find the faces nearest to an embedding",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := a.readVector(vectorStr, vectorFile)
			if err != nil {
				return err
			}

			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			var matches []facevec.Match
			if cmd.Flags().Changed("radius") {
				matches, err = db.SearchRadius(cmd.Context(), query, radius)
			} else {
				matches, err = db.Search(cmd.Context(), query, k)
			}
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			return printMatches(cmd, matches, outputJSON)
		},
	}

	cmd.Flags().IntVarP(&k, "k", "k", 2, "Number of results")
	cmd.Flags().Float32Var(&radius, "radius", 0, "Return every face within this squared distance instead of the k nearest")
	cmd.Flags().StringVar(&vectorStr, "vector", "", "Query embedding (comma-separated)")
	cmd.Flags().StringVar(&vectorFile, "vector-file", "", "File holding the query embedding as raw float32 values")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	return cmd
}

type matchOutput struct {
	facevec.Match
	L2 float32 `json:"l2"`
}

func printMatches(cmd *cobra.Command, matches []facevec.Match, outputJSON bool) error {
	out := cmd.OutOrStdout()
	if outputJSON {
		results := make([]matchOutput, len(matches))
		for i, m := range matches {
			results[i] = matchOutput{Match: m, L2: m.L2()}
		}
		return writeJSON(out, results)
	}

	fmt.Fprintf(out, "Found %d results:\n", len(matches))
	for i, m := range matches {
		fmt.Fprintf(out, "%d. %s (id: %d, distance: %.6f, l2: %.6f)\n", i+1, m.Name, m.ID, m.Distance, m.L2())
	}
	return nil
}

func (a *app) deleteCmd() *cobra.Command {
	var (
		id   uint64
		name string
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete faces by ID or name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			var deleted int64
			if cmd.Flags().Changed("id") {
				deleted, err = db.DeleteByID(cmd.Context(), id)
			} else {
				deleted, err = db.DeleteByName(cmd.Context(), name)
			}
			if err != nil {
				return fmt.Errorf("failed to delete: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d face(s)\n", deleted)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&id, "id", 0, "Face ID")
	cmd.Flags().StringVar(&name, "name", "", "Delete every face with this name")
	cmd.MarkFlagsMutuallyExclusive("id", "name")
	cmd.MarkFlagsOneRequired("id", "name")

	return cmd
}

func (a *app) countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Count stored faces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			count, err := db.Count(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to count faces: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), count)
			return nil
		},
	}
}

func (a *app) statsCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := db.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				return writeJSON(out, stats)
			}

			fmt.Fprintf(out, "Database: %s\n", a.cfg.DB.Path)
			fmt.Fprintf(out, "  Faces: %s\n", humanize.Comma(int64(stats.Count)))
			fmt.Fprintf(out, "  Distinct Names: %s\n", humanize.Comma(int64(stats.DistinctNames)))
			fmt.Fprintf(out, "  Embedding Dimensions: %d\n", stats.Dimensions)
			fmt.Fprintf(out, "  Database Size: %s\n", humanize.IBytes(uint64(stats.Size)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output as JSON")

	return cmd
}

func (a *app) rebuildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Build the similarity index and report on it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			start := time.Now()
			idx, err := db.Rebuild(cmd.Context())
			if err != nil {
				return fmt.Errorf("rebuild failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Index %s built\n", idx.Generation())
			fmt.Fprintf(out, "  Slots: %s\n", humanize.Comma(int64(idx.Len())))
			fmt.Fprintf(out, "  Memory: %s\n", humanize.IBytes(uint64(idx.Len()*encoding.BlobSize(idx.Dimension()))))
			fmt.Fprintf(out, "  Took: %s\n", time.Since(start).Round(time.Microsecond))
			return nil
		},
	}
}

func (a *app) exportCmd() *cobra.Command {
	var output, format string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every face as JSON or JSON Lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dumpFormat, err := core.ParseDumpFormat(format)
			if err != nil {
				return err
			}

			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			var stats *core.DumpStats
			export := func(w io.Writer) (err error) {
				stats, err = db.Export(cmd.Context(), w, dumpFormat)
				return err
			}

			if output == "" {
				err = export(cmd.OutOrStdout())
			} else {
				err = writeFile(output, export)
			}
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if output != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s faces to %s\n", humanize.Comma(int64(stats.Records)), output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().StringVar(&format, "format", "jsonl", "Export format (json, jsonl)")

	return cmd
}

func (a *app) importCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import faces from an export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dumpFormat, err := core.ParseDumpFormat(format)
			if err != nil {
				return err
			}

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open import file: %w", err)
			}
			defer file.Close()

			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := db.Import(cmd.Context(), file, dumpFormat)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s faces (%d failed)\n", humanize.Comma(int64(stats.Imported)), stats.Failed)
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "jsonl", "Import format (json, jsonl)")

	return cmd
}

func (a *app) backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup <path>",
		Short: "Write a consistent copy of the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Backup(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Database backed up to %s\n", args[0])
			return nil
		},
	}
}

// writeFile creates path and hands fn a buffered writer over it.
// Errors from flushing and closing the file are reported like write errors.
func writeFile(path string, fn func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("failed to close output file: %w", closeErr)
		}
	}()

	w := bufio.NewWriter(file)
	if err := fn(w); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}
