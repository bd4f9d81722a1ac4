package main

import (
	"fmt"

	"hoard-go/internal/hoard"
	"hoard-go/internal/model"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

// file command
var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Catalog and query files",
}

var fileAddCmd = &cobra.Command{
	Use:   "add SRC DEST",
	Short: "Catalog a local file at DEST in a collection",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		collection, _ := cmd.Flags().GetString("collection")
		partition, _ := cmd.Flags().GetString("partition")
		recursive, _ := cmd.Flags().GetBool("recursive")

		a, err := newApp(cmd.Context(), "file add", append([]string{"-c", collection, "-p", partition}, args...))
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		count, err := a.AddFiles(cmd.Context(), collection, partition, args[0], args[1], recursive)
		if count > 0 {
			fmt.Printf("Added %d file(s)\n", count)
		}
		if err != nil {
			return fmt.Errorf("adding files: %w", err)
		}
		return nil
	},
}

var fileAttachCmd = &cobra.Command{
	Use:   "attach DEST",
	Short: "Record another partition holding a cataloged file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		collection, _ := cmd.Flags().GetString("collection")
		partition, _ := cmd.Flags().GetString("partition")

		a, err := newApp(cmd.Context(), "file attach", append([]string{"-c", collection, "-p", partition}, args...))
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.AttachFile(cmd.Context(), collection, partition, args[0]); err != nil {
			return err
		}
		fmt.Printf("Attached %s to partition %s\n", args[0], partition)
		return nil
	},
}

var fileLsCmd = &cobra.Command{
	Use:   "ls [PATH...]",
	Short: "List files directly below a directory",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		collection, _ := cmd.Flags().GetString("collection")
		all, _ := cmd.Flags().GetBool("all")

		a, err := newApp(cmd.Context(), "file ls", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		for _, prefix := range pathsOrRoot(args) {
			files, err := a.ListChildren(cmd.Context(), collection, prefix, all)
			if err != nil {
				return err
			}
			for _, f := range files {
				printFile(f)
			}
		}
		return nil
	},
}

var fileFindCmd = &cobra.Command{
	Use:   "find [PATH...]",
	Short: "Find files below a directory",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		collection, _ := cmd.Flags().GetString("collection")
		minDepth, _ := cmd.Flags().GetInt("min-depth")
		maxDepth, _ := cmd.Flags().GetInt("max-depth")
		name, _ := cmd.Flags().GetString("name")
		path, _ := cmd.Flags().GetString("path")

		a, err := newApp(cmd.Context(), "file find", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		for _, prefix := range pathsOrRoot(args) {
			q := hoard.FindQuery{Prefix: prefix, MinDepth: minDepth, MaxDepth: maxDepth, Name: name, Path: path}
			err := a.FindFiles(cmd.Context(), collection, q, func(f *model.File) error {
				printFile(f)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	},
}

var fileInspectCmd = &cobra.Command{
	Use:   "inspect PATH",
	Short: "Show hashes, archive entries, and placements of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		collection, _ := cmd.Flags().GetString("collection")
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd.Context(), "file inspect", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		detail, err := a.InspectFile(cmd.Context(), collection, args[0])
		if err != nil {
			return err
		}
		return renderDetail(cmd.OutOrStdout(), detail, output)
	},
}

var fileWhichCmd = &cobra.Command{
	Use:   "which",
	Short: "Find files in any collection by digest",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		hash, _ := cmd.Flags().GetString("hash")

		a, err := newApp(cmd.Context(), "file which", args)
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		matches, err := a.FindByDigest(cmd.Context(), hash)
		if err != nil {
			return err
		}
		if len(matches) == 0 {
			fmt.Println("No files found.")
			return nil
		}
		for _, m := range matches {
			fmt.Printf("%-20s  %10s  %s\n", m.Collection.Name, humanize.IBytes(uint64(m.File.Size)), m.File.Path)
		}
		return nil
	},
}

func pathsOrRoot(args []string) []string {
	if len(args) == 0 {
		return []string{"/"}
	}
	return args
}

func printFile(f *model.File) {
	fmt.Printf("%10s  %s  %s\n", humanize.IBytes(uint64(f.Size)), f.CreatedAt.Format("2006-01-02 15:04"), f.Path)
}

func init() {
	fileCmd.AddCommand(fileAddCmd)
	fileCmd.AddCommand(fileAttachCmd)
	fileCmd.AddCommand(fileLsCmd)
	fileCmd.AddCommand(fileFindCmd)
	fileCmd.AddCommand(fileInspectCmd)
	fileCmd.AddCommand(fileWhichCmd)

	for _, c := range []*cobra.Command{fileAddCmd, fileAttachCmd, fileLsCmd, fileFindCmd, fileInspectCmd} {
		c.Flags().StringP("collection", "c", "", "Collection name")
		c.MarkFlagRequired("collection")
	}
	for _, c := range []*cobra.Command{fileAddCmd, fileAttachCmd} {
		c.Flags().StringP("partition", "p", "", "Filesystem UUID of the partition holding the file")
		c.MarkFlagRequired("partition")
	}
	fileAddCmd.Flags().BoolP("recursive", "r", false, "Add every file below a source directory")
	fileLsCmd.Flags().BoolP("all", "a", false, "Include names starting with '.'")
	fileFindCmd.Flags().Int("min-depth", 0, "Minimum depth below PATH")
	fileFindCmd.Flags().Int("max-depth", 0, "Maximum depth below PATH")
	fileFindCmd.Flags().String("name", "", "Regular expression matched against the file name")
	fileFindCmd.Flags().String("path", "", "Regular expression matched against the full path")
	fileInspectCmd.Flags().StringP("output", "o", "text", "Output format: text or yaml")
	fileWhichCmd.Flags().String("hash", "", "Digest as ALGO:HEX")
	fileWhichCmd.MarkFlagRequired("hash")
}
