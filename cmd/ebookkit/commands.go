package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yuanying/ebookkit/internal/converter"
	"github.com/yuanying/ebookkit/internal/ebook"
	"github.com/yuanying/ebookkit/internal/mcpserver"
	"github.com/yuanying/ebookkit/internal/optimize"
)

func (a *app) readCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <file>",
		Short: "Print the metadata and text of an ebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, h, err := a.conv.Open(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			metaOnly, _ := cmd.Flags().GetBool("metadata")
			showTOC, _ := cmd.Flags().GetBool("toc")
			imageDir, _ := cmd.Flags().GetString("images")

			printMetadata(out, h.Metadata())
			if showTOC {
				fmt.Fprintln(out, "Contents:")
				printTOC(out, h.TOC())
			}
			if imageDir != "" {
				files, err := ebook.ExtractImages(h.Images(), imageDir)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Extracted %d images to %s\n", len(files), imageDir)
			}
			if !metaOnly {
				fmt.Fprintln(out)
				fmt.Fprintln(out, h.Content())
			}
			return nil
		},
	}
	cmd.Flags().Bool("metadata", false, "Print metadata only")
	cmd.Flags().Bool("toc", false, "Print the table of contents")
	cmd.Flags().String("images", "", "Extract embedded images into this directory")
	return cmd
}

func printMetadata(w io.Writer, m ebook.Metadata) {
	fields := []struct{ label, value string }{
		{"Title", m.Title},
		{"Author", m.Author},
		{"Publisher", m.Publisher},
		{"Language", m.Language},
		{"ISBN", m.ISBN},
		{"Published", m.PublicationDate},
		{"Format", m.Format},
	}
	for _, f := range fields {
		if f.value != "" {
			fmt.Fprintf(w, "%s: %s\n", f.label, f.value)
		}
	}
	if len(m.Tags) > 0 {
		fmt.Fprintf(w, "Tags: %s\n", strings.Join(m.Tags, ", "))
	}
}

func printTOC(w io.Writer, toc []ebook.TocEntry) {
	ebook.Walk(toc, func(e ebook.TocEntry, depth int) {
		indent := e.Indent()
		if e.Level == 0 {
			indent = depth
		}
		fmt.Fprintf(w, "%s- %s\n", strings.Repeat("  ", indent), e.Title)
	})
}

func (a *app) writeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <file>",
		Short: "Create an ebook from plain text",
		Long: `Create an ebook from plain text given with --content or read from --input
("-" reads stdin). Chapters are separated by a line containing only ---.
The format comes from --format or the file extension.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := formatFlagOr(cmd, path)
			if err != nil {
				return err
			}
			content, err := readContent(cmd)
			if err != nil {
				return err
			}
			title, _ := cmd.Flags().GetString("title")
			author, _ := cmd.Flags().GetString("author")

			h, err := a.conv.NewHandler(f)
			if err != nil {
				return err
			}
			converter.Populate(h, f, ebook.Metadata{Title: title, Author: author}, content)
			if err := h.WriteFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", path, f.Label())
			return nil
		},
	}
	cmd.Flags().String("title", "", "Book title")
	cmd.Flags().String("author", "", "Book author")
	cmd.Flags().String("content", "", "Book text")
	cmd.Flags().StringP("input", "i", "", `Read the text from this file ("-" for stdin)`)
	cmd.Flags().StringP("format", "f", "", "Output format (default: from the file extension)")
	return cmd
}

// formatFlagOr returns the --format flag or, when unset, the format implied
// by path.
func formatFlagOr(cmd *cobra.Command, path string) (ebook.Format, error) {
	name, _ := cmd.Flags().GetString("format")
	if name == "" {
		return ebook.DetectFormat(path)
	}
	f, err := ebook.ParseFormat(name)
	if err != nil {
		return "", fmt.Errorf("invalid --format %q: %w", name, err)
	}
	return f, nil
}

func readContent(cmd *cobra.Command) (string, error) {
	content, _ := cmd.Flags().GetString("content")
	input, _ := cmd.Flags().GetString("input")
	switch {
	case content != "" && input != "":
		return "", fmt.Errorf("--content and --input are mutually exclusive")
	case content != "":
		return content, nil
	case input == "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", ebook.Wrap(ebook.KindIO, err, "read stdin")
		}
		return string(data), nil
	case input != "":
		data, err := ebook.ReadAll(input)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return "", fmt.Errorf("one of --content or --input is required")
}

func (a *app) convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert <input> [output]",
		Short: "Convert an ebook to another format",
		Long: `Convert an ebook to another format. The target format comes from --format
or the output extension. Without an output path the input path is reused
with the target format's extension.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			output := ""
			if len(args) == 2 {
				output = args[1]
			}
			target, output, err := convertTarget(cmd, input, output)
			if err != nil {
				return err
			}

			if progress, _ := cmd.Flags().GetBool("progress"); progress {
				w := cmd.ErrOrStderr()
				a.conv.Options.Progress = func(p converter.Progress) {
					fmt.Fprintf(w, "[%3.0f%%] %s\n", p.Percentage(), p.Message)
				}
			}
			if err := a.conv.Convert(input, output, target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Converted %s -> %s\n", input, output)
			return nil
		},
	}
	cmd.Flags().StringP("format", "f", "", "Target format (default: from the output extension)")
	cmd.Flags().Bool("progress", false, "Report progress on stderr")
	return cmd
}

// convertTarget resolves the target format and output path.
func convertTarget(cmd *cobra.Command, input, output string) (ebook.Format, string, error) {
	if output == "" {
		name, _ := cmd.Flags().GetString("format")
		if name == "" {
			return "", "", fmt.Errorf("--format is required when no output path is given")
		}
		f, err := ebook.ParseFormat(name)
		if err != nil {
			return "", "", fmt.Errorf("invalid --format %q: %w", name, err)
		}
		return f, defaultOutputPath(input, f.Extension()), nil
	}
	f, err := formatFlagOr(cmd, output)
	return f, output, err
}

func (a *app) infoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <file>",
		Short: "Summarize an ebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, _ := cmd.Flags().GetString("output")
			_, h, err := a.conv.Open(args[0])
			if err != nil {
				return err
			}
			return writeInfo(cmd.OutOrStdout(), ebook.NewInfo(args[0], h), outFormat)
		},
	}
	cmd.Flags().StringP("output", "o", "text", "Output format (text, json, yaml)")
	return cmd
}

func writeInfo(w io.Writer, info ebook.Info, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(info); err != nil {
			return err
		}
		return enc.Close()
	case "text":
		fmt.Fprintf(w, "Path: %s\n", info.Path)
		fmt.Fprintf(w, "Format: %s\n", info.Format)
		if info.Title != "" {
			fmt.Fprintf(w, "Title: %s\n", info.Title)
		}
		if info.Author != "" {
			fmt.Fprintf(w, "Author: %s\n", info.Author)
		}
		fmt.Fprintf(w, "Size: %d bytes\n", info.Size)
		fmt.Fprintf(w, "Content: %d bytes\n", info.ContentLength)
		fmt.Fprintf(w, "TOC entries: %d\n", info.TOCEntries)
		fmt.Fprintf(w, "Images: %d\n", info.Images)
		fmt.Fprintf(w, "Cover: %t\n", info.HasCover)
		return nil
	}
	return fmt.Errorf("invalid --output %q (expected text, json or yaml)", format)
}

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that an ebook can be read and is complete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, problems := a.conv.Validate(args[0])
			out := cmd.OutOrStdout()
			if len(problems) == 0 {
				fmt.Fprintf(out, "%s: valid\n", args[0])
				return nil
			}
			for _, p := range problems {
				fmt.Fprintf(out, "%s: %s\n", args[0], p)
			}
			return ebook.Errorf(ebook.KindValidation, "%s is not valid", args[0])
		},
	}
}

func (a *app) repairCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repair <file>",
		Short: "Fix missing titles and stray whitespace, then rewrite the ebook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				output = args[0]
			}
			_, h, err := a.conv.Open(args[0])
			if err != nil {
				return err
			}
			h.Repair()
			if err := h.WriteFile(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Repaired %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file path (default: overwrite the input)")
	return cmd
}

func (a *app) optimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize <file>",
		Short: "Shrink the images of an EPUB or CBZ file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := a.readOptimizeOptions(cmd)
			if err != nil {
				return err
			}
			output, _ := cmd.Flags().GetString("output")
			if output == "" {
				output = args[0]
			}

			f, h, err := a.conv.Open(args[0])
			if err != nil {
				return err
			}
			target, ok := h.(ebook.ImageOptimizable)
			if !ok {
				return ebook.Errorf(ebook.KindNotSupported, "%s files have no optimizable images", f.Label())
			}
			total := 0
			for _, img := range h.Images() {
				total += len(img.Data)
			}
			saved := target.OptimizeImages(optimize.New(opts))
			if err := h.WriteFile(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d bytes (%.1f%%) in %s\n",
				saved, optimize.Savings(total, total-saved), output)
			return nil
		},
	}
	d := optimize.DefaultOptions()
	cmd.Flags().StringP("output", "o", "", "Output file path (default: overwrite the input)")
	cmd.Flags().Int("max-width", d.MaxWidth, "Maximum image width in pixels")
	cmd.Flags().Int("max-height", d.MaxHeight, "Maximum image height in pixels")
	cmd.Flags().Int("quality", d.Quality, "JPEG quality (1-100)")
	cmd.Flags().Bool("no-resize", false, "Re-encode without resizing")
	return cmd
}

// readOptimizeOptions starts from the configured optimizer settings and
// applies the flags that were set.
func (a *app) readOptimizeOptions(cmd *cobra.Command) (optimize.Options, error) {
	opts := a.cfg.OptimizeOptions()
	flags := cmd.Flags()
	if flags.Changed("max-width") {
		opts.MaxWidth, _ = flags.GetInt("max-width")
	}
	if flags.Changed("max-height") {
		opts.MaxHeight, _ = flags.GetInt("max-height")
	}
	if flags.Changed("quality") {
		opts.Quality, _ = flags.GetInt("quality")
	}
	if noResize, _ := flags.GetBool("no-resize"); noResize {
		opts.MaxWidth, opts.MaxHeight = 0, 0
	}

	if opts.Quality < 1 || opts.Quality > 100 {
		return opts, fmt.Errorf("invalid --quality %d (must be 1-100)", opts.Quality)
	}
	if opts.MaxWidth < 0 {
		return opts, fmt.Errorf("invalid --max-width %d (must not be negative)", opts.MaxWidth)
	}
	if opts.MaxHeight < 0 {
		return opts, fmt.Errorf("invalid --max-height %d (must not be negative)", opts.MaxHeight)
	}
	return opts, nil
}

func (a *app) formatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List the supported formats and conversions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Formats:")
			for _, f := range ebook.Formats() {
				fmt.Fprintf(out, "  %-8s %s\n", f.Label(), f.Extension())
			}
			fmt.Fprintln(out, "Conversions:")
			for _, p := range converter.Pairs() {
				fmt.Fprintf(out, "  %s\n", p)
			}
			return nil
		},
	}
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the ebook tools to an MCP client over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := mcpserver.New(version, a.conv, a.cfg.OptimizeOptions())
			return srv.Run(cmd.Context())
		},
	}
}
