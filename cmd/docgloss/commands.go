package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/dgallion1/docgloss/internal/app"
	"github.com/dgallion1/docgloss/internal/auth"
	"github.com/dgallion1/docgloss/internal/config"
	"github.com/dgallion1/docgloss/internal/document"
	"github.com/dgallion1/docgloss/internal/loader"
	"github.com/dgallion1/docgloss/internal/overlay"
)

const (
	outputFlagName     = "output"
	renderFlagName     = "render"
	selectionFlagName  = "selection"
	occurrenceFlagName = "occurrence"
	verboseFlagName    = "verbose"
	jsonFlagName       = "json"
	watchFlagName      = "watch"
	prettyFlagName     = "pretty"

	watchDebounce = 300 * time.Millisecond
)

// cli carries state shared by every subcommand.
type cli struct {
	verbose bool
	render  bool
	pretty  bool
	stdout  io.Writer
	stderr  io.Writer

	// build is swapped in tests.
	build func(ctx context.Context, cfg config.Config, log *slog.Logger) (*app.App, error)
}

func newRootCommand() *cobra.Command {
	c := &cli{stdout: os.Stdout, stderr: os.Stderr, build: app.Build}
	return c.rootCommand()
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "docgloss",
		Short: "Overlay model-written definitions on documents",
		Long: `docgloss finds the terms in a document that a reader may not know and
marks them with short definitions. It can also explain a selected passage,
draft an email to the document's authors, or chat with the configured model.

Configuration comes from DOCGLOSS_CONFIG and the environment.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&c.verbose, verboseFlagName, "v", false, "log debug output to stderr")
	root.PersistentFlags().BoolVar(&c.render, renderFlagName, false, "load URLs in a headless browser")
	root.PersistentFlags().BoolVar(&c.pretty, prettyFlagName, false, "render model replies as styled markdown")
	root.AddCommand(c.scanCommand(), c.annotateCommand(), c.emailCommand(), c.chatCommand(), c.tokenCommand())
	return root
}

func (c *cli) logger() *slog.Logger {
	level := slog.LevelWarn
	if c.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))
}

// setup loads configuration and wires the services.
func (c *cli) setup(ctx context.Context) (*app.App, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfg, err
	}
	a, err := c.build(ctx, cfg, c.logger())
	if err != nil {
		return nil, cfg, err
	}
	return a, cfg, nil
}

// loadSource reads a local file or an http(s) URL.
func (c *cli) loadSource(ctx context.Context, a *app.App, cfg config.Config, src string) (*document.Document, error) {
	if isURL(src) {
		if c.render {
			return a.Renderer.Render(ctx, src)
		}
		return a.Fetcher.Fetch(ctx, src)
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return loader.Load(f, filepath.Base(src), app.LoaderOptions(cfg))
}

func isURL(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// printReply writes a model reply, styled when --pretty is set.
func (c *cli) printReply(reply string) error {
	if c.pretty {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err != nil {
			return err
		}
		out, err := r.Render(reply)
		if err != nil {
			return err
		}
		_, err = io.WriteString(c.stdout, out)
		return err
	}
	_, err := fmt.Fprintln(c.stdout, reply)
	return err
}

func (c *cli) selection(doc *document.Document, quote string, occurrence int) (*document.Selection, error) {
	if quote == "" {
		return nil, nil
	}
	sel, err := doc.Select(quote, occurrence)
	if err != nil {
		return nil, fmt.Errorf("select %q (occurrence %d): %w", quote, occurrence, err)
	}
	return sel, nil
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) scanCommand() *cobra.Command {
	var (
		output     string
		reportJSON bool
		watch      bool
	)
	cmd := &cobra.Command{
		Use:   "scan <file|url>",
		Short: "Mark every term the model defines and write the annotated HTML",
		Example: `  # Annotate a paper and open the result
  docgloss scan paper.pdf -o paper.html

  # Render a script-heavy page first
  docgloss scan --render https://example.com/article

  # Re-annotate a draft every time it is saved
  docgloss scan draft.md -o draft.html --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src := args[0]
			if watch && (isURL(src) || output == "") {
				return fmt.Errorf("--watch needs a local file and --%s", outputFlagName)
			}
			a, cfg, err := c.setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			scan := func(ctx context.Context) error {
				return c.scanOnce(ctx, a, cfg, src, output, reportJSON)
			}
			if err := scan(ctx); err != nil || !watch {
				return err
			}
			fmt.Fprintf(c.stderr, "watching %s\n", src)
			return loader.Watch(ctx, src, watchDebounce, scan, func(err error) {
				fmt.Fprintln(c.stderr, "error:", err)
			})
		},
	}
	cmd.Flags().StringVarP(&output, outputFlagName, "o", "", "write the annotated HTML to this file")
	cmd.Flags().BoolVar(&reportJSON, jsonFlagName, false, "print the scan report as JSON")
	cmd.Flags().BoolVarP(&watch, watchFlagName, "w", false, "scan again whenever the file changes")
	return cmd
}

func (c *cli) scanOnce(ctx context.Context, a *app.App, cfg config.Config, src, output string, reportJSON bool) error {
	doc, err := c.loadSource(ctx, a, cfg, src)
	if err != nil {
		return err
	}
	report, err := a.Assistant.TriggerScan(ctx, doc)
	if err != nil {
		return err
	}
	overlay.AttachReveal(doc)

	out := c.stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	if err := doc.Render(out); err != nil {
		return fmt.Errorf("write document: %w", err)
	}

	if reportJSON {
		enc := json.NewEncoder(c.stderr)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(c.stderr, "%d/%d chunks, %d terms marked, %d dropped",
		report.Succeeded, report.Chunks, report.Annotated, report.Dropped)
	if report.Cancelled {
		fmt.Fprint(c.stderr, " (cancelled)")
	}
	fmt.Fprintln(c.stderr)
	for _, f := range report.Failed {
		fmt.Fprintf(c.stderr, "  chunk %d: %s: %s\n", f.ChunkIndex, f.Kind, f.Error)
	}
	return nil
}

func (c *cli) annotateCommand() *cobra.Command {
	var (
		quote      string
		occurrence int
	)
	cmd := &cobra.Command{
		Use:   "annotate <file|url>",
		Short: "Explain a passage in the context of its document",
		Example: `  docgloss annotate paper.pdf --selection "Carnot cycle"
  docgloss annotate notes.md --selection entropy --occurrence 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cfg, err := c.setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := c.loadSource(ctx, a, cfg, args[0])
			if err != nil {
				return err
			}
			sel, err := c.selection(doc, quote, occurrence)
			if err != nil {
				return err
			}
			ann, err := a.Assistant.TriggerAnnotate(ctx, doc, sel)
			if err != nil {
				return err
			}
			return c.printReply(ann.Text)
		},
	}
	cmd.Flags().StringVarP(&quote, selectionFlagName, "s", "", "text to explain (required)")
	cmd.Flags().IntVarP(&occurrence, occurrenceFlagName, "n", 0, "zero-based occurrence of the selection")
	cmd.MarkFlagRequired(selectionFlagName)
	return cmd
}

func (c *cli) emailCommand() *cobra.Command {
	var (
		quote      string
		occurrence int
	)
	cmd := &cobra.Command{
		Use:   "email <file|url>",
		Short: "Draft an email to the document's authors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cfg, err := c.setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := c.loadSource(ctx, a, cfg, args[0])
			if err != nil {
				return err
			}
			sel, err := c.selection(doc, quote, occurrence)
			if err != nil {
				return err
			}
			draft, err := a.Assistant.ComposeAuthorEmail(doc, sel)
			if err != nil {
				return err
			}
			return c.printJSON(draft)
		},
	}
	cmd.Flags().StringVarP(&quote, selectionFlagName, "s", "", "passage to quote")
	cmd.Flags().IntVarP(&occurrence, occurrenceFlagName, "n", 0, "zero-based occurrence of the selection")
	return cmd
}

func (c *cli) chatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message>",
		Short: "Send one message to the configured model",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, _, err := c.setup(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			reply, err := a.Assistant.Chat(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return c.printReply(reply)
		},
	}
}

func (c *cli) tokenCommand() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API token signed with DOCGLOSS_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tok, err := auth.NewTokens(cfg.JWTSecret).Issue(args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.stdout, tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
