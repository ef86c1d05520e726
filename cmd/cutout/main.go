package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"cutout/internal/client"
	"cutout/internal/gallery"
	"cutout/internal/pkg/logging"
	"cutout/internal/processing"
	"cutout/internal/workflow"
)

const defaultAPI = "http://localhost:8080"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.InitWriter(os.Stderr, envOr("LOG_LEVEL", "warn"))

	rootCmd := newRootCommand(os.Stdout)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cutout: %v\n", err)
		os.Exit(1)
	}
}

type cli struct {
	apiURL string
	out    io.Writer
}

func (c *cli) client() (*client.Client, error) {
	return client.New(c.apiURL, nil)
}

func newRootCommand(out io.Writer) *cobra.Command {
	c := &cli{out: out}
	cmd := &cobra.Command{
		Use:   "cutout",
		Short: "Remove image backgrounds and manage the gallery",
		Long: `cutout uploads an image, removes its background locally or through an
inference service, and keeps the before/after pair in the gallery.`,
		SilenceUsage: true,
	}
	cmd.SetOut(out)
	cmd.PersistentFlags().StringVar(&c.apiURL, "api", envOr("CUTOUT_API", defaultAPI), "API base URL")
	cmd.AddCommand(
		newProcessCmd(c),
		newEnqueueCmd(c),
		newGalleryCmd(c),
		newGetCmd(c),
		newDeleteCmd(c),
		newDownloadCmd(c),
	)
	return cmd
}

func newProcessCmd(c *cli) *cobra.Command {
	var (
		markFailed bool
		remover    string
		removerURL string
		maxSide    int
		quiet      bool
	)
	cmd := &cobra.Command{
		Use:   "process <file>",
		Short: "Upload a file, remove its background and store the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			var rm processing.Remover
			switch remover {
			case "matte":
				rm = processing.NewMatteRemover(maxSide)
			case "http":
				if removerURL == "" {
					return errors.New("--remover=http needs --remover-url or REMOVER_URL")
				}
				rm = processing.NewHTTPRemover(removerURL, nil)
			default:
				return fmt.Errorf("unknown remover %q (matte|http)", remover)
			}
			api, err := c.client()
			if err != nil {
				return err
			}

			errOut := cmd.ErrOrStderr()
			opts := workflow.Options{MarkFailed: markFailed}
			if !quiet {
				opts.Progress = func(f float64) { fmt.Fprintf(errOut, "\r%3.0f%%", f*100) }
			}
			img, err := workflow.New(api, rm, opts, nil).Run(cmd.Context(), filepath.Base(args[0]), data)
			if !quiet {
				fmt.Fprintln(errOut)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "image %d completed: %s\n", img.ID, api.ResolveURL(*img.ProcessedURL))
			return nil
		},
	}
	cmd.Flags().BoolVar(&markFailed, "mark-failed", false, "Mark the record failed when processing fails")
	cmd.Flags().StringVar(&remover, "remover", "matte", "Background remover: matte|http")
	cmd.Flags().StringVar(&removerURL, "remover-url", os.Getenv("REMOVER_URL"), "Inference endpoint for --remover=http")
	cmd.Flags().IntVar(&maxSide, "max-side", processing.DefaultMaxSide, "Longest side of the mask working copy")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")
	return cmd
}

func newEnqueueCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <id>",
		Short: "Ask the server to process a pending image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			api, err := c.client()
			if err != nil {
				return err
			}
			res, err := api.Process(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "image %d queued (%s)\n", res.ID, res.Status)
			return nil
		},
	}
}

func newGalleryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "gallery",
		Short: "List images, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := c.client()
			if err != nil {
				return err
			}
			g := gallery.New(api)
			cards, err := g.Cards(cmd.Context())
			if err != nil {
				return err
			}
			return g.Render(c.out, cards)
		},
	}
}

func newGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one image record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			api, err := c.client()
			if err != nil {
				return err
			}
			img, err := api.Get(cmd.Context(), id)
			if err != nil {
				if errors.Is(err, client.ErrNotFound) {
					return fmt.Errorf("image %d not found", id)
				}
				return err
			}
			processed := "-"
			if img.ProcessedURL != nil {
				processed = *img.ProcessedURL
			}
			fmt.Fprintf(c.out, "id:        %d\nstatus:    %s\noriginal:  %s\nprocessed: %s\ncreated:   %s\n",
				img.ID, img.Status, img.OriginalURL, processed, img.CreatedAt.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
}

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an image record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			api, err := c.client()
			if err != nil {
				return err
			}
			if err := gallery.New(api).Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "image %d deleted\n", id)
			return nil
		},
	}
}

func newDownloadCmd(c *cli) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Save the processed image as removed-bg-<id>.png",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			api, err := c.client()
			if err != nil {
				return err
			}
			img, err := api.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			path, err := gallery.New(api).Download(cmd.Context(), *img, dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "saved %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to save into")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid image id %q", s)
	}
	return id, nil
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
