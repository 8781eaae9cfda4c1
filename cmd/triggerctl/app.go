package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/andresuchdata/triggerstore/internal/config"
	"github.com/andresuchdata/triggerstore/internal/domain"
	"github.com/andresuchdata/triggerstore/internal/storage"
	"github.com/andresuchdata/triggerstore/pkg/logger"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

type gatewayKey struct{}

type gatewayFactory func(c *cli.Context) (*storage.Gateway, error)

func newApp(out io.Writer, factory gatewayFactory) *cli.App {
	initGateway := func(c *cli.Context) error {
		logger.SetLevel(c.String("log-level"))
		gateway, err := factory(c)
		if err != nil {
			return fmt.Errorf("failed to initialize storage gateway: %w", err)
		}
		c.Context = context.WithValue(c.Context, gatewayKey{}, gateway)
		return nil
	}

	return &cli.App{
		Name:      "triggerctl",
		Usage:     "Inspect and manage workflow trigger files in the storage account",
		Writer:    out,
		ErrWriter: out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "storage-driver", Value: storage.DriverMinio, EnvVars: []string{"STORAGE_DRIVER"}},
			&cli.StringFlag{Name: "storage-endpoint", EnvVars: []string{"STORAGE_ENDPOINT"}},
			&cli.StringFlag{Name: "storage-access-key", EnvVars: []string{"STORAGE_ACCESS_KEY"}},
			&cli.StringFlag{Name: "storage-secret-key", EnvVars: []string{"STORAGE_SECRET_KEY"}},
			&cli.StringFlag{Name: "storage-region", Value: "us-east-1", EnvVars: []string{"STORAGE_REGION"}},
			&cli.BoolFlag{Name: "storage-use-ssl", Value: true, EnvVars: []string{"STORAGE_USE_SSL"}},
			&cli.BoolFlag{Name: "verify-checksum", Usage: "Validate checksums on blob downloads", EnvVars: []string{"STORAGE_VERIFY_DOWNLOAD_CHECKSUM"}},
			&cli.DurationFlag{Name: "timeout", Value: time.Minute, Usage: "Per-command timeout"},
			&cli.StringFlag{Name: "log-level", Value: "warn", EnvVars: []string{"LOG_LEVEL"}},
		},
		Before: initGateway,
		Commands: []*cli.Command{
			{
				Name:   "probe",
				Usage:  "Check whether the storage account is reachable",
				Action: runProbe,
			},
			{
				Name:  "list",
				Usage: "List workflow files in a state",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "state", Aliases: []string{"s"}, Value: string(domain.StateNew)},
					&cli.IntFlag{Name: "limit", Usage: "Stop after this many files (0 = all)"},
				},
				Action: runList,
			},
			{
				Name:  "upload",
				Usage: "Upload text to an object, creating the container on first use",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Read content from file (- for stdin)"},
					&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Literal content"},
				}, containerFlags()...),
				Action: runUpload,
			},
			{
				Name:   "cat",
				Usage:  "Print an object's text content",
				Flags:  containerFlags(),
				Action: runCat,
			},
			{
				Name:      "download",
				Usage:     "Download blobs by URL, /account/container/object or account/container/object",
				ArgsUsage: "REF...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out-dir", Aliases: []string{"o"}, Usage: "Write each blob to <dir>/<container>/<object>"},
					&cli.BoolFlag{Name: "http", Usage: "Fetch the arguments as plain HTTP URLs"},
					&cli.IntFlag{Name: "concurrency", Value: 4},
				},
				Action: runDownload,
			},
			{
				Name:   "delete",
				Usage:  "Delete an object if it exists",
				Flags:  containerFlags(),
				Action: runDelete,
			},
		},
	}
}

func containerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "container", Aliases: []string{"c"}, Usage: "Container name", Required: true},
		&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Object name", Required: true},
	}
}

func gatewayFromFlags(c *cli.Context) (*storage.Gateway, error) {
	cfg := &config.Config{
		Storage: config.StorageConfig{
			Driver:                 c.String("storage-driver"),
			Endpoint:               c.String("storage-endpoint"),
			AccessKey:              c.String("storage-access-key"),
			SecretKey:              c.String("storage-secret-key"),
			Region:                 c.String("storage-region"),
			UseSSL:                 c.Bool("storage-use-ssl"),
			VerifyDownloadChecksum: c.Bool("verify-checksum"),
		},
	}
	return storage.NewGatewayFromConfig(cfg, nil, logger.Component("triggerctl"))
}

func gatewayFrom(c *cli.Context) *storage.Gateway {
	return c.Context.Value(gatewayKey{}).(*storage.Gateway)
}

func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	if timeout := c.Duration("timeout"); timeout > 0 {
		return context.WithTimeout(c.Context, timeout)
	}
	return context.WithCancel(c.Context)
}

func runProbe(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	gateway := gatewayFrom(c)
	result := gateway.CheckAvailability(ctx)
	if !result.Available {
		return cli.Exit(fmt.Sprintf("%s (%s): %s: %v", gateway.AccountName(), gateway.AccountAuthority(), result.Kind, result.Err), 1)
	}
	fmt.Fprintf(c.App.Writer, "%s (%s): available\n", gateway.AccountName(), gateway.AccountAuthority())
	return nil
}

func runList(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	state, _ := domain.ParseWorkflowState(c.String("state"))
	limit := c.Int("limit")

	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	count := 0
	for file, err := range gatewayFrom(c).WorkflowsByState(ctx, state) {
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", file.Name, file.LastModified.Format(time.RFC3339), file.URI)
		count++
		if limit > 0 && count >= limit {
			break
		}
	}
	return w.Flush()
}

func runUpload(c *cli.Context) error {
	content, err := uploadContent(c)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(c)
	defer cancel()

	uri, err := gatewayFrom(c).UploadText(ctx, content, c.String("container"), c.String("name"))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, uri)
	return nil
}

func uploadContent(c *cli.Context) (string, error) {
	switch file := c.String("file"); {
	case file != "" && c.IsSet("text"):
		return "", cli.Exit("use either --file or --text", 2)
	case file == "-":
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	default:
		return c.String("text"), nil
	}
}

func runCat(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	text, err := gatewayFrom(c).DownloadText(ctx, c.String("container"), c.String("name"))
	if err != nil {
		return err
	}
	_, err = io.WriteString(c.App.Writer, text)
	return err
}

func runDownload(c *cli.Context) error {
	refs := c.Args().Slice()
	if len(refs) == 0 {
		return cli.Exit("at least one reference is required", 2)
	}
	outDir := c.String("out-dir")
	if outDir == "" && len(refs) > 1 {
		return cli.Exit("--out-dir is required when downloading more than one reference", 2)
	}
	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("failed to ensure output dir %s: %w", outDir, err)
		}
	}

	ctx, cancel := commandContext(c)
	defer cancel()

	gateway := gatewayFrom(c)
	download := gateway.DownloadBlob
	if c.Bool("http") {
		download = gateway.DownloadHTTP
	}

	dests := make([]string, len(refs))
	if outDir != "" {
		seen := make(map[string]string, len(refs))
		for i, ref := range refs {
			dest, err := downloadDestination(gateway, outDir, ref, c.Bool("http"))
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			if prev, ok := seen[dest]; ok {
				return cli.Exit(fmt.Sprintf("references %q and %q both resolve to %s", prev, ref, dest), 2)
			}
			seen[dest] = ref
			dests[i] = dest
		}
	}

	results := make([][]byte, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, c.Int("concurrency")))
	for i, ref := range refs {
		g.Go(func() error {
			data, err := download(gctx, ref)
			if err != nil {
				return err
			}
			if outDir == "" {
				results[i] = data
				return nil
			}
			dest := dests[i]
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return fmt.Errorf("failed to ensure output dir %s: %w", filepath.Dir(dest), err)
			}
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				return fmt.Errorf("failed writing %s: %w", dest, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if outDir == "" {
		_, err := c.App.Writer.Write(results[0])
		return err
	}
	for _, dest := range dests {
		fmt.Fprintln(c.App.Writer, dest)
	}
	return nil
}

// downloadDestination maps a reference to its file under outDir. Blob
// references keep their container and object path so objects with the same
// name in different containers do not collide; HTTP references use the last
// path segment.
func downloadDestination(gateway *storage.Gateway, outDir, ref string, httpRef bool) (string, error) {
	if httpRef {
		return filepath.Join(outDir, referenceBaseName(ref)), nil
	}
	normalized, _ := storage.NormalizeReference(ref, gateway.AccountName(), gateway.AccountAuthority())
	container, object, err := storage.ParseObjectURL(normalized)
	if err != nil {
		return "", fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	rel := filepath.Join(container, filepath.FromSlash(object))
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("reference %q escapes the output directory", ref)
	}
	return filepath.Join(outDir, rel), nil
}

// referenceBaseName returns the last path segment of a reference, without
// any query string.
func referenceBaseName(ref string) string {
	ref, _, _ = strings.Cut(ref, "?")
	base := path.Base(strings.TrimRight(ref, "/"))
	if base == "." || base == "/" || base == "" {
		return "download"
	}
	return base
}

func runDelete(c *cli.Context) error {
	ctx, cancel := commandContext(c)
	defer cancel()

	return gatewayFrom(c).DeleteIfExists(ctx, c.String("container"), c.String("name"))
}
