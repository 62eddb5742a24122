package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"log"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/urfave/cli/v3"
	"google.golang.org/api/option"

	"github.com/example/go-enmap/enmap"
	"github.com/example/go-enmap/enmap/container"
	"github.com/example/go-enmap/internal/config"
)

// app carries the settings resolved by the root command's Before hook.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	a := &app{}
	root := &cli.Command{
		Name:    "enmapcli",
		Usage:   "Inspect and read EnMAP L1B, L1C and L2A products",
		Version: config.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a TOML configuration file",
				Aliases: []string{"c"},
				Sources: cli.EnvVars("ENMAP_CONFIG"),
			},
			&cli.BoolFlag{
				Name:  "no-pixel-masks",
				Usage: "Leave the per band pixel mask flag bands out",
			},
		},
		Before: a.setup,
		Commands: []*cli.Command{
			a.newQualifyCommand(),
			a.newInfoCommand(),
			a.newMetadataCommand(),
			a.newReadCommand(),
			a.newFetchCommand(),
		},
	}

	if err := root.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func (a *app) setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(strings.TrimSpace(cmd.String("config")))
	if err != nil {
		return ctx, err
	}
	if cmd.Bool("no-pixel-masks") {
		cfg.PixelMasks = false
	}
	a.cfg = cfg
	a.logger = config.SetupLogger(cfg, os.Stderr)
	return ctx, nil
}

// options translates the configuration into reader options, registering
// the object stores the configuration enables.
func (a *app) options(ctx context.Context) ([]enmap.Option, error) {
	opts := []enmap.Option{
		enmap.WithLogger(a.logger),
		enmap.WithPixelMasks(a.cfg.PixelMasks),
		enmap.WithTileCache(a.cfg.TileCacheSize),
		enmap.WithStore(a.newS3()),
		enmap.WithRemoteOptions(a.remoteOptions()...),
	}
	if a.cfg.GCS.Enabled {
		gcs, err := a.newGCS(ctx)
		if err != nil {
			return nil, err
		}
		opts = append(opts, enmap.WithStore(gcs))
	}
	return opts, nil
}

func (a *app) remoteOptions() []container.RemoteOption {
	opts := []container.RemoteOption{container.WithFetchConcurrency(a.cfg.DownloadConcurrency)}
	if a.cfg.WorkDir != "" {
		opts = append(opts, container.WithWorkDir(a.cfg.WorkDir))
	}
	return opts
}

func (a *app) newS3() *container.S3 {
	return container.NewS3(container.S3Config{
		Region:          a.cfg.S3.Region,
		Endpoint:        a.cfg.S3.Endpoint,
		AccessKeyID:     a.cfg.S3.AccessKeyID,
		SecretAccessKey: a.cfg.S3.SecretAccessKey,
		SessionToken:    a.cfg.S3.SessionToken,
		UsePathStyle:    a.cfg.S3.UsePathStyle,
	})
}

func (a *app) newGCS(ctx context.Context) (*container.GCS, error) {
	var opts []option.ClientOption
	switch {
	case a.cfg.GCS.Anonymous:
		opts = append(opts, option.WithoutAuthentication())
	case a.cfg.GCS.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(a.cfg.GCS.CredentialsFile))
	}
	return container.NewGCS(ctx, opts...)
}

func (a *app) open(ctx context.Context, cmd *cli.Command) (*enmap.Session, error) {
	location := strings.TrimSpace(cmd.Args().First())
	if location == "" {
		return nil, fmt.Errorf("missing product location")
	}
	opts, err := a.options(ctx)
	if err != nil {
		return nil, err
	}
	return enmap.Open(ctx, location, opts...)
}

func (a *app) newQualifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "qualify",
		Usage:     "Report whether locations hold EnMAP products",
		ArgsUsage: "<location>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() == 0 {
				return fmt.Errorf("missing product location")
			}
			opts, err := a.options(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, location := range cmd.Args().Slice() {
				fmt.Fprintf(tw, "%s\t%s\n", enmap.Qualify(ctx, location, opts...), location)
			}
			return tw.Flush()
		},
	}
}

func (a *app) newInfoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Describe the structure of a product",
		ArgsUsage: "<location>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Usage:   "Output format (text, json or geojson)",
				Aliases: []string{"o"},
				Value:   "text",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			info := describe(s)
			switch output := strings.ToLower(strings.TrimSpace(cmd.String("output"))); output {
			case "json":
				return writeJSON(os.Stdout, info)
			case "geojson":
				fc, err := footprint(s, info)
				if err != nil {
					return err
				}
				return writeJSON(os.Stdout, fc)
			case "text":
				printInfo(os.Stdout, info)
				return nil
			default:
				return fmt.Errorf("unsupported output format %q", output)
			}
		},
	}
}

func (a *app) newMetadataCommand() *cli.Command {
	return &cli.Command{
		Name:      "metadata",
		Usage:     "Print the metadata tree of a product",
		ArgsUsage: "<location>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "filter",
				Usage: "Only print elements whose path contains this text",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := a.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			printMetadata(os.Stdout, s, strings.TrimSpace(cmd.String("filter")))
			return nil
		},
	}
}

func (a *app) newReadCommand() *cli.Command {
	return &cli.Command{
		Name:      "read",
		Usage:     "Print the samples of a band rectangle",
		ArgsUsage: "<location>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "band",
				Usage:    "Band name, e.g. band_047 or QUALITY_CLOUD",
				Aliases:  []string{"b"},
				Required: true,
			},
			&cli.StringFlag{
				Name:  "rect",
				Usage: "Rectangle as x,y,width,height",
				Value: "0,0,8,8",
			},
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "Print raw samples instead of geophysical values",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			rect, err := parseRect(cmd.String("rect"))
			if err != nil {
				return err
			}
			s, err := a.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			band := strings.TrimSpace(cmd.String("band"))
			b := s.Product().Band(band)
			if cmd.Bool("raw") || (b != nil && b.SpectralIndex < 0) {
				values, err := s.ReadRaster(ctx, band, rect)
				if err != nil {
					return err
				}
				printGrid(os.Stdout, rect, func(i int) string { return strconv.Itoa(int(values[i])) })
				return nil
			}
			values, err := s.ReadGeophysical(ctx, band, rect)
			if err != nil {
				return err
			}
			printGrid(os.Stdout, rect, func(i int) string { return strconv.FormatFloat(values[i], 'g', 6, 64) })
			return nil
		},
	}
}

func (a *app) newFetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download a product from an object store",
		ArgsUsage: "<s3://bucket/prefix | gs://bucket/prefix>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "dir",
				Usage:    "Destination directory",
				Aliases:  []string{"d"},
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "progress",
				Usage: "Report per file progress on stderr",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			uri := strings.TrimSpace(cmd.Args().First())
			if !container.IsRemote(uri) {
				return fmt.Errorf("fetch needs an s3:// or gs:// location, got %q", uri)
			}
			dir := strings.TrimSpace(cmd.String("dir"))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
			store, err := a.storeFor(ctx, uri)
			if err != nil {
				return err
			}

			opts := append(a.remoteOptions(), container.WithWorkDir(dir))
			if cmd.Bool("progress") {
				opts = append(opts, container.WithProgress(func(p container.FileProgress) {
					if p.Downloaded == p.Total {
						fmt.Fprintf(os.Stderr, "%s: %d bytes\n", p.FileName, p.Total)
					}
				}))
			}
			start := time.Now()
			r, err := container.OpenRemote(ctx, store, uri, opts...)
			if err != nil {
				return fmt.Errorf("fetch: %w", err)
			}
			defer r.Close()
			names, err := r.List(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("product fetched", "uri", uri, "dir", dir, "files", len(names), "elapsed", time.Since(start))
			fmt.Fprintf(os.Stdout, "Fetched %d file(s) to %s (%s)\n", len(names), dir, enmap.Qualify(ctx, dir))
			return nil
		},
	}
}

func (a *app) storeFor(ctx context.Context, uri string) (container.Store, error) {
	scheme, _, _, err := container.ParseURI(uri)
	if err != nil {
		return nil, err
	}
	switch scheme {
	case "s3":
		return a.newS3(), nil
	case "gs":
		return a.newGCS(ctx)
	}
	return nil, fmt.Errorf("%w: %s", container.ErrUnsupportedScheme, scheme)
}

// parseRect parses x,y,width,height.
func parseRect(value string) (image.Rectangle, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return image.Rectangle{}, fmt.Errorf("parse rect %q: want x,y,width,height", value)
	}
	var n [4]int
	for i, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return image.Rectangle{}, fmt.Errorf("parse rect %q: %w", value, err)
		}
		n[i] = v
	}
	if n[2] <= 0 || n[3] <= 0 {
		return image.Rectangle{}, fmt.Errorf("parse rect %q: width and height must be positive", value)
	}
	return image.Rect(n[0], n[1], n[0]+n[2], n[1]+n[3]), nil
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printGrid(w io.Writer, rect image.Rectangle, cell func(i int) string) {
	tw := tabwriter.NewWriter(w, 0, 4, 1, ' ', tabwriter.AlignRight)
	i := 0
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			fmt.Fprintf(tw, "%s\t", cell(i))
			i++
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

// footprint returns the scene footprint as a GeoJSON feature collection.
func footprint(s *enmap.Session, info productInfo) (*geojson.FeatureCollection, error) {
	ring, err := s.Metadata().SpatialCoverage()
	if err != nil {
		return nil, err
	}
	f := geojson.NewFeature(orb.Polygon{ring})
	f.Properties["name"] = info.Name
	f.Properties["type"] = info.Type
	f.Properties["level"] = info.Level
	f.Properties["start"] = formatTime(info.Start)
	f.Properties["stop"] = formatTime(info.Stop)
	f.Properties["crs"] = info.CRS
	fc := geojson.NewFeatureCollection()
	fc.Append(f)
	return fc, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
