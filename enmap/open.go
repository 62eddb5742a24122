package enmap

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/go-enmap/enmap/container"
	"github.com/example/go-enmap/enmap/flags"
	"github.com/example/go-enmap/enmap/geocoding"
	"github.com/example/go-enmap/enmap/imagery"
	"github.com/example/go-enmap/enmap/internal/tiles"
	"github.com/example/go-enmap/enmap/meta"
	"github.com/example/go-enmap/enmap/naming"
	"github.com/example/go-enmap/enmap/product"
)

const angleUnit = "DEG"

var (
	productsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enmap_products_opened_total",
		Help: "Products opened, by processing level.",
	}, []string{"level"})

	openFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enmap_product_open_failures_total",
		Help: "Product opens aborted by an error.",
	})

	openSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enmap_sessions_open",
		Help: "Sessions opened and not yet closed.",
	})
)

// Open reads the product at location: a product directory, a file inside
// it, a zip archive, or an s3:// or gs:// prefix served by a store
// registered with WithStore.
func Open(ctx context.Context, location string, opts ...Option) (*Session, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	c, err := openContainer(ctx, location, cfg)
	if err != nil {
		openFailures.Inc()
		return nil, err
	}
	return open(ctx, c, cfg)
}

// OpenContainer reads the product held by c. The session takes ownership of
// c; it is closed on failure too.
func OpenContainer(ctx context.Context, c container.Container, opts ...Option) (*Session, error) {
	if c == nil {
		return nil, errors.New("enmap: nil container")
	}
	cfg, err := newConfig(opts)
	if err != nil {
		c.Close()
		return nil, err
	}
	return open(ctx, c, cfg)
}

func open(ctx context.Context, c container.Container, cfg *config) (*Session, error) {
	id := uuid.NewString()
	ctx, span := cfg.tracer.Start(ctx, "enmap.Open", trace.WithAttributes(
		attribute.String("enmap.location", c.Name()),
		attribute.String("enmap.session", id),
	))
	defer span.End()

	fetcher, err := tiles.New(cfg.tileCacheSize)
	if err != nil {
		c.Close()
		return nil, err
	}
	a := &assembler{
		cfg:     cfg,
		c:       c,
		fetcher: fetcher,
		logger:  cfg.logger.With("session", id, "location", c.Name()),
		opened:  make(map[imagery.Key]*imagery.Series),
	}
	if err := a.run(ctx); err != nil {
		if relErr := release(a.series, c); relErr != nil {
			a.logger.Warn("release after failed open", "error", relErr)
		}
		fetcher.Purge()
		openFailures.Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return nil, err
	}

	productsOpened.WithLabelValues(a.md.Level().String()).Inc()
	openSessions.Inc()
	span.SetAttributes(attribute.String("enmap.level", a.md.Level().String()), attribute.Int("enmap.bands", len(a.p.Bands())))
	span.SetStatus(codes.Ok, "opened")
	a.logger.Info("product opened", "product", a.p.Name, "level", a.md.Level(), "bands", len(a.p.Bands()))
	return &Session{
		id:        id,
		product:   a.p,
		md:        a.md,
		container: c,
		series:    a.series,
		fetcher:   fetcher,
		logger:    a.logger,
	}, nil
}

// assembler builds the product step by step. It owns every series it
// opens until the session takes them over.
type assembler struct {
	cfg     *config
	c       container.Container
	fetcher *tiles.Fetcher
	logger  *slog.Logger

	names  []string
	md     meta.Metadata
	p      *product.Product
	series []*imagery.Series
	opened map[imagery.Key]*imagery.Series
}

func (a *assembler) run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"metadata", a.readMetadata},
		{"classify", a.classify},
		{"geocoding", a.addGeoCoding},
		{"spectral", a.addSpectralBands},
		{"tie-point-grids", a.addTiePointGrids},
		{"quality", a.addQualityBands},
		{"metadata-root", a.addMetadataRoot},
	}
	for _, step := range steps {
		if err := a.step(ctx, step.name, step.fn); err != nil {
			return err
		}
	}
	a.p.AutoGrouping = AutoGrouping
	a.p.Seal()
	return nil
}

func (a *assembler) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := a.cfg.tracer.Start(ctx, "enmap.assemble."+name)
	defer span.End()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, name+" failed")
		return err
	}
	a.logger.Debug("assembly step done", "step", name)
	return nil
}

func (a *assembler) readMetadata(ctx context.Context) error {
	names, err := a.c.List(ctx)
	if err != nil {
		return fmt.Errorf("enmap: list %s: %w", a.c.Name(), err)
	}
	a.names = names
	name, ok := naming.MetadataFile(names)
	if !ok {
		return fmt.Errorf("%w in %s: %w", ErrNoMetadata, a.c.Name(), meta.ErrFileNotFound)
	}
	rc, err := a.c.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("enmap: open %s: %w", name, err)
	}
	defer rc.Close()
	md, err := meta.Read(rc)
	if err != nil {
		return err
	}
	a.md = md
	return nil
}

func (a *assembler) classify(context.Context) error {
	level, ok := naming.Classify(a.names)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnclassified, a.c.Name())
	}
	if level != a.md.Level() {
		return fmt.Errorf("%w: files are %s, metadata declares %s", ErrLevelMismatch, level, a.md.Level())
	}

	name, err := a.md.ProductName()
	if err != nil {
		return err
	}
	productType, err := a.md.ProductType()
	if err != nil {
		return err
	}
	size, err := a.md.SceneSize()
	if err != nil {
		return err
	}
	p := product.New(name, productType, size.Width, size.Height)
	if p.StartTime, err = a.md.StartTime(); err != nil {
		return err
	}
	if p.StopTime, err = a.md.StopTime(); err != nil {
		return err
	}
	a.p = p
	return nil
}

func (a *assembler) addGeoCoding(ctx context.Context) error {
	sel := geocoding.Selector{Container: a.c, Opener: a.cfg.rasterOpener(), Logger: a.logger}
	desc, err := sel.Select(ctx, a.md)
	if err != nil {
		return err
	}
	if desc == nil {
		return nil
	}
	if tp, ok := desc.(geocoding.TiePoint); ok {
		if err := a.addGrid(LatitudeGrid, tp.Latitudes); err != nil {
			return err
		}
		if err := a.addGrid(LongitudeGrid, tp.Longitudes); err != nil {
			return err
		}
	}
	return a.p.SetGeoCoding(desc)
}

// openSeries opens the series behind key once and records it for release.
func (a *assembler) openSeries(ctx context.Context, key imagery.Key) (*imagery.Series, error) {
	if s, ok := a.opened[key]; ok {
		return s, nil
	}
	s, err := imagery.OpenSeries(ctx, a.c, a.cfg.rasterOpener(), a.md, key)
	if err != nil {
		return nil, err
	}
	a.series = append(a.series, s)
	a.opened[key] = s
	return s, nil
}

func (a *assembler) source(name string, s *imagery.Series, i int) (bandSource, error) {
	img, err := s.ImageAt(i)
	if err != nil {
		return bandSource{}, err
	}
	return bandSource{name: name, img: img, fetcher: a.fetcher}, nil
}

func (a *assembler) addSpectralBands(ctx context.Context) error {
	s, err := a.openSeries(ctx, imagery.Spectral)
	if err != nil {
		return err
	}
	indices, err := a.md.SpectralIndices()
	if err != nil {
		return err
	}
	if s.BandCount() < len(indices) {
		return fmt.Errorf("%w: spectral image has %d bands, metadata declares %d", imagery.ErrBandCountMismatch, s.BandCount(), len(indices))
	}
	background, err := a.md.BackgroundValue()
	if err != nil {
		return err
	}
	a.p.PreferredTileSize = s.TileSize()

	for i, index := range indices {
		b := product.NewBand(fmt.Sprintf("band_%03d", index), a.md.SpectralDataType(), a.p.Width, a.p.Height)
		b.SpectralIndex = index - 1
		if b.Wavelength, err = a.md.CentralWavelength(i); err != nil {
			return err
		}
		if b.Bandwidth, err = a.md.Bandwidth(i); err != nil {
			return err
		}
		if b.Description, err = a.md.SpectralDescription(i); err != nil {
			return err
		}
		if b.ScalingFactor, err = a.md.BandScaling(i); err != nil {
			return err
		}
		if b.ScalingOffset, err = a.md.BandOffset(i); err != nil {
			return err
		}
		b.Unit = a.md.SpectralUnit()
		b.NoDataValue = background
		b.NoDataUsed = true
		if err := a.attach(b, s, i); err != nil {
			return err
		}
	}
	return nil
}

func (a *assembler) attach(b *product.Band, s *imagery.Series, i int) error {
	if err := a.p.AddBand(b); err != nil {
		return err
	}
	src, err := a.source(b.Name, s, i)
	if err != nil {
		return err
	}
	if src.Size() != image.Pt(b.Width, b.Height) {
		return fmt.Errorf("enmap: band %s raster is %v, scene is %dx%d", b.Name, src.Size(), b.Width, b.Height)
	}
	return b.SetSource(src)
}

func (a *assembler) addTiePointGrids(context.Context) error {
	grids := []struct {
		name string
		fn   func() (meta.Angles, error)
	}{
		{SceneAzimuthGrid, a.md.SceneAzimuth},
		{SunAzimuthGrid, a.md.SunAzimuth},
		{SunElevationGrid, a.md.SunElevation},
		{AcrossOffNadirGrid, a.md.AcrossOffNadir},
		{AlongOffNadirGrid, a.md.AlongOffNadir},
	}
	for _, g := range grids {
		angles, err := g.fn()
		if err != nil {
			return err
		}
		if err := a.addGrid(g.name, angles.Corners); err != nil {
			return err
		}
	}
	return nil
}

// addGrid adds a 2x2 grid spanning the scene from its corner values.
func (a *assembler) addGrid(name string, corners [4]float64) error {
	data := make([]float32, len(corners))
	for i, v := range corners {
		data[i] = float32(v)
	}
	g, err := product.NewTiePointGrid(name, 2, 2, 0, 0, float64(a.p.Width), float64(a.p.Height), data)
	if err != nil {
		return err
	}
	g.Unit = angleUnit
	return a.p.AddTiePointGrid(g)
}

func (a *assembler) addQualityBands(ctx context.Context) error {
	bindings, err := flags.ExpandAll(a.md, a.cfg.pixelMasks)
	if err != nil {
		return err
	}
	for _, bind := range bindings {
		if a.p.FlagCoding(bind.Coding.Name) == nil {
			if err := a.p.AddFlagCoding(bind.Coding); err != nil {
				return err
			}
		}
		s, err := a.openSeries(ctx, bind.Series)
		if err != nil {
			return err
		}
		b := product.NewBand(bind.BandName, bind.DataType, a.p.Width, a.p.Height)
		if err := b.SetSampleCoding(bind.Coding); err != nil {
			return err
		}
		if err := a.attach(b, s, bind.Index); err != nil {
			return err
		}
		for _, m := range bind.Masks {
			if err := a.p.AddMask(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *assembler) addMetadataRoot(context.Context) error {
	a.p.MetadataRoot().AddElement(a.md.MetadataRoot())
	return nil
}
