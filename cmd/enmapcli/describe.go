package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/example/go-enmap/enmap"
	"github.com/example/go-enmap/enmap/product"
)

type productInfo struct {
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	Level         string     `json:"level"`
	Location      string     `json:"location"`
	Width         int        `json:"width"`
	Height        int        `json:"height"`
	Start         time.Time  `json:"start"`
	Stop          time.Time  `json:"stop"`
	CRS           string     `json:"crs,omitempty"`
	Bands         []bandInfo `json:"bands"`
	TiePointGrids []string   `json:"tiePointGrids"`
	FlagCodings   []string   `json:"flagCodings"`
	Masks         int        `json:"masks"`
}

type bandInfo struct {
	Name       string  `json:"name"`
	DataType   string  `json:"dataType"`
	Wavelength float64 `json:"wavelength,omitempty"`
	Unit       string  `json:"unit,omitempty"`
	Flags      string  `json:"flags,omitempty"`
}

func describe(s *enmap.Session) productInfo {
	p := s.Product()
	info := productInfo{
		Name:     p.Name,
		Type:     p.Type,
		Level:    s.Metadata().Level().String(),
		Location: s.Location(),
		Width:    p.Width,
		Height:   p.Height,
		Start:    p.StartTime,
		Stop:     p.StopTime,
		Masks:    len(p.Masks()),
	}
	if gc := p.GeoCoding(); gc != nil {
		info.CRS = gc.CRS()
	}
	for _, b := range p.Bands() {
		info.Bands = append(info.Bands, bandSummary(b))
	}
	for _, g := range p.TiePointGrids() {
		info.TiePointGrids = append(info.TiePointGrids, g.Name)
	}
	for _, fc := range p.FlagCodings() {
		info.FlagCodings = append(info.FlagCodings, fc.Name)
	}
	return info
}

func bandSummary(b *product.Band) bandInfo {
	out := bandInfo{Name: b.Name, DataType: b.DataType.String(), Unit: b.Unit}
	if b.SpectralIndex >= 0 {
		out.Wavelength = b.Wavelength
	}
	if fc := b.SampleCoding(); fc != nil {
		out.Flags = fc.Name
	}
	return out
}

func printInfo(w io.Writer, info productInfo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Product\t%s\n", info.Name)
	fmt.Fprintf(tw, "Type\t%s (%s)\n", info.Type, info.Level)
	fmt.Fprintf(tw, "Location\t%s\n", info.Location)
	fmt.Fprintf(tw, "Size\t%d x %d\n", info.Width, info.Height)
	fmt.Fprintf(tw, "Sensing\t%s - %s\n", formatTime(info.Start), formatTime(info.Stop))
	crs := info.CRS
	if crs == "" {
		crs = "-"
	}
	fmt.Fprintf(tw, "CRS\t%s\n", crs)
	fmt.Fprintf(tw, "Tie-point grids\t%s\n", strings.Join(info.TiePointGrids, ", "))
	fmt.Fprintf(tw, "Flag codings\t%d\n", len(info.FlagCodings))
	fmt.Fprintf(tw, "Masks\t%d\n", info.Masks)
	tw.Flush()

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "BAND\tTYPE\tWAVELENGTH\tUNIT\tFLAGS")
	for _, b := range info.Bands {
		wl := "-"
		if b.Wavelength > 0 {
			wl = fmt.Sprintf("%.2f", b.Wavelength)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.Name, b.DataType, wl, dash(b.Unit), dash(b.Flags))
	}
	tw.Flush()
}

func printMetadata(w io.Writer, s *enmap.Session, filter string) {
	s.Product().MetadataRoot().Walk(func(path string, el *product.MetadataElement) {
		if filter != "" && !strings.Contains(path, filter) {
			return
		}
		for _, attr := range el.Attributes {
			fmt.Fprintf(w, "%s/@%s = %s\n", path, attr.Name, attr.Value)
		}
	})
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
