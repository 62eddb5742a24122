package meta

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
)

// timeLayouts mirror the EnMAP pattern yyyy-MM-dd'T'HH:mm:ss.SSSSSSX, whose
// zone designator may be "Z", "+hh", "+hhmm" or "+hh:mm".
var timeLayouts = []string{
	"2006-01-02T15:04:05.000000Z07:00",
	"2006-01-02T15:04:05.000000Z0700",
	"2006-01-02T15:04:05.000000Z07",
}

// document evaluates XPath expressions against a parsed metadata file.
type document struct {
	root *xmlquery.Node
}

func (d *document) node(path string) (*xmlquery.Node, error) {
	n, err := xmlquery.Query(d.root, path)
	if err != nil {
		return nil, fmt.Errorf("meta: evaluate %s: %w", path, err)
	}
	if n == nil {
		return nil, &FieldMissingError{Path: path}
	}
	return n, nil
}

func (d *document) text(path string) (string, error) {
	n, err := d.node(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(n.InnerText()), nil
}

func (d *document) texts(path string) ([]string, error) {
	nodes, err := xmlquery.QueryAll(d.root, path)
	if err != nil {
		return nil, fmt.Errorf("meta: evaluate %s: %w", path, err)
	}
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, strings.TrimSpace(n.InnerText()))
	}
	return out, nil
}

func (d *document) float(path string) (float64, error) {
	raw, err := d.text(path)
	if err != nil {
		return 0, err
	}
	return parseFloat(path, raw)
}

func (d *document) int(path string) (int, error) {
	raw, err := d.text(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &FieldMalformedError{Path: path, Raw: raw, Err: err}
	}
	return v, nil
}

// floats returns the first n values selected by path. Fewer matches than n
// count as a missing field.
func (d *document) floats(path string, n int) ([]float64, error) {
	raws, err := d.texts(path)
	if err != nil {
		return nil, err
	}
	if len(raws) < n {
		return nil, &FieldMissingError{Path: fmt.Sprintf("%s[%d]", path, len(raws)+1)}
	}
	out := make([]float64, n)
	for i := range out {
		v, err := parseFloat(path, raws[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (d *document) time(path string) (time.Time, error) {
	raw, err := d.text(path)
	if err != nil {
		return time.Time{}, err
	}
	t, err := ParseTime(raw)
	if err != nil {
		return time.Time{}, &FieldMalformedError{Path: path, Raw: raw, Err: err}
	}
	return t, nil
}

func parseFloat(path, raw string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &FieldMalformedError{Path: path, Raw: raw, Err: err}
	}
	return v, nil
}

// ParseTime parses an EnMAP timestamp with six fractional digits. The result
// is in UTC with the microseconds truncated to milliseconds.
func ParseTime(raw string) (time.Time, error) {
	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, strings.TrimSpace(raw))
		if err == nil {
			return t.UTC().Truncate(time.Millisecond), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
