package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"dataprep/internal/dataframe"
	"dataprep/internal/engine"
)

// HTMLParams configures the HTML table loader. Path may be a local file or
// an http(s) URL; Selector narrows which table is read (default "table").
type HTMLParams struct {
	Path     string `json:"path" validate:"required"`
	Selector string `json:"selector,omitempty"`
}

// LoadHTML extracts the first table matching the selector into a plan.
// Header cells come from thead (or the first row); every cell is read as
// trimmed text, empty cells as null.
func (l *Loader) LoadHTML(ctx context.Context, p HTMLParams) ([]dataframe.Plan, engine.LoadMetadata, error) {
	body, err := l.openHTML(ctx, p.Path)
	if err != nil {
		return nil, engine.LoadMetadata{}, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, engine.LoadMetadata{}, fmt.Errorf("parse html: %w", err)
	}

	selector := p.Selector
	if selector == "" {
		selector = "table"
	}
	table := doc.Find(selector).First()
	if table.Length() == 0 {
		return nil, engine.LoadMetadata{}, fmt.Errorf("no table matches %q", selector)
	}

	f, err := tableToFrame(table)
	if err != nil {
		return nil, engine.LoadMetadata{}, err
	}
	return []dataframe.Plan{dataframe.FromFrame(f)}, engine.LoadMetadata{SourcePaths: []string{p.Path}}, nil
}

func (l *Loader) openHTML(ctx context.Context, path string) (io.ReadCloser, error) {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, fmt.Errorf("html request: %w", err)
		}
		resp, err := l.HTTPClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("html request: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, fmt.Errorf("html request: unexpected status %s", resp.Status)
		}
		return resp.Body, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open html: %w", err)
	}
	return f, nil
}

func tableToFrame(table *goquery.Selection) (*dataframe.Frame, error) {
	var header []string
	headerSel := table.Find("thead tr").First()
	if headerSel.Length() == 0 {
		headerSel = table.Find("tr").First()
	}
	headerSel.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
		header = append(header, strings.TrimSpace(cell.Text()))
	})
	if len(header) == 0 {
		return nil, fmt.Errorf("table has no header row")
	}

	f := dataframe.NewFrame(header)
	row := make([]any, len(header))
	table.Find("tr").Each(func(i int, tr *goquery.Selection) {
		// skip the header row itself
		if tr.Nodes[0] == headerSel.Nodes[0] {
			return
		}
		cells := tr.Find("td")
		if cells.Length() == 0 {
			return
		}
		for j := range row {
			row[j] = nil
		}
		cells.Each(func(j int, cell *goquery.Selection) {
			if j >= len(row) {
				return
			}
			text := strings.TrimSpace(cell.Text())
			if text != "" {
				row[j] = text
			}
		})
		f.AppendRow(row)
	})
	return f, nil
}
