package source

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"dataprep/internal/dataframe"
	"dataprep/internal/encodings"
	"dataprep/internal/engine"
	"dataprep/internal/filter"
	"dataprep/internal/pathresolve"
	"dataprep/internal/staging"
	"dataprep/internal/workbook"
)

// FileParams configures the file loader.
type FileParams struct {
	Path              string          `json:"path" validate:"required"`
	Filters           []filter.Filter `json:"filters,omitempty"`
	SheetFilters      []filter.Filter `json:"sheet_filters,omitempty"`
	Sheet             string          `json:"sheet,omitempty"`
	Files             []string        `json:"files,omitempty"`
	MaxFiles          int             `json:"max_files,omitempty"`
	ProcessIndividual bool            `json:"process_individual,omitempty"`
	IncludeSourceInfo bool            `json:"include_source_info,omitempty"`
}

// Loader bundles the services file loading needs. HTTPClient is shared with
// the API loader.
type Loader struct {
	Resolver   *pathresolve.Resolver
	Encodings  *encodings.Service
	Workbooks  *workbook.Cache
	Staging    *staging.Manager
	HTTPClient *http.Client
	Log        zerolog.Logger
}

func NewLoader(st *staging.Manager, log zerolog.Logger) *Loader {
	enc := encodings.NewService(st, log)
	return &Loader{
		Resolver:   pathresolve.New(),
		Encodings:  enc,
		Workbooks:  workbook.NewCache(),
		Staging:    st,
		HTTPClient: http.DefaultClient,
		Log:        log,
	}
}

// RegisterAll installs every loader kind bound to l.
func (l *Loader) RegisterAll(r *Registry) {
	r.Register(Definition{
		Kind: "file", Label: "Files",
		NewParams: func() any { return &FileParams{} },
		Load: func(ctx context.Context, params any) ([]dataframe.Plan, engine.LoadMetadata, error) {
			return l.LoadFile(ctx, *params.(*FileParams))
		},
	})
	r.Register(Definition{
		Kind: "sql", Label: "SQL Query",
		NewParams: func() any { return &SQLParams{} },
		Load: func(ctx context.Context, params any) ([]dataframe.Plan, engine.LoadMetadata, error) {
			return l.LoadSQL(ctx, *params.(*SQLParams))
		},
	})
	r.Register(Definition{
		Kind: "api", Label: "HTTP API",
		NewParams: func() any { return &APIParams{} },
		Load: func(ctx context.Context, params any) ([]dataframe.Plan, engine.LoadMetadata, error) {
			return l.LoadAPI(ctx, *params.(*APIParams))
		},
	})
	r.Register(Definition{
		Kind: "html", Label: "HTML Table",
		NewParams: func() any { return &HTMLParams{} },
		Load: func(ctx context.Context, params any) ([]dataframe.Plan, engine.LoadMetadata, error) {
			return l.LoadHTML(ctx, *params.(*HTMLParams))
		},
	})
}

// LoadFile resolves the path into files and builds one plan per file (per
// selected sheet for workbooks). Non-UTF-8 text files are converted into the
// staging area first.
func (l *Loader) LoadFile(ctx context.Context, p FileParams) ([]dataframe.Plan, engine.LoadMetadata, error) {
	files := p.Files
	if len(files) == 0 {
		resolved, err := l.Resolver.Resolve(p.Path, p.Filters, p.MaxFiles)
		if err != nil {
			return nil, engine.LoadMetadata{}, err
		}
		if len(resolved) == 1 {
			if info, err := os.Stat(resolved[0]); err == nil && info.IsDir() {
				resolved, err = pathresolve.ListDir(resolved[0])
				if err != nil {
					return nil, engine.LoadMetadata{}, err
				}
			}
		}
		files = resolved
	}
	if len(files) == 0 {
		return nil, engine.LoadMetadata{}, fmt.Errorf("no files matched %q", p.Path)
	}

	var plans []dataframe.Plan
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, engine.LoadMetadata{}, err
		}
		filePlans, err := l.plansForFile(ctx, file, p)
		if err != nil {
			return nil, engine.LoadMetadata{}, fmt.Errorf("load %s: %w", file, err)
		}
		if p.IncludeSourceInfo {
			for i, fp := range filePlans {
				filePlans[i] = withSourceInfo(fp, file)
			}
		}
		plans = append(plans, filePlans...)
	}

	return plans, engine.LoadMetadata{
		SourcePaths: files,
		PerFile:     p.ProcessIndividual,
		SourceInfo:  p.IncludeSourceInfo,
	}, nil
}

func (l *Loader) plansForFile(ctx context.Context, path string, p FileParams) ([]dataframe.Plan, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		return l.textPlan(path, ',')
	case ".tsv":
		return l.textPlan(path, '\t')
	case ".ndjson", ".jsonl":
		return []dataframe.Plan{dataframe.ScanNDJSON(path)}, nil
	case ".json":
		plan, err := l.jsonPlan(path)
		if err != nil {
			return nil, err
		}
		return []dataframe.Plan{plan}, nil
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return l.workbookPlans(ctx, path, p)
	default:
		return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
	}
}

func (l *Loader) textPlan(path string, comma rune) ([]dataframe.Plan, error) {
	utf8Path, err := l.Encodings.EnsureUTF8(path)
	if err != nil {
		return nil, err
	}
	return []dataframe.Plan{dataframe.ScanCSV(utf8Path, dataframe.ScanOptions{Comma: comma})}, nil
}

// withSourceInfo appends the provenance columns the UI offers per file.
func withSourceInfo(plan dataframe.Plan, path string) dataframe.Plan {
	plan = dataframe.WithColumn(plan, "_source_path", func(dataframe.RowView) (any, error) {
		return path, nil
	})
	return dataframe.WithColumn(plan, "_source_name", func(dataframe.RowView) (any, error) {
		return filepath.Base(path), nil
	})
}
