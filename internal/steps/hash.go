package steps

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"dataprep/internal/dataframe"
)

type rowHashParams struct {
	Name string   `json:"name"`
	Cols []string `json:"cols"`
}

// row_hash adds a deterministic SHA-256 key column. Fields are concatenated
// with the ASCII unit separator; null encodes as a NUL byte so missing
// differs from empty string.
func registerHashStep(r *Registry) {
	r.Register(Definition{
		Type: "row_hash", Label: "Row Hash", Group: "Columns",
		NewParams: func() any { return &rowHashParams{} },
		Apply: func(ctx context.Context, plan dataframe.Plan, params any, _ *Context) (dataframe.Plan, error) {
			p := params.(*rowHashParams)
			name := p.Name
			if name == "" {
				name = "row_hash"
			}
			cols := p.Cols
			if len(cols) == 0 {
				sc, err := plan.Schema(ctx)
				if err != nil {
					return nil, err
				}
				cols = sc
			}
			return dataframe.WithColumn(plan, name, func(r dataframe.RowView) (any, error) {
				var b strings.Builder
				b.Grow(len(cols) * 20)
				for i, c := range cols {
					if i > 0 {
						b.WriteString("\x1f")
					}
					v := r.Get(c)
					if v == nil {
						b.WriteByte('\x00')
						continue
					}
					b.WriteString(dataframe.ValueString(v))
				}
				sum := sha256.Sum256([]byte(b.String()))
				return hex.EncodeToString(sum[:]), nil
			}), nil
		},
	})
}
