package dataframe

import (
	"context"
	"fmt"
	"strings"
)

// Join kinds.
const (
	JoinInner = "inner"
	JoinLeft  = "left"
)

// Join hash-joins two plans on equal-length key column lists. Output keeps
// every left column; right columns except the keys follow, suffixed "_right"
// on a name clash. Null keys never match; a left join keeps the row with
// nulls on the right side.
func Join(left, right Plan, leftOn, rightOn []string, how string) Plan {
	return &joinPlan{left: left, right: right, leftOn: leftOn, rightOn: rightOn, how: how}
}

type joinPlan struct {
	left, right    Plan
	leftOn, rightOn []string
	how            string
}

func (p *joinPlan) outCols(leftCols, rightCols []string) ([]string, []string) {
	rightKey := make(map[string]struct{}, len(p.rightOn))
	for _, c := range p.rightOn {
		rightKey[c] = struct{}{}
	}
	taken := make(map[string]struct{}, len(leftCols))
	for _, c := range leftCols {
		taken[c] = struct{}{}
	}

	out := append([]string(nil), leftCols...)
	var carried []string
	for _, c := range rightCols {
		if _, ok := rightKey[c]; ok {
			continue
		}
		name := c
		if _, clash := taken[name]; clash {
			name = c + "_right"
		}
		out = append(out, name)
		carried = append(carried, c)
	}
	return out, carried
}

func (p *joinPlan) Schema(ctx context.Context) ([]string, error) {
	lc, err := p.left.Schema(ctx)
	if err != nil {
		return nil, err
	}
	rc, err := p.right.Schema(ctx)
	if err != nil {
		return nil, err
	}
	cols, _ := p.outCols(lc, rc)
	return cols, nil
}

func (p *joinPlan) Collect(ctx context.Context) (*Frame, error) {
	if len(p.leftOn) == 0 || len(p.leftOn) != len(p.rightOn) {
		return nil, fmt.Errorf("join: key lists must be non-empty and equal length")
	}
	switch p.how {
	case JoinInner, JoinLeft:
	default:
		return nil, fmt.Errorf("join: unsupported kind %q", p.how)
	}

	lf, err := p.left.Collect(ctx)
	if err != nil {
		return nil, err
	}
	rf, err := p.right.Collect(ctx)
	if err != nil {
		return nil, err
	}
	if missing := missingColumn(lf.Columns(), p.leftOn); missing != "" {
		return nil, &UnknownColumnError{Column: missing}
	}
	if missing := missingColumn(rf.Columns(), p.rightOn); missing != "" {
		return nil, &UnknownColumnError{Column: missing}
	}

	byKey := make(map[string][]int, rf.NumRows())
	for i := 0; i < rf.NumRows(); i++ {
		k, ok := joinKey(rf, i, p.rightOn)
		if !ok {
			continue
		}
		byKey[k] = append(byKey[k], i)
	}

	cols, carried := p.outCols(lf.Columns(), rf.Columns())
	out := NewFrame(cols)
	row := make([]any, len(cols))

	emit := func(li, ri int) {
		copy(row, lf.Row(li))
		for j, c := range carried {
			if ri < 0 {
				row[len(lf.Columns())+j] = nil
			} else {
				row[len(lf.Columns())+j], _ = rf.Value(ri, c)
			}
		}
		out.AppendRow(row)
	}

	for i := 0; i < lf.NumRows(); i++ {
		k, ok := joinKey(lf, i, p.leftOn)
		var matches []int
		if ok {
			matches = byKey[k]
		}
		if len(matches) == 0 {
			if p.how == JoinLeft {
				emit(i, -1)
			}
			continue
		}
		for _, ri := range matches {
			emit(i, ri)
		}
	}
	return out, nil
}

// joinKey is rowKey minus null keys: ok is false when any key cell is null.
func joinKey(f *Frame, row int, cols []string) (string, bool) {
	var b strings.Builder
	for _, c := range cols {
		v, _ := f.Value(row, c)
		if v == nil {
			return "", false
		}
		b.WriteString(ValueString(v))
		b.WriteString("\x1f")
	}
	return b.String(), true
}

// Concat diagonally concatenates plans: the output schema is the union of
// input schemas in first-seen order, missing cells are null.
func Concat(plans []Plan) Plan { return &concatPlan{plans: plans} }

type concatPlan struct {
	plans []Plan
}

func (p *concatPlan) Schema(ctx context.Context) ([]string, error) {
	var cols []string
	seen := make(map[string]struct{})
	for _, pl := range p.plans {
		sc, err := pl.Schema(ctx)
		if err != nil {
			return nil, err
		}
		for _, c := range sc {
			if _, ok := seen[c]; !ok {
				seen[c] = struct{}{}
				cols = append(cols, c)
			}
		}
	}
	return cols, nil
}

func (p *concatPlan) Collect(ctx context.Context) (*Frame, error) {
	return p.collectN(ctx, -1)
}

func (p *concatPlan) collectN(ctx context.Context, n int) (*Frame, error) {
	cols, err := p.Schema(ctx)
	if err != nil {
		return nil, err
	}
	out := NewFrame(cols)
	row := make([]any, len(cols))
	for _, pl := range p.plans {
		if n >= 0 && out.NumRows() >= n {
			break
		}
		remain := -1
		if n >= 0 {
			remain = n - out.NumRows()
		}
		f, err := collectUpTo(ctx, pl, remain)
		if err != nil {
			return nil, err
		}
		for i := 0; i < f.NumRows(); i++ {
			for j, c := range cols {
				if v, ok := f.Value(i, c); ok {
					row[j] = v
				} else {
					row[j] = nil
				}
			}
			out.AppendRow(row)
		}
	}
	return out, nil
}
