package types

import (
	"fmt"

	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq    CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt    CommonFilterOperator = "lt"
	CommonFilterOperatorLte   CommonFilterOperator = "lte"
	CommonFilterOperatorGt    CommonFilterOperator = "gt"
	CommonFilterOperatorGte   CommonFilterOperator = "gte"
	CommonFilterOperatorRange CommonFilterOperator = "range"
	CommonFilterOperatorIn    CommonFilterOperator = "in"
)

// arity is the number of values each operator needs; -1 means one or more.
var arity = map[CommonFilterOperator]int{
	CommonFilterOperatorEq:    1,
	CommonFilterOperatorNotEq: 1,
	CommonFilterOperatorLt:    1,
	CommonFilterOperatorLte:   1,
	CommonFilterOperatorGt:    1,
	CommonFilterOperatorGte:   1,
	CommonFilterOperatorRange: 2,
	CommonFilterOperatorIn:    -1,
}

// CommonFilter is a single column predicate sent by admin list and
// statistics requests.
type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
}

// Validate checks the operator, its value count and that Field is one of
// allowed. Field is used as a column name, so callers must always validate
// before building.
func (f *CommonFilter) Validate(allowed map[string]bool) error {
	if f == nil {
		return fmt.Errorf("empty filter")
	}
	if !allowed[f.Field] {
		return fmt.Errorf("unsupported filter field: %q", f.Field)
	}
	n, ok := arity[f.Operator]
	if !ok {
		return fmt.Errorf("unsupported filter operator: %q", f.Operator)
	}
	if (n < 0 && len(f.Values) == 0) || (n > 0 && len(f.Values) != n) {
		return fmt.Errorf("filter %s %s: wrong number of values (%d)", f.Field, f.Operator, len(f.Values))
	}
	return nil
}

// Build constructs a GORM expression. Invalid filters build nothing.
func (f *CommonFilter) Build(builder clause.Builder) {
	if len(f.Values) == 0 {
		return
	}
	col := clause.Column{Name: f.Field}
	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		clause.Eq{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			return
		}
		clause.And(clause.Gte{Column: col, Value: f.Values[0]}, clause.Lte{Column: col, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: col, Values: f.Values}.Build(builder)
	}
}
