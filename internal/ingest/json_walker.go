package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
)

// JsonWalker selects records and record fields with JSONPath.
type JsonWalker struct {
	cache map[string]jp.Expr
}

func NewJsonWalker() *JsonWalker {
	return &JsonWalker{cache: map[string]jp.Expr{}}
}

func (w *JsonWalker) compile(selector string) (jp.Expr, error) {
	if x, ok := w.cache[selector]; ok {
		return x, nil
	}
	path := selector
	if !strings.HasPrefix(path, "$") {
		path = "$." + path
	}
	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	w.cache[selector] = x
	return x, nil
}

// Query returns every match of selector under root.
func (w *JsonWalker) Query(root any, selector string) ([]any, error) {
	x, err := w.compile(selector)
	if err != nil {
		return nil, err
	}
	return x.Get(root), nil
}

// Field returns the first match of selector under record as a string, ""
// when absent. A bare field name is taken relative to the record.
func (w *JsonWalker) Field(record any, selector string) (string, error) {
	x, err := w.compile(selector)
	if err != nil {
		return "", err
	}
	return scalarString(x.First(record)), nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
