// Package docstore holds the query semantics shared by every DocumentStore
// adapter: field validation, opaque offset cursors and in-process evaluation.
package docstore

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/brand-soul/internal/core/domain"
	"github.com/kirillkom/brand-soul/internal/core/ports"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

var fieldPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

func ValidateQuery(q ports.Query) error {
	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return domain.WrapError(domain.ErrInvalidInput, "validate query", fmt.Errorf("bad filter field %q", f.Field))
		}
		if f.Op != ports.OpEqual && f.Op != ports.OpIn {
			return domain.WrapError(domain.ErrInvalidInput, "validate query", fmt.Errorf("unsupported operator %q", f.Op))
		}
	}
	for _, o := range q.OrderBy {
		if !fieldPattern.MatchString(o.Field) {
			return domain.WrapError(domain.ErrInvalidInput, "validate query", fmt.Errorf("bad order field %q", o.Field))
		}
	}
	return nil
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte("o:" + strconv.Itoa(offset)))
}

func DecodeCursor(cursor string) (int, error) {
	if cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil || !bytes.HasPrefix(raw, []byte("o:")) {
		return 0, domain.WrapError(domain.ErrInvalidInput, "decode cursor", errors.New("malformed cursor"))
	}
	offset, err := strconv.Atoi(string(raw[2:]))
	if err != nil || offset < 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "decode cursor", errors.New("malformed cursor"))
	}
	return offset, nil
}

// Evaluate filters, orders and pages records in process. Records are ordered
// by the query's OrderBy fields, then by id.
func Evaluate(records []ports.Record, q ports.Query) (ports.Page, error) {
	if err := ValidateQuery(q); err != nil {
		return ports.Page{}, err
	}
	offset, err := DecodeCursor(q.Cursor)
	if err != nil {
		return ports.Page{}, err
	}
	limit := NormalizeLimit(q.Limit)

	filters := make([]normalizedFilter, 0, len(q.Filters))
	for _, f := range q.Filters {
		nf, err := normalizeFilter(f)
		if err != nil {
			return ports.Page{}, err
		}
		filters = append(filters, nf)
	}

	type candidate struct {
		record ports.Record
		fields map[string]any
	}
	matched := make([]candidate, 0, len(records))
	for _, rec := range records {
		fields, err := decodeFields(rec.Data)
		if err != nil {
			return ports.Page{}, fmt.Errorf("decode record %s: %w", rec.ID, err)
		}
		if !matchAll(fields, filters) {
			continue
		}
		matched = append(matched, candidate{record: rec, fields: fields})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		for _, o := range q.OrderBy {
			c := compareValues(matched[i].fields[o.Field], matched[j].fields[o.Field])
			if c == 0 {
				continue
			}
			if o.Desc {
				return c > 0
			}
			return c < 0
		}
		return matched[i].record.ID < matched[j].record.ID
	})

	page := ports.Page{Records: []ports.Record{}}
	if offset >= len(matched) {
		return page, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	for _, c := range matched[offset:end] {
		page.Records = append(page.Records, c.record)
	}
	if end < len(matched) {
		page.NextCursor = EncodeCursor(end)
	}
	return page, nil
}

type normalizedFilter struct {
	field  string
	values []any
}

func normalizeFilter(f ports.Filter) (normalizedFilter, error) {
	raw, err := json.Marshal(f.Value)
	if err != nil {
		return normalizedFilter{}, domain.WrapError(domain.ErrInvalidInput, "encode filter value", err)
	}
	value, err := decodeValue(raw)
	if err != nil {
		return normalizedFilter{}, err
	}
	if f.Op == ports.OpIn {
		list, ok := value.([]any)
		if !ok {
			return normalizedFilter{}, domain.WrapError(domain.ErrInvalidInput, "normalize filter", fmt.Errorf("%q needs a list value", f.Field))
		}
		return normalizedFilter{field: f.Field, values: list}, nil
	}
	return normalizedFilter{field: f.Field, values: []any{value}}, nil
}

func matchAll(fields map[string]any, filters []normalizedFilter) bool {
	for _, f := range filters {
		actual, ok := fields[f.field]
		if !ok {
			return false
		}
		found := false
		for _, want := range f.values {
			if compareValues(actual, want) == 0 {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func decodeFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func decodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode filter value", err)
	}
	return v, nil
}

// compareValues orders JSON scalars: null < bool < number < string; composite
// values compare by their encoding.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case json.Number:
		return compareNumbers(av, b.(json.Number))
	case string:
		return strings.Compare(av, b.(string))
	default:
		ea, _ := json.Marshal(a)
		eb, _ := json.Marshal(b)
		return bytes.Compare(ea, eb)
	}
}

func compareNumbers(a, b json.Number) int {
	if ai, err := a.Int64(); err == nil {
		if bi, err := b.Int64(); err == nil {
			switch {
			case ai < bi:
				return -1
			case ai > bi:
				return 1
			default:
				return 0
			}
		}
	}
	af, _ := a.Float64()
	bf, _ := b.Float64()
	switch {
	case af < bf:
		return -1
	case af > bf:
		return 1
	default:
		return 0
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case json.Number:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}
