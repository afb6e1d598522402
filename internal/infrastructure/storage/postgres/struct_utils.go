package postgres

import (
	"reflect"
	"sync"
)

// ExtractDBColumns returns the "db" tag names of T in field order,
// descending into embedded structs. Fields tagged "-" or untagged are
// skipped. Repositories call it once to build their column lists.
func ExtractDBColumns[T any]() []string {
	var zero T
	meta := metadataFor(reflect.TypeOf(zero))
	cols := make([]string, len(meta.fields))
	for i, f := range meta.fields {
		cols[i] = f.column
	}
	return cols
}

type fieldInfo struct {
	index  []int
	column string
}

type typeMetadata struct {
	fields []fieldInfo
}

var typeCache sync.Map // map[reflect.Type]*typeMetadata

func metadataFor(t reflect.Type) *typeMetadata {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := typeCache.Load(t); ok {
		return cached.(*typeMetadata)
	}

	meta := &typeMetadata{}
	if t.Kind() == reflect.Struct {
		collectFields(t, nil, meta)
	}
	typeCache.Store(t, meta)
	return meta
}

func collectFields(t reflect.Type, prefix []int, meta *typeMetadata) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int(nil), prefix...), i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collectFields(field.Type, index, meta)
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		meta.fields = append(meta.fields, fieldInfo{index: index, column: tag})
	}
}

// StructToMap converts a struct to a column map using "db" tags.
func StructToMap(v any) map[string]any {
	rv := reflect.Indirect(reflect.ValueOf(v))
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := metadataFor(rv.Type())
	res := make(map[string]any, len(meta.fields))
	for _, f := range meta.fields {
		res[f.column] = rv.FieldByIndex(f.index).Interface()
	}
	return res
}

// RowValues returns the values of v for columns, in that order. Unknown
// columns yield nil.
func RowValues(v any, columns []string) []any {
	m := StructToMap(v)
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = m[c]
	}
	return out
}
