package events

import (
	"strings"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ajitpratap0/histfill/pkg/config"
	"github.com/ajitpratap0/histfill/pkg/errors"
)

var primitives = map[string]arrow.DataType{
	"bool":         arrow.FixedWidthTypes.Boolean,
	"boolean":      arrow.FixedWidthTypes.Boolean,
	"int8":         arrow.PrimitiveTypes.Int8,
	"int16":        arrow.PrimitiveTypes.Int16,
	"int32":        arrow.PrimitiveTypes.Int32,
	"int64":        arrow.PrimitiveTypes.Int64,
	"uint8":        arrow.PrimitiveTypes.Uint8,
	"uint16":       arrow.PrimitiveTypes.Uint16,
	"uint32":       arrow.PrimitiveTypes.Uint32,
	"uint64":       arrow.PrimitiveTypes.Uint64,
	"float32":      arrow.PrimitiveTypes.Float32,
	"float64":      arrow.PrimitiveTypes.Float64,
	"string":       arrow.BinaryTypes.String,
	"utf8":         arrow.BinaryTypes.String,
	"large_string": arrow.BinaryTypes.LargeString,
}

// Schema builds an arrow schema from field declarations. Every field is
// nullable.
func Schema(fields []config.FieldConfig) (*arrow.Schema, error) {
	out := make([]arrow.Field, len(fields))
	for i, f := range fields {
		if f.Name == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "schema field %d has no name", i)
		}
		dt, err := ParseType(f.Type)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid schema field").WithDetail("field", f.Name)
		}
		out[i] = arrow.Field{Name: f.Name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(out, nil), nil
}

// ParseType parses a type expression such as float64, list<int32> or
// list<struct<pt:float64,eta:float64>>
func ParseType(expr string) (arrow.DataType, error) {
	s := strings.TrimSpace(expr)
	if dt, ok := primitives[strings.ToLower(s)]; ok {
		return dt, nil
	}

	open := strings.IndexByte(s, '<')
	if open < 0 || !strings.HasSuffix(s, ">") {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown type %q", expr)
	}
	head := strings.ToLower(strings.TrimSpace(s[:open]))
	body := s[open+1 : len(s)-1]

	switch head {
	case "list", "large_list":
		elem, err := ParseType(body)
		if err != nil {
			return nil, err
		}
		if head == "large_list" {
			return arrow.LargeListOf(elem), nil
		}
		return arrow.ListOf(elem), nil

	case "struct":
		parts, err := splitTopLevel(body)
		if err != nil {
			return nil, err
		}
		fields := make([]arrow.Field, 0, len(parts))
		for _, p := range parts {
			colon := strings.IndexByte(p, ':')
			if colon <= 0 {
				return nil, errors.Newf(errors.ErrorTypeConfig, "struct member %q needs name:type", p)
			}
			dt, err := ParseType(p[colon+1:])
			if err != nil {
				return nil, err
			}
			fields = append(fields, arrow.Field{Name: strings.TrimSpace(p[:colon]), Type: dt, Nullable: true})
		}
		return arrow.StructOf(fields...), nil
	}
	return nil, errors.Newf(errors.ErrorTypeConfig, "unknown type %q", expr)
}

// splitTopLevel splits s at commas outside angle brackets
func splitTopLevel(s string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return nil, errors.Newf(errors.ErrorTypeConfig, "unbalanced brackets in %q", s)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "unbalanced brackets in %q", s)
	}
	if last := strings.TrimSpace(s[start:]); last != "" {
		parts = append(parts, last)
	}
	if len(parts) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "struct needs at least one member")
	}
	return parts, nil
}
