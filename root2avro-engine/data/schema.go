package data

import (
	"errors"
	"fmt"

	"github.com/hamba/avro/v2"

	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

// ErrInvalidName is returned when Avro rejects a record or field name.
var ErrInvalidName = errors.New("invalid avro name")

// MapperConfig controls schema construction.
type MapperConfig struct {
	// Name overrides the record name, which defaults to the tree name.
	Name string
	// Namespace is the Avro namespace of the record.
	Namespace string
	// KeepLengthBranches keeps length branches as plain fields.
	KeepLengthBranches bool
}

// FieldPlan is the mapping decision for one output field.
type FieldPlan struct {
	Name   string
	Type   tree.Type
	Schema avro.Schema
}

// Plan is the immutable result of mapping a branch set. It is shared by all
// projections of the same tree.
type Plan struct {
	Schema   *avro.RecordSchema
	Fields   []FieldPlan
	Resolved *tree.Resolved
}

// FieldNames returns the output field names in schema order.
func (p *Plan) FieldNames() []string {
	names := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		names[i] = f.Name
	}
	return names
}

// Mapper translates branch declarations into an Avro record schema.
type Mapper struct {
	config MapperConfig
}

// NewMapper creates a Mapper with the given configuration.
func NewMapper(config MapperConfig) *Mapper {
	return &Mapper{config: config}
}

// Map builds the schema and projection plan for a tree. It fails as a whole
// if any branch cannot be mapped.
func (m *Mapper) Map(treeName string, decls []tree.Declaration) (*Plan, error) {
	resolved, err := tree.Resolve(decls)
	if err != nil {
		return nil, err
	}

	name := treeName
	if m.config.Name != "" {
		name = m.config.Name
	}

	plan := &Plan{Resolved: resolved}
	fields := make([]*avro.Field, 0, len(decls))

	for _, d := range resolved.Decls {
		if resolved.Counters[d.Name] && !m.config.KeepLengthBranches {
			continue
		}

		schema, err := AvroType(d.Type)
		if err != nil {
			return nil, fmt.Errorf("branch %q: %w", d.Name, err)
		}

		field, err := avro.NewField(d.Name, schema)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidName, d.Name, err)
		}
		fields = append(fields, field)
		plan.Fields = append(plan.Fields, FieldPlan{Name: d.Name, Type: d.Type, Schema: schema})
	}

	record, err := avro.NewRecordSchema(name, m.config.Namespace, fields)
	if err != nil {
		return nil, fmt.Errorf("%w: record %q: %v", ErrInvalidName, name, err)
	}
	plan.Schema = record
	return plan, nil
}

// AvroType returns the Avro schema of a branch type. Array capacities are
// not part of the schema, only the nesting depth and the leaf type.
func AvroType(t tree.Type) (avro.Schema, error) {
	switch v := t.(type) {
	case tree.Scalar:
		return primitiveSchema(v.Kind)
	case tree.String:
		return avro.NewPrimitiveSchema(avro.String, nil), nil
	case tree.FixedArray:
		return arrayOf(v.Elem)
	case tree.VariableArray:
		return arrayOf(v.Elem)
	case tree.Vector:
		return arrayOf(v.Elem)
	default:
		return nil, fmt.Errorf("%w: %T", tree.ErrUnsupportedType, t)
	}
}

func arrayOf(elem tree.Type) (avro.Schema, error) {
	items, err := AvroType(elem)
	if err != nil {
		return nil, err
	}
	return avro.NewArraySchema(items), nil
}

// primitiveSchema widens narrow and unsigned integers to a type that holds
// every value exactly.
func primitiveSchema(k tree.Kind) (avro.Schema, error) {
	var typ avro.Type
	switch k {
	case tree.KindBool:
		typ = avro.Boolean
	case tree.KindInt8, tree.KindUInt8, tree.KindInt16, tree.KindUInt16, tree.KindInt32:
		typ = avro.Int
	case tree.KindUInt32, tree.KindInt64, tree.KindUInt64:
		typ = avro.Long
	case tree.KindFloat32:
		typ = avro.Float
	case tree.KindFloat64:
		typ = avro.Double
	default:
		return nil, fmt.Errorf("%w: kind %s", tree.ErrUnsupportedType, k)
	}
	return avro.NewPrimitiveSchema(typ, nil), nil
}
