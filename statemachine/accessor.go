package statemachine

import (
	"fmt"
	"reflect"
	"strings"
)

// Accessor reads and writes the attribute a machine stores its state in.
type Accessor interface {
	Read(obj any, attribute string) (any, error)
	Write(obj any, attribute string, value any) error
}

// AttributeReader lets an object expose attributes without reflection.
type AttributeReader interface {
	ReadAttribute(name string) (any, bool)
}

// AttributeWriter lets an object store attributes without reflection.
type AttributeWriter interface {
	WriteAttribute(name string, value any) error
}

// FieldAccessor is the default Accessor. Objects implementing AttributeReader
// or AttributeWriter are used directly; otherwise the attribute is resolved to
// a struct field tagged `statemachine:"<attribute>"`, or to the field whose name
// matches the attribute ignoring case and underscores.
type FieldAccessor struct{}

// Read returns the field named by attribute.
func (FieldAccessor) Read(obj any, attribute string) (any, error) {
	if reader, ok := obj.(AttributeReader); ok {
		value, found := reader.ReadAttribute(attribute)
		if !found {
			return nil, fmt.Errorf("%w: %s", ErrAttributeNotFound, attribute)
		}

		return value, nil
	}

	field, err := lookupField(obj, attribute, false)
	if err != nil {
		return nil, err
	}

	return field.Interface(), nil
}

// Write sets the field named by attribute, converting value to the field type.
func (FieldAccessor) Write(obj any, attribute string, value any) error {
	if writer, ok := obj.(AttributeWriter); ok {
		return writer.WriteAttribute(attribute, value)
	}

	field, err := lookupField(obj, attribute, true)
	if err != nil {
		return err
	}

	if value == nil {
		field.SetZero()

		return nil
	}

	v := reflect.ValueOf(value)

	switch {
	case v.Type().AssignableTo(field.Type()):
		field.Set(v)
	case v.Kind() == field.Kind() && v.Type().ConvertibleTo(field.Type()):
		field.Set(v.Convert(field.Type()))
	default:
		return fmt.Errorf("%w: cannot store %T in %s (%s)", ErrAttributeType, value, attribute, field.Type())
	}

	return nil
}

func lookupField(obj any, attribute string, settable bool) (reflect.Value, error) {
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("%w: %s on nil %T", ErrAttributeNotFound, attribute, obj)
		}

		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("%w: %s on %T", ErrAttributeNotFound, attribute, obj)
	}

	typ := v.Type()
	folded := strings.ReplaceAll(attribute, "_", "")

	index := -1

	for i := range typ.NumField() {
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}

		if tag, ok := sf.Tag.Lookup("statemachine"); ok {
			if tag == attribute {
				index = i

				break
			}

			continue
		}

		if index < 0 && strings.EqualFold(sf.Name, folded) {
			index = i
		}
	}

	if index < 0 {
		return reflect.Value{}, fmt.Errorf("%w: %s on %T", ErrAttributeNotFound, attribute, obj)
	}

	field := v.Field(index)
	if settable && !field.CanSet() {
		return reflect.Value{}, fmt.Errorf("%w: %s on %T is not settable (pass a pointer)", ErrAttributeNotFound, attribute, obj)
	}

	return field, nil
}
