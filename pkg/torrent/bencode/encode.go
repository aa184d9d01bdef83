package bencode

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Marshal returns the bencode encoding of v.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encoder encodes values to bencode format.
type Encoder struct {
	w   io.Writer
	buf []byte
}

// NewEncoder creates a new encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the bencode encoding of v to the stream.
func (e *Encoder) Encode(v interface{}) error {
	if val, ok := v.(*Value); ok {
		return e.encodeTree(val)
	}
	return e.encodeValue(reflect.ValueOf(v))
}

// encodeTree re-encodes a decoded Value. Dictionary keys are written in
// sorted order, so a tree decoded from canonical input encodes byte-identically.
func (e *Encoder) encodeTree(v *Value) error {
	switch v.Kind {
	case KindInt:
		return e.encodeInt(v.Int)
	case KindBytes:
		return e.encodeBytes(v.Bytes)
	case KindList:
		if err := e.write("l"); err != nil {
			return err
		}
		for _, item := range v.List {
			if err := e.encodeTree(item); err != nil {
				return err
			}
		}
		return e.write("e")
	case KindDict:
		keys := append([]string(nil), v.Keys...)
		sort.Strings(keys)
		if err := e.write("d"); err != nil {
			return err
		}
		for _, k := range keys {
			if err := e.encodeBytes([]byte(k)); err != nil {
				return err
			}
			if err := e.encodeTree(v.Dict[k]); err != nil {
				return err
			}
		}
		return e.write("e")
	default:
		return fmt.Errorf("%w: cannot encode %s value", ErrInvalidType, v.Kind)
	}
}

// encodeValue encodes a reflect.Value.
func (e *Encoder) encodeValue(v reflect.Value) error {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return e.encodeBytes(nil)
		}
		v = v.Elem()
	}

	if !v.IsValid() {
		return e.encodeBytes(nil)
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.encodeInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return e.encodeInt(int64(v.Uint()))
	case reflect.Bool:
		if v.Bool() {
			return e.encodeInt(1)
		}
		return e.encodeInt(0)
	case reflect.String:
		return e.encodeBytes([]byte(v.String()))
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			if v.Kind() == reflect.Array {
				b := make([]byte, v.Len())
				reflect.Copy(reflect.ValueOf(b), v)
				return e.encodeBytes(b)
			}
			return e.encodeBytes(v.Bytes())
		}
		return e.encodeList(v)
	case reflect.Map:
		return e.encodeMap(v)
	case reflect.Struct:
		return e.encodeStruct(v)
	default:
		return fmt.Errorf("bencode: unsupported type %v", v.Type())
	}
}

func (e *Encoder) write(s string) error {
	_, err := io.WriteString(e.w, s)
	return err
}

func (e *Encoder) encodeInt(i int64) error {
	e.buf = append(e.buf[:0], 'i')
	e.buf = strconv.AppendInt(e.buf, i, 10)
	e.buf = append(e.buf, 'e')
	_, err := e.w.Write(e.buf)
	return err
}

func (e *Encoder) encodeBytes(b []byte) error {
	e.buf = strconv.AppendInt(e.buf[:0], int64(len(b)), 10)
	e.buf = append(e.buf, ':')
	if _, err := e.w.Write(e.buf); err != nil {
		return err
	}
	_, err := e.w.Write(b)
	return err
}

func (e *Encoder) encodeList(v reflect.Value) error {
	if err := e.write("l"); err != nil {
		return err
	}

	for i := 0; i < v.Len(); i++ {
		if err := e.encodeValue(v.Index(i)); err != nil {
			return err
		}
	}

	return e.write("e")
}

func (e *Encoder) encodeMap(v reflect.Value) error {
	if v.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("bencode: map key must be string, got %v", v.Type().Key())
	}

	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })

	if err := e.write("d"); err != nil {
		return err
	}

	for _, k := range keys {
		if err := e.encodeBytes([]byte(k.String())); err != nil {
			return err
		}
		if err := e.encodeValue(v.MapIndex(k)); err != nil {
			return err
		}
	}

	return e.write("e")
}

// encodeStruct encodes a struct as a dictionary keyed by the bencode tag,
// or the field name with a lowercased first letter.
func (e *Encoder) encodeStruct(v reflect.Value) error {
	type field struct {
		key   string
		value reflect.Value
	}

	var fields []field
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}

		tag := f.Tag.Get("bencode")
		if tag == "-" {
			continue
		}

		omitempty := false
		if name, opts, ok := strings.Cut(tag, ","); ok {
			tag, omitempty = name, opts == "omitempty"
		}

		fv := v.Field(i)
		if omitempty && fv.IsZero() {
			continue
		}

		key := tag
		if key == "" {
			key = strings.ToLower(f.Name[:1]) + f.Name[1:]
		}

		fields = append(fields, field{key: key, value: fv})
	}

	sort.Slice(fields, func(i, j int) bool {
		return fields[i].key < fields[j].key
	})

	if err := e.write("d"); err != nil {
		return err
	}

	for _, f := range fields {
		if err := e.encodeBytes([]byte(f.key)); err != nil {
			return err
		}
		if err := e.encodeValue(f.value); err != nil {
			return err
		}
	}

	return e.write("e")
}
