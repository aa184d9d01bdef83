package bencode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
)

// Decoder errors.
var (
	ErrInvalidBencode = errors.New("invalid bencode")
	ErrUnexpectedEOF  = errors.New("unexpected EOF")
	ErrInvalidType    = errors.New("invalid type for bencode")
	ErrTrailingData   = errors.New("trailing data after root value")
)

// Kind identifies the type of a decoded bencode value.
type Kind int

const (
	KindInvalid Kind = iota
	KindInt
	KindBytes
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "integer"
	case KindBytes:
		return "byte string"
	case KindList:
		return "list"
	case KindDict:
		return "dictionary"
	default:
		return "invalid"
	}
}

// Value is a decoded bencode value. Start and End delimit the exact bytes
// the value was decoded from, so callers can hash sub-documents such as the
// info dictionary without re-encoding them.
type Value struct {
	Kind  Kind
	Int   int64
	Bytes []byte
	List  []*Value
	Dict  map[string]*Value
	Keys  []string // dictionary keys in input order
	Start int
	End   int
}

// Get returns the dictionary entry for key, or nil when v is not a
// dictionary or the key is absent.
func (v *Value) Get(key string) *Value {
	if v == nil || v.Kind != KindDict {
		return nil
	}

	return v.Dict[key]
}

// Raw returns the input bytes v was decoded from.
func (v *Value) Raw(data []byte) []byte {
	return data[v.Start:v.End]
}

// Decode parses exactly one bencode value spanning all of data.
func Decode(data []byte) (*Value, error) {
	d := &Decoder{data: data}

	val, err := d.decodeValue()
	if err != nil {
		return nil, err
	}

	if d.pos != len(data) {
		return nil, fmt.Errorf("%w at offset %d", ErrTrailingData, d.pos)
	}

	return val, nil
}

// Unmarshal decodes bencode data into v.
func Unmarshal(data []byte, v interface{}) error {
	return NewDecoder(bytes.NewReader(data)).Decode(v)
}

// Decoder decodes bencode data.
type Decoder struct {
	r    io.Reader
	data []byte
	pos  int
}

// NewDecoder creates a new decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode decodes bencode data into v.
func (d *Decoder) Decode(v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("bencode: Decode requires non-nil pointer")
	}

	if d.r != nil {
		data, err := io.ReadAll(d.r)
		if err != nil {
			return err
		}
		d.data, d.pos, d.r = data, 0, nil
	}

	val, err := d.decodeValue()
	if err != nil {
		return err
	}

	return d.unmarshalValue(val, rv.Elem())
}

func (d *Decoder) peek() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, ErrUnexpectedEOF
	}
	return d.data[d.pos], nil
}

// decodeValue decodes a single bencode value.
func (d *Decoder) decodeValue() (*Value, error) {
	b, err := d.peek()
	if err != nil {
		return nil, err
	}

	start := d.pos
	val := &Value{Start: start}

	switch b {
	case 'i':
		val.Kind = KindInt
		val.Int, err = d.decodeInt()
	case 'l':
		val.Kind = KindList
		val.List, err = d.decodeList()
	case 'd':
		val.Kind = KindDict
		val.Dict, val.Keys, err = d.decodeDict()
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		val.Kind = KindBytes
		val.Bytes, err = d.decodeString()
	default:
		return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrInvalidBencode, b, start)
	}

	if err != nil {
		return nil, err
	}

	val.End = d.pos
	return val, nil
}

// decodeInt decodes a bencode integer.
func (d *Decoder) decodeInt() (int64, error) {
	d.pos++ // 'i'

	end := bytes.IndexByte(d.data[d.pos:], 'e')
	if end < 0 {
		return 0, ErrUnexpectedEOF
	}

	numStr := d.data[d.pos : d.pos+end]
	d.pos += end + 1

	if len(numStr) == 0 {
		return 0, fmt.Errorf("%w: empty integer", ErrInvalidBencode)
	}

	// Check for invalid formats like i-0e or i03e
	if len(numStr) > 1 && numStr[0] == '0' {
		return 0, fmt.Errorf("%w: leading zeros in integer", ErrInvalidBencode)
	}
	if len(numStr) > 1 && numStr[0] == '-' && numStr[1] == '0' {
		return 0, fmt.Errorf("%w: negative zero", ErrInvalidBencode)
	}

	n, err := strconv.ParseInt(string(numStr), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidBencode, err)
	}

	return n, nil
}

// decodeString decodes a bencode string.
func (d *Decoder) decodeString() ([]byte, error) {
	colon := bytes.IndexByte(d.data[d.pos:], ':')
	if colon < 0 {
		return nil, ErrUnexpectedEOF
	}

	lenStr := d.data[d.pos : d.pos+colon]
	for _, b := range lenStr {
		if b < '0' || b > '9' {
			return nil, fmt.Errorf("%w: invalid string length", ErrInvalidBencode)
		}
	}
	if len(lenStr) > 1 && lenStr[0] == '0' {
		return nil, fmt.Errorf("%w: leading zeros in string length", ErrInvalidBencode)
	}

	length, err := strconv.ParseInt(string(lenStr), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBencode, err)
	}

	d.pos += colon + 1

	if length > int64(len(d.data)-d.pos) {
		return nil, ErrUnexpectedEOF
	}

	data := d.data[d.pos : d.pos+int(length)]
	d.pos += int(length)

	return data, nil
}

// decodeList decodes a bencode list.
func (d *Decoder) decodeList() ([]*Value, error) {
	d.pos++ // 'l'

	var list []*Value
	for {
		b, err := d.peek()
		if err != nil {
			return nil, err
		}

		if b == 'e' {
			d.pos++
			break
		}

		val, err := d.decodeValue()
		if err != nil {
			return nil, err
		}

		list = append(list, val)
	}

	return list, nil
}

// decodeDict decodes a bencode dictionary.
func (d *Decoder) decodeDict() (map[string]*Value, []string, error) {
	d.pos++ // 'd'

	dict := make(map[string]*Value)
	var keys []string

	for {
		b, err := d.peek()
		if err != nil {
			return nil, nil, err
		}

		if b == 'e' {
			d.pos++
			break
		}

		if b < '0' || b > '9' {
			return nil, nil, fmt.Errorf("%w: dictionary key must be a string at offset %d", ErrInvalidBencode, d.pos)
		}

		keyBytes, err := d.decodeString()
		if err != nil {
			return nil, nil, fmt.Errorf("decoding dict key: %w", err)
		}
		key := string(keyBytes)

		if len(keys) > 0 && key <= keys[len(keys)-1] {
			return nil, nil, fmt.Errorf("%w: dictionary keys not sorted", ErrInvalidBencode)
		}
		keys = append(keys, key)

		val, err := d.decodeValue()
		if err != nil {
			return nil, nil, fmt.Errorf("decoding dict value for key %q: %w", key, err)
		}

		dict[key] = val
	}

	return dict, keys, nil
}

// unmarshalValue assigns a decoded value to a reflect.Value.
func (d *Decoder) unmarshalValue(val *Value, rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}
		return d.unmarshalValue(val, rv.Elem())
	}

	switch val.Kind {
	case KindInt:
		return d.unmarshalInt(val.Int, rv)
	case KindBytes:
		return d.unmarshalBytes(val.Bytes, rv)
	case KindList:
		return d.unmarshalList(val.List, rv)
	case KindDict:
		return d.unmarshalDict(val, rv)
	default:
		return fmt.Errorf("%w: cannot unmarshal %s into %v", ErrInvalidType, val.Kind, rv.Type())
	}
}

// unmarshalInt assigns an int64 to appropriate types.
func (d *Decoder) unmarshalInt(val int64, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		rv.SetInt(val)
		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if val < 0 {
			return fmt.Errorf("%w: cannot unmarshal negative int to uint", ErrInvalidType)
		}
		rv.SetUint(uint64(val))
		return nil
	case reflect.Bool:
		rv.SetBool(val != 0)
		return nil
	case reflect.Interface:
		rv.Set(reflect.ValueOf(val))
		return nil
	default:
		return fmt.Errorf("%w: cannot unmarshal int into %v", ErrInvalidType, rv.Type())
	}
}

// unmarshalBytes assigns []byte to appropriate types.
func (d *Decoder) unmarshalBytes(val []byte, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.String:
		rv.SetString(string(val))
		return nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			rv.SetBytes(append([]byte(nil), val...))
			return nil
		}
		return fmt.Errorf("%w: cannot unmarshal bytes into %v", ErrInvalidType, rv.Type())
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			reflect.Copy(rv, reflect.ValueOf(val))
			return nil
		}
		return fmt.Errorf("%w: cannot unmarshal bytes into %v", ErrInvalidType, rv.Type())
	case reflect.Interface:
		rv.Set(reflect.ValueOf(append([]byte(nil), val...)))
		return nil
	default:
		return fmt.Errorf("%w: cannot unmarshal bytes into %v", ErrInvalidType, rv.Type())
	}
}

// unmarshalList assigns a list to appropriate types.
func (d *Decoder) unmarshalList(val []*Value, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Slice:
		slice := reflect.MakeSlice(rv.Type(), len(val), len(val))
		for i, v := range val {
			if err := d.unmarshalValue(v, slice.Index(i)); err != nil {
				return err
			}
		}
		rv.Set(slice)
		return nil
	case reflect.Interface:
		list := make([]interface{}, len(val))
		for i, v := range val {
			if err := d.unmarshalValue(v, reflect.ValueOf(&list[i]).Elem()); err != nil {
				return err
			}
		}
		rv.Set(reflect.ValueOf(list))
		return nil
	default:
		return fmt.Errorf("%w: cannot unmarshal list into %v", ErrInvalidType, rv.Type())
	}
}

// unmarshalDict assigns a dictionary to appropriate types.
func (d *Decoder) unmarshalDict(val *Value, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: map key must be string, got %v", ErrInvalidType, rv.Type().Key())
		}

		mapVal := reflect.MakeMap(rv.Type())
		for _, k := range val.Keys {
			elemVal := reflect.New(rv.Type().Elem()).Elem()
			if err := d.unmarshalValue(val.Dict[k], elemVal); err != nil {
				return err
			}
			mapVal.SetMapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()), elemVal)
		}
		rv.Set(mapVal)
		return nil

	case reflect.Struct:
		return d.unmarshalStruct(val.Dict, rv)

	case reflect.Interface:
		m := make(map[string]interface{}, len(val.Keys))
		for _, k := range val.Keys {
			var elem interface{}
			if err := d.unmarshalValue(val.Dict[k], reflect.ValueOf(&elem).Elem()); err != nil {
				return err
			}
			m[k] = elem
		}
		rv.Set(reflect.ValueOf(m))
		return nil

	default:
		return fmt.Errorf("%w: cannot unmarshal dict into %v", ErrInvalidType, rv.Type())
	}
}

// unmarshalStruct assigns map values to struct fields.
func (d *Decoder) unmarshalStruct(val map[string]*Value, rv reflect.Value) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" { // unexported
			continue
		}

		tag := field.Tag.Get("bencode")
		if tag == "-" {
			continue
		}
		if idx := strings.IndexByte(tag, ','); idx != -1 {
			tag = tag[:idx]
		}

		key := tag
		if key == "" {
			key = strings.ToLower(field.Name[:1]) + field.Name[1:]
		}

		if v, ok := val[key]; ok {
			if err := d.unmarshalValue(v, rv.Field(i)); err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
		}
	}

	return nil
}
