package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// maxSegmentLen is the longest a single serialized segment may be before it
// is replaced by its xxhash digest. Filter payloads can be arbitrarily large;
// keys cannot.
const maxSegmentLen = 48

// Key is the composite identifier addressing one cached result set: the
// entity being read, the acting user it is scoped to, the logical operation,
// and the filter parameters.
type Key struct {
	Entity  string
	ActorID string
	Op      string
	Params  []any
}

// NewKey builds a Key. The entity name is normalized to snake_case so
// reflected or user-supplied names cannot break the prefix layout.
func NewKey(entity, actorID, op string, params ...any) Key {
	return Key{
		Entity:  toSnake(entity),
		ActorID: actorID,
		Op:      op,
		Params:  params,
	}
}

// Serialize renders the key as entity::actor::op::params... using the given
// serializer for the parameter segment.
func (k Key) Serialize(s KeySerializer) string {
	head := k.Entity + KeySeparator + k.ActorID
	if len(k.Params) == 0 {
		return head + KeySeparator + k.Op
	}
	return head + KeySeparator + s.SerializeKey(k.Op, k.Params...)
}

// Prefix returns the entity+actor prefix of the key, the unit of
// invalidation used by mutations and change subscriptions.
func (k Key) Prefix() string {
	return EntityPrefix(k.Entity, k.ActorID)
}

// EntityPrefix addresses every cached result for one entity scoped to one
// acting user.
func EntityPrefix(entity, actorID string) string {
	return toSnake(entity) + KeySeparator + actorID + KeySeparator
}

// defaultKeySerializer implements KeySerializer using reflection-based
// serialization. It produces deterministic output across runs and compacts
// oversized segments to an xxhash digest.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey builds a key segment from a method name and args.
func (s *defaultKeySerializer) SerializeKey(method string, args ...any) string {
	if len(args) == 0 {
		return method
	}

	parts := make([]string, 0, len(args)+1)
	parts = append(parts, method)

	for _, arg := range args {
		parts = append(parts, compact(s.serializeValue(arg)))
	}

	return strings.Join(parts, KeySeparator)
}

// compact keeps short segments readable and hashes everything else. It also
// strips any separator sequence that survived serialization, since a
// separator inside a segment would corrupt prefix matching.
func compact(segment string) string {
	if strings.Contains(segment, KeySeparator) {
		segment = strings.ReplaceAll(segment, KeySeparator, ":")
	}
	if len(segment) <= maxSegmentLen {
		return segment
	}
	return fmt.Sprintf("x%016x", xxhash.Sum64String(segment))
}

func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return "nil"
	}

	rv := reflect.ValueOf(v)
	rt := reflect.TypeOf(v)

	switch rt.Kind() {
	case reflect.Func:
		// Stable only within a single process lifetime.
		return fmt.Sprintf("func:%p", v)

	case reflect.Ptr:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())

	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return s.serializeList("slice", rv)

	case reflect.Array:
		return s.serializeList("array", rv)

	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)

	case reflect.Struct:
		return s.serializeStruct(rv, rt)

	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

func (s *defaultKeySerializer) serializeList(kind string, rv reflect.Value) string {
	length := rv.Len()
	parts := make([]string, length)

	for i := 0; i < length; i++ {
		parts[i] = s.serializeValue(rv.Index(i).Interface())
	}

	return fmt.Sprintf("%s[%d]:{%s}", kind, length, strings.Join(parts, ","))
}

// serializeMap emits key-value pairs sorted by serialized key for
// deterministic output.
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	keys := rv.MapKeys()

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		keyStr := s.serializeValue(k.Interface())
		valStr := s.serializeValue(rv.MapIndex(k).Interface())
		pairs = append(pairs, keyStr+"="+valStr)
	}
	sort.Strings(pairs)

	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

func (s *defaultKeySerializer) serializeStruct(rv reflect.Value, rt reflect.Type) string {
	parts := make([]string, 0, rv.NumField())

	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}

		fieldValue := rv.Field(i)
		if !fieldValue.CanInterface() {
			continue
		}

		parts = append(parts, field.Name+":"+s.serializeValue(fieldValue.Interface()))
	}

	return fmt.Sprintf("struct:{%s}", strings.Join(parts, ","))
}

// jsonFallback provides JSON serialization as a last resort. Stability is
// preferred over perfection: a marshal failure degrades to type information
// rather than panicking.
func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}

// toSnake converts the provided string to snake_case using ASCII-aware rules.
// Punctuation that can show up in reflected type names is stripped; left in
// the entity segment it would break prefix-based invalidation.
func toSnake(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	lastUnderscore := false

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case unicode.IsUpper(r):
			if b.Len() > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if (unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower) && !lastUnderscore {
					b.WriteByte('_')
					lastUnderscore = true
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false

		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false

		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}

	return strings.Trim(b.String(), "_")
}
