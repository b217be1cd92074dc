package logger

import (
	"time"

	"github.com/rs/zerolog"
)

type fieldKind uint8

const (
	kindAny fieldKind = iota
	kindString
	kindStrings
	kindInt
	kindInt64
	kindFloat
	kindBool
	kindDuration
	kindError
)

// Field is a typed key/value attached to a log entry.
type Field struct {
	Key   string
	Value interface{}
	kind  fieldKind
}

func (f Field) addTo(e *zerolog.Event) {
	switch f.kind {
	case kindString:
		e.Str(f.Key, f.Value.(string))
	case kindStrings:
		e.Strs(f.Key, f.Value.([]string))
	case kindInt:
		e.Int(f.Key, f.Value.(int))
	case kindInt64:
		e.Int64(f.Key, f.Value.(int64))
	case kindFloat:
		e.Float64(f.Key, f.Value.(float64))
	case kindBool:
		e.Bool(f.Key, f.Value.(bool))
	case kindDuration:
		e.Dur(f.Key, f.Value.(time.Duration))
	case kindError:
		if err, _ := f.Value.(error); err != nil {
			e.AnErr(f.Key, err)
		}
	default:
		e.Interface(f.Key, f.Value)
	}
}

// plain is the JSON-friendly value used by With and the collector.
func (f Field) plain() interface{} {
	switch f.kind {
	case kindDuration:
		return f.Value.(time.Duration).String()
	case kindError:
		if err, _ := f.Value.(error); err != nil {
			return err.Error()
		}
		return nil
	}
	return f.Value
}

func String(key, value string) Field { return Field{Key: key, Value: value, kind: kindString} }

func Strings(key string, value []string) Field {
	return Field{Key: key, Value: value, kind: kindStrings}
}

func Int(key string, value int) Field { return Field{Key: key, Value: value, kind: kindInt} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value, kind: kindInt64} }

func Float64(key string, value float64) Field { return Field{Key: key, Value: value, kind: kindFloat} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value, kind: kindBool} }

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value, kind: kindDuration}
}

// Error logs err under "error". A nil err adds nothing.
func Error(err error) Field { return Field{Key: "error", Value: err, kind: kindError} }

func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }
