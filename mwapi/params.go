package mwapi

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/google/go-querystring/query"
)

// File is a multipart upload part. Values of type []byte, File, *File and
// io.Reader in a parameter map are sent as files.
type File struct {
	Filename    string
	ContentType string
	Reader      io.Reader
}

type fileField struct {
	Field string
	File  File
}

type normalizedParams struct {
	Values url.Values
	Files  []fileField
}

// normalizeParams flattens the accepted parameter shapes into one value per
// key. Multi-valued fields are joined with "|".
func normalizeParams(p any) (normalizedParams, error) {
	np := normalizedParams{Values: url.Values{}}
	if pp, ok := p.(Params); ok {
		p = map[string]any(pp)
	}

	switch v := p.(type) {
	case nil:
	case url.Values:
		np.setJoined(v)
	case map[string]string:
		for k, val := range v {
			np.Values.Set(k, val)
		}
	case map[string]any:
		for k, val := range v {
			np.add(k, val)
		}
	default:
		rv := reflect.Indirect(reflect.ValueOf(p))
		if !rv.IsValid() {
			break
		}
		if rv.Kind() != reflect.Struct {
			return normalizedParams{}, fmt.Errorf("unsupported params type: %T", p)
		}
		values, err := query.Values(p)
		if err != nil {
			return normalizedParams{}, err
		}
		np.setJoined(values)
	}
	return np, nil
}

func (np *normalizedParams) setJoined(v url.Values) {
	for k, vs := range v {
		if len(vs) > 0 {
			np.Values.Set(k, strings.Join(vs, "|"))
		}
	}
}

func (np *normalizedParams) addFile(key string, f File) {
	if f.Filename == "" {
		f.Filename = key
	}
	np.Files = append(np.Files, fileField{Field: key, File: f})
}

// add stores one map value. nil and false are omitted, true becomes "1".
func (np *normalizedParams) add(key string, val any) {
	switch x := val.(type) {
	case nil:
	case string:
		np.Values.Set(key, x)
	case bool:
		if x {
			np.Values.Set(key, "1")
		}
	case []byte:
		np.addFile(key, File{Reader: bytes.NewReader(x)})
	case File:
		np.addFile(key, x)
	case *File:
		if x != nil {
			np.addFile(key, *x)
		}
	case io.Reader:
		np.addFile(key, File{Reader: x})
	case float64:
		np.Values.Set(key, strconv.FormatFloat(x, 'f', -1, 64))
	case fmt.Stringer:
		np.Values.Set(key, x.String())
	default:
		rv := reflect.ValueOf(val)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			np.Values.Set(key, fmt.Sprint(val))
			return
		}
		parts := make([]string, 0, rv.Len())
		for i := range rv.Len() {
			if e := rv.Index(i); e.Kind() == reflect.Interface && e.IsNil() {
				continue
			}
			parts = append(parts, fmt.Sprint(rv.Index(i).Interface()))
		}
		if len(parts) > 0 {
			np.Values.Set(key, strings.Join(parts, "|"))
		}
	}
}

// mergeParams layers call over global, then forces action. Files only ever
// come from the call.
func mergeParams(global url.Values, call normalizedParams, action string) normalizedParams {
	out := normalizedParams{
		Values: url.Values{},
		Files:  call.Files,
	}
	for k, vs := range global {
		if len(vs) > 0 {
			out.Values.Set(k, vs[0])
		}
	}
	for k, vs := range call.Values {
		if len(vs) > 0 {
			out.Values.Set(k, vs[0])
		}
	}
	for _, f := range call.Files {
		out.Values.Del(f.Field)
	}
	out.Values.Set("action", action)

	setDefaultIfMissing(out.Values, "format", "json")
	setDefaultIfMissing(out.Values, "formatversion", "2")
	return out
}

func setDefaultIfMissing(v url.Values, key, value string) {
	if v.Get(key) == "" {
		v.Set(key, value)
	}
}
