package router

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/prizeloop/backend/pkg/errorx"
)

func bindJSON(req *http.Request, out any) error {
	if req.Body == nil {
		return nil
	}

	if err := json.NewDecoder(req.Body).Decode(out); err != nil {
		return errorx.New(errorx.BadRequest, "Cannot parse the request body")
	}

	return nil
}

// bindQuery fills struct fields from query parameters, keyed by the
// field's json tag.
func bindQuery(req *http.Request, out any) error {
	v := reflect.ValueOf(out).Elem()
	t := v.Type()
	query := req.URL.Query()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := strings.Split(field.Tag.Get("json"), ",")[0]
		if name == "" || name == "-" {
			continue
		}

		raw := query.Get(name)
		if raw == "" {
			continue
		}

		if err := setField(v.Field(i), raw); err != nil {
			return errorx.New(errorx.BadRequest, "Invalid value of parameter %s", name)
		}
	}

	return nil
}

func setField(field reflect.Value, raw string) error {
	if field.Type() == reflect.TypeOf(time.Time{}) {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return err
		}

		field.Set(reflect.ValueOf(parsed))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}

	return nil
}
