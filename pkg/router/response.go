package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"

	"github.com/prizeloop/backend/pkg/errorx"
	"github.com/prizeloop/backend/pkg/xcontext"
)

type responseWriterKey struct{}

func withResponseWriter(ctx context.Context, w http.ResponseWriter) context.Context {
	return context.WithValue(ctx, responseWriterKey{}, w)
}

// ResponseWriter returns the writer of the current request. It is only
// available inside router handlers and closers.
func ResponseWriter(ctx context.Context) http.ResponseWriter {
	w, ok := ctx.Value(responseWriterKey{}).(http.ResponseWriter)
	if !ok {
		return nil
	}

	return w
}

type response struct {
	Code  int64  `json:"code"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

func newResponse(data any) response {
	return response{Code: 0, Data: data}
}

func newErrorResponse(err error) response {
	errx := errorx.Error{}
	if errors.As(err, &errx) {
		return response{
			Code:  int64(errx.Code),
			Error: errx.Message,
		}
	}

	return response{
		Code:  int64(errorx.Unknown.Code),
		Error: errorx.Unknown.Message,
	}
}

func handleResponse() CloserFunc {
	return func(ctx context.Context) {
		w := ResponseWriter(ctx)
		if w == nil {
			return
		}

		w.Header().Set("Content-Type", "application/json")

		if err := xcontext.Error(ctx); err != nil {
			if writeErr := WriteJson(w, newErrorResponse(err)); writeErr != nil {
				xcontext.Logger(ctx).Errorf("Cannot write the response: %v", writeErr)
			}

			return
		}

		resp := xcontext.Response(ctx)
		if resp == nil {
			return
		}

		if v := reflect.ValueOf(resp); v.Kind() == reflect.Ptr && v.IsNil() {
			return
		}

		if err := WriteJson(w, newResponse(resp)); err != nil {
			xcontext.Logger(ctx).Errorf("Cannot write the response: %v", err)
		}
	}
}

func WriteJson(w http.ResponseWriter, resp any) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	if _, err := w.Write(b); err != nil {
		return err
	}

	return nil
}
