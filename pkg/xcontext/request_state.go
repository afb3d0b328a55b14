package xcontext

import "context"

type requestStateKey struct{}

// requestState carries the handler outcome to After middlewares and
// closers. It is installed once per request by the router.
type requestState struct {
	err      error
	response any
}

func WithRequestState(ctx context.Context) context.Context {
	return context.WithValue(ctx, requestStateKey{}, &requestState{})
}

func SetError(ctx context.Context, err error) {
	if state, ok := ctx.Value(requestStateKey{}).(*requestState); ok {
		state.err = err
	}
}

func Error(ctx context.Context) error {
	if state, ok := ctx.Value(requestStateKey{}).(*requestState); ok {
		return state.err
	}

	return nil
}

func SetResponse(ctx context.Context, resp any) {
	if state, ok := ctx.Value(requestStateKey{}).(*requestState); ok {
		state.response = resp
	}
}

func Response(ctx context.Context) any {
	if state, ok := ctx.Value(requestStateKey{}).(*requestState); ok {
		return state.response
	}

	return nil
}
