package router

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/prizeloop/backend/config"
	"github.com/prizeloop/backend/pkg/logger"
	"github.com/prizeloop/backend/pkg/xcontext"
	"github.com/rs/cors"
	"gorm.io/gorm"
)

// HandlerFunc is the shape every domain operation exposes to the router.
type HandlerFunc[Request, Response any] func(ctx context.Context, req *Request) (*Response, error)

// MiddlewareFunc runs before (or after) the handler. It may derive a new
// context; returning an error stops the chain and the error becomes the
// response.
type MiddlewareFunc func(ctx context.Context) (context.Context, error)

// CloserFunc always runs at the end of the request, after the response
// outcome is known.
type CloserFunc func(ctx context.Context)

type Router struct {
	mux *http.ServeMux

	db        *gorm.DB
	cfg       config.Configs
	logger    logger.Logger
	snowflake *snowflake.Node

	befores []MiddlewareFunc
	afters  []MiddlewareFunc
	closers []CloserFunc
}

func New(db *gorm.DB, cfg config.Configs, logger logger.Logger) *Router {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}

	r := &Router{
		mux:       http.NewServeMux(),
		db:        db,
		cfg:       cfg,
		logger:    logger,
		snowflake: node,
	}
	r.AddCloser(handleResponse())

	return r
}

// Branch derives a router sharing the mux but with an independent
// middleware chain. Routes registered on the branch see the branch's
// middlewares only.
func (r *Router) Branch() *Router {
	clone := *r
	clone.befores = append([]MiddlewareFunc{}, r.befores...)
	clone.afters = append([]MiddlewareFunc{}, r.afters...)
	clone.closers = append([]CloserFunc{}, r.closers...)

	return &clone
}

func (r *Router) Before(middleware MiddlewareFunc) {
	r.befores = append(r.befores, middleware)
}

func (r *Router) After(middleware MiddlewareFunc) {
	r.afters = append(r.afters, middleware)
}

func (r *Router) AddCloser(closer CloserFunc) {
	r.closers = append(r.closers, closer)
}

func (r *Router) Handler() http.Handler {
	if len(r.cfg.ApiServer.AllowCORS) > 0 {
		c := cors.New(cors.Options{
			AllowedOrigins:   r.cfg.ApiServer.AllowCORS,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		})
		return c.Handler(r.mux)
	}

	return r.mux
}

func (r *Router) Static(pattern string, handler http.Handler) {
	r.mux.Handle(pattern, handler)
}

func GET[Request, Response any](r *Router, pattern string, handler HandlerFunc[Request, Response]) {
	r.mux.HandleFunc(pattern, wrapHandler(r, http.MethodGet, handler))
}

func POST[Request, Response any](r *Router, pattern string, handler HandlerFunc[Request, Response]) {
	r.mux.HandleFunc(pattern, wrapHandler(r, http.MethodPost, handler))
}

func wrapHandler[Request, Response any](
	router *Router, method string, handler HandlerFunc[Request, Response],
) http.HandlerFunc {
	befores := router.befores
	afters := router.afters
	closers := router.closers

	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		ctx := req.Context()
		ctx = xcontext.WithDB(ctx, router.db)
		ctx = xcontext.WithConfigs(ctx, router.cfg)
		ctx = xcontext.WithLogger(ctx, router.logger)
		ctx = xcontext.WithSnowFlake(ctx, router.snowflake)
		ctx = xcontext.WithHTTPRequest(ctx, req)
		ctx = xcontext.WithRequestState(ctx)
		ctx = withResponseWriter(ctx, w)

		defer func() {
			for _, closer := range closers {
				closer(ctx)
			}
		}()

		var err error
		for _, before := range befores {
			if ctx, err = before(ctx); err != nil {
				xcontext.SetError(ctx, err)
				return
			}
		}

		var request Request
		switch method {
		case http.MethodGet:
			err = bindQuery(req, &request)
		case http.MethodPost:
			err = bindJSON(req, &request)
		}
		if err != nil {
			xcontext.SetError(ctx, err)
			return
		}

		resp, err := handler(ctx, &request)
		if err != nil {
			xcontext.SetError(ctx, err)
		} else {
			xcontext.SetResponse(ctx, resp)
		}

		for _, after := range afters {
			if ctx, err = after(ctx); err != nil {
				xcontext.SetError(ctx, err)
				return
			}
		}
	}
}
