package middleware

import (
	"context"
	"strings"

	"github.com/prizeloop/backend/internal/model"
	"github.com/prizeloop/backend/pkg/authenticator"
	"github.com/prizeloop/backend/pkg/errorx"
	"github.com/prizeloop/backend/pkg/router"
	"github.com/prizeloop/backend/pkg/xcontext"
)

type AuthVerifier struct {
	engine    authenticator.TokenEngine[model.AccessToken]
	onlyAdmin bool
}

func NewAuthVerifier(engine authenticator.TokenEngine[model.AccessToken]) *AuthVerifier {
	return &AuthVerifier{engine: engine}
}

func (a *AuthVerifier) OnlyAdmin() *AuthVerifier {
	a.onlyAdmin = true
	return a
}

func (a *AuthVerifier) Middleware() router.MiddlewareFunc {
	return func(ctx context.Context) (context.Context, error) {
		req := xcontext.HTTPRequest(ctx)
		authorization := req.Header.Get("Authorization")
		token, found := strings.CutPrefix(authorization, "Bearer ")
		if !found {
			return ctx, errorx.New(errorx.Unauthenticated, "You need to authenticate before")
		}

		accessToken, err := a.engine.Verify(token)
		if err != nil {
			return ctx, errorx.New(errorx.Unauthenticated, "Invalid access token")
		}

		if a.onlyAdmin && !accessToken.IsAdmin {
			return ctx, errorx.New(errorx.PermissionDenied, "Only admin can call this API")
		}

		return xcontext.WithRequestUserID(ctx, accessToken.ID), nil
	}
}
