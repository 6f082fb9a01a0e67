package adminapi

import (
	"context"
	"net/http"
	"strings"
)

type ctxKey int

const claimsCtxKey ctxKey = 0

// jwtAuth is chi middleware gating every protected route behind a valid
// bearer access token, mirroring the teacher's apiMiddleware.JWTAuth.
func jwtAuth(svc *jwtService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				unauthorized(w, "missing bearer token")
				return
			}
			claims, err := svc.validate(token)
			if err != nil {
				unauthorized(w, err.Error())
				return
			}
			ctx := context.WithValue(r.Context(), claimsCtxKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFromContext(r *http.Request) *Claims {
	claims, _ := r.Context().Value(claimsCtxKey).(*Claims)
	return claims
}
