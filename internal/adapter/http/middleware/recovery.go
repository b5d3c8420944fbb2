package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog/log"

	"github.com/iho/saccogov/internal/domain"
)

// Recovery turns a handler panic into a 500. Any transaction the handler had
// open is rolled back by its deferred Rollback while the panic unwinds.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}

			event := log.Ctx(r.Context()).Error().Err(err).
				Bytes("stack", debug.Stack()).
				Str("method", r.Method).
				Str("route", routePattern(r))
			if p, ok := domain.PrincipalFromContext(r.Context()); ok {
				event = event.Str("member_id", p.MemberID)
			}
			event.Msg("panic recovered")

			writeError(w, http.StatusInternalServerError, "internal server error", "internal")
		}()

		next.ServeHTTP(w, r)
	})
}
