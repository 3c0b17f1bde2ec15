package handle

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"
)

// Recoverer превращает панику в ответ 500 с JSON-телом.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			log.Printf("[ERROR] panic in %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
			writeJSON(w, r, http.StatusInternalServerError, map[string]string{
				"error":   "Internal server error",
				"message": fmt.Sprint(rec),
			})
		}()
		next.ServeHTTP(w, r)
	})
}
