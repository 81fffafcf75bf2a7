package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/StratForge/internal/port/cache"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyBody   = 1 << 20
)

// storedResponse is what a replay writes back.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// Idempotency replays the response of a POST whose Idempotency-Key was
// already used by the same actor on the same path. Responses of 500 and
// above are not kept, so a failed upgrade can be retried with its key. A
// duplicate arriving while the first request is still running gets 409.
// Entries live in store for ttl; the in-flight check is per process.
func Idempotency(store cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	var inFlight sync.Map

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(headerIdempotencyKey)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			ck := idempotencyCacheKey(ActorIDFromContext(ctx), r.URL.Path, key)

			if resp, ok := lookup(r, store, ck); ok {
				if resp.ContentType != "" {
					w.Header().Set("Content-Type", resp.ContentType)
				}
				w.Header().Set(headerReplayed, "true")
				w.WriteHeader(resp.Status)
				_, _ = w.Write(resp.Body)
				return
			}

			if _, busy := inFlight.LoadOrStore(ck, struct{}{}); busy {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusConflict)
				_, _ = w.Write([]byte(`{"error":"a request with this Idempotency-Key is in progress"}`))
				return
			}
			defer inFlight.Delete(ck)

			var body bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status >= http.StatusInternalServerError || body.Len() > maxIdempotencyBody {
				return
			}
			data, err := json.Marshal(storedResponse{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        body.Bytes(),
			})
			if err != nil {
				return
			}
			if err := store.Set(ctx, ck, data, ttl); err != nil {
				slog.WarnContext(ctx, "idempotency store failed", "error", err)
			}
		})
	}
}

func lookup(r *http.Request, store cache.Cache, ck string) (storedResponse, bool) {
	var resp storedResponse
	data, ok, err := store.Get(r.Context(), ck)
	if err != nil {
		slog.WarnContext(r.Context(), "idempotency lookup failed", "error", err)
		return resp, false
	}
	if !ok {
		return resp, false
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.WarnContext(r.Context(), "idempotency entry corrupt", "error", err)
		return resp, false
	}
	return resp, true
}

// idempotencyCacheKey hashes the scope so client keys never collide across
// actors and stay within the key alphabet of every cache backend.
func idempotencyCacheKey(actor, path, key string) string {
	sum := sha256.Sum256([]byte(actor + "\x00" + path + "\x00" + key))
	return "idem:" + hex.EncodeToString(sum[:])
}
