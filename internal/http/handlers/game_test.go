package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/santajump/server/internal/anticheat"
	"github.com/santajump/server/internal/game"
	"github.com/santajump/server/internal/middleware"
	"github.com/santajump/server/internal/model"
	"github.com/santajump/server/internal/quota"
	"github.com/santajump/server/internal/repo/memstore"
)

// chunkedRequest builds a request whose body length is unknown, as with
// Transfer-Encoding: chunked
func chunkedRequest(ctx context.Context, target, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	r.ContentLength = -1
	r.TransferEncoding = []string{"chunked"}
	return r.WithContext(ctx)
}

func TestHandleStart_OptionalBody(t *testing.T) {
	store := memstore.New()
	games := game.NewService(store.Users(), store.Sessions(), store.Config(), quota.NewManager(time.UTC))
	h := NewGameHandler(games, anticheat.NewService(store.Sessions()))

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"empty chunked body", "", http.StatusOK},
		{"fingerprint", `{"fingerprint":{"userAgent":"Mozilla/5.0 (iPhone)","platform":"iPhone","maxTouchPoints":5}}`, http.StatusOK},
		{"malformed", `{"fingerprint":`, http.StatusBadRequest},
		{"unknown field", `{"speed":9000}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := store.PutUser(model.User{})
			w := httptest.NewRecorder()
			h.HandleStart(w, chunkedRequest(middleware.WithUser(context.Background(), u), "/game/start", tt.body))
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestHandleInvalidateSession_EmptyChunkedBody(t *testing.T) {
	store := memstore.New()
	h := NewAdminHandler(store.Config(), anticheat.NewService(store.Sessions()), nil, store.Ads())

	u := store.PutUser(model.User{TotalScore: 80})
	s := store.PutSession(model.GameSession{UserID: u.ID, Status: model.GameCompleted, ValidatedScore: 30, StartedAt: time.Now()})

	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", s.ID.String())
	ctx := context.WithValue(context.Background(), chi.RouteCtxKey, rctx)

	w := httptest.NewRecorder()
	h.HandleInvalidateSession(w, chunkedRequest(ctx, "/admin/sessions/"+s.ID.String()+"/invalidate", ""))

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.GameInvalid, store.Session(s.ID).Status)
	assert.Equal(t, 50, store.User(u.ID).TotalScore)
}
