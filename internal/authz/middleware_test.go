package authz

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/aegis-authz/aegis/internal/resolver"
	"github.com/aegis-authz/aegis/internal/shared"
)

type allowAllStore struct {
	userID uuid.UUID
	keys   []string
}

func (s *allowAllStore) newResolver(t *testing.T) *resolver.Service {
	t.Helper()
	store := newFakeStore(s.userID, s.keys...)
	return resolver.NewService(store, nil, nil)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func identityFor(id shared.Identity, ok bool) IdentityResolver {
	return func(r *http.Request) (shared.Identity, bool) {
		return id, ok
	}
}

func TestRequireAllowsGrantedUser(t *testing.T) {
	userID := uuid.New()
	svc := (&allowAllStore{userID: userID, keys: []string{"agenda:edit"}}).newResolver(t)
	mw := Middleware{
		Resolver: svc,
		Identity: identityFor(shared.Identity{UserID: userID}, true),
	}

	rec := httptest.NewRecorder()
	mw.Require("agenda:edit")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRejectsMissingGrant(t *testing.T) {
	userID := uuid.New()
	svc := (&allowAllStore{userID: userID}).newResolver(t)
	mw := Middleware{
		Resolver: svc,
		Identity: identityFor(shared.Identity{UserID: userID}, true),
	}

	rec := httptest.NewRecorder()
	mw.Require("agenda:edit")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	// The body must not reveal why the request was rejected.
	require.Equal(t, http.StatusText(http.StatusForbidden)+"\n", rec.Body.String())
}

func TestRequireRejectsAnonymous(t *testing.T) {
	svc := (&allowAllStore{userID: uuid.New(), keys: []string{"agenda:edit"}}).newResolver(t)
	mw := Middleware{
		Resolver: svc,
		Identity: identityFor(shared.Identity{}, false),
	}

	rec := httptest.NewRecorder()
	mw.Require("agenda:edit")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireOwnScopeUsesResourceExtractor(t *testing.T) {
	userID := uuid.New()
	other := uuid.New()
	svc := (&allowAllStore{userID: userID, keys: []string{"doc:read:own"}}).newResolver(t)

	run := func(owner *uuid.UUID) int {
		mw := Middleware{
			Resolver: svc,
			Identity: identityFor(shared.Identity{UserID: userID}, true),
			Resource: func(r *http.Request) *resolver.Resource {
				return &resolver.Resource{OwnerID: owner}
			},
		}
		rec := httptest.NewRecorder()
		mw.Require("doc:read:own")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		return rec.Code
	}

	require.Equal(t, http.StatusOK, run(&userID))
	require.Equal(t, http.StatusForbidden, run(&other))
	require.Equal(t, http.StatusForbidden, run(nil))
}

func TestRequireMisconfiguredGateFailsClosedAndLogs(t *testing.T) {
	var buf bytes.Buffer
	mw := Middleware{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	rec := httptest.NewRecorder()
	mw.Require("agenda:edit")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, buf.String(), "authorization gate misconfigured")
	require.Contains(t, buf.String(), "agenda:edit")
}

func TestRequirePropagatesIdentity(t *testing.T) {
	userID := uuid.New()
	svc := (&allowAllStore{userID: userID, keys: []string{"agenda:edit"}}).newResolver(t)
	mw := Middleware{
		Resolver: svc,
		Identity: identityFor(shared.Identity{UserID: userID, GlobalAdmin: true}, true),
	}

	var seen shared.Identity
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = shared.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	mw.Require("agenda:edit")(inner).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, userID, seen.UserID)
	require.True(t, seen.GlobalAdmin)
}
