package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Hocaabinn/sampah-keren-sub001/internal/config"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/db"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/education"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/localstore"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/model"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/repository"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/session"
)

// newDBServer needs a reachable postgres; set DATABASE_URL to run these.
func newDBServer(t *testing.T) *Server {
	t.Helper()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPool(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, db.Migrate(ctx, pool))

	dir := t.TempDir()
	archive, err := localstore.Open(filepath.Join(dir, "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { archive.Close() })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "education.yaml"), []byte(testCatalog), 0o644))
	catalog, err := education.Load(filepath.Join(dir, "education.yaml"), zap.NewNop())
	require.NoError(t, err)

	notifier := session.NewNotifier(nil, zap.NewNop())
	t.Cleanup(notifier.Close)

	cfg := config.Config{
		JWTSecret:        "db-test-secret",
		JWTIssuer:        "portal-test",
		AccessTokenTTL:   time.Minute,
		RefreshTokenTTL:  time.Hour,
		VerificationTTL:  time.Hour,
		PasswordResetTTL: time.Hour,
	}
	return NewServer(cfg, repository.NewStore(pool), archive, catalog, notifier, session.NewTokenStore(nil), zap.NewNop())
}

func uniqueEmail() string {
	return fmt.Sprintf("warga-%s@example.com", uuid.NewString()[:8])
}

func TestRegisterVerifyLoginFlow(t *testing.T) {
	s := newDBServer(t)
	router := s.Router()
	email := uniqueEmail()

	payload, _ := json.Marshal(registerRequest{
		Email:    email,
		Password: "rahasia-kuat",
		FullName: "Siti Rahayu",
	})
	rec := doRequest(t, router, http.MethodPost, "/auth/register", "", payload, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var registered struct {
		Status string `json:"status"`
		UserID string `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))
	assert.Equal(t, "verification_required", registered.Status)
	require.NotEmpty(t, registered.UserID)

	// Same email again is rejected.
	rec = doRequest(t, router, http.MethodPost, "/auth/register", "", payload, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No session before verification.
	login, _ := json.Marshal(loginRequest{Email: email, Password: "rahasia-kuat"})
	rec = doRequest(t, router, http.MethodPost, "/auth/login", "", login, "application/json")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	verifyToken := "verify-" + uuid.NewString()
	require.NoError(t, s.tokens.Save(context.Background(), session.TokenVerification, verifyToken, registered.UserID, time.Minute))
	verify, _ := json.Marshal(verifyRequest{Token: verifyToken})
	rec = doRequest(t, router, http.MethodPost, "/auth/verify", "", verify, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The token is single-use.
	rec = doRequest(t, router, http.MethodPost, "/auth/verify", "", verify, "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/auth/login", "", login, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var session1 authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session1))
	require.NotEmpty(t, session1.AccessToken)
	require.NotEmpty(t, session1.RefreshToken)
	assert.Equal(t, email, session1.User.Email)

	wrong, _ := json.Marshal(loginRequest{Email: email, Password: "salah"})
	rec = doRequest(t, router, http.MethodPost, "/auth/login", "", wrong, "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/auth/me", session1.AccessToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var me userSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, "Siti Rahayu", me.FullName)
	assert.True(t, me.Verified)

	// Profile update responds with the row the database confirmed.
	newName := "Siti Rahayu Putri"
	patch, _ := json.Marshal(updateMeRequest{FullName: &newName})
	rec = doRequest(t, router, http.MethodPatch, "/auth/me", session1.AccessToken, patch, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, newName, me.FullName)

	// Refresh rotates the pair and kills the old refresh token.
	refresh, _ := json.Marshal(refreshRequest{RefreshToken: session1.RefreshToken})
	rec = doRequest(t, router, http.MethodPost, "/auth/refresh", "", refresh, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var session2 authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &session2))
	assert.NotEqual(t, session1.RefreshToken, session2.RefreshToken)

	rec = doRequest(t, router, http.MethodPost, "/auth/refresh", "", refresh, "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logout always succeeds and revokes the remaining refresh token.
	rec = doRequest(t, router, http.MethodPost, "/auth/logout", session2.AccessToken, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	refresh2, _ := json.Marshal(refreshRequest{RefreshToken: session2.RefreshToken})
	rec = doRequest(t, router, http.MethodPost, "/auth/refresh", "", refresh2, "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Sign-out also denylists the access token itself.
	rec = doRequest(t, router, http.MethodGet, "/auth/me", session2.AccessToken, nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPasswordResetFlow(t *testing.T) {
	s := newDBServer(t)
	router := s.Router()
	email := uniqueEmail()

	payload, _ := json.Marshal(registerRequest{Email: email, Password: "rahasia-kuat", FullName: "Agus"})
	rec := doRequest(t, router, http.MethodPost, "/auth/register", "", payload, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code)
	var registered struct {
		UserID string `json:"userId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &registered))

	verifyToken := "verify-" + uuid.NewString()
	require.NoError(t, s.tokens.Save(context.Background(), session.TokenVerification, verifyToken, registered.UserID, time.Minute))
	verify, _ := json.Marshal(verifyRequest{Token: verifyToken})
	rec = doRequest(t, router, http.MethodPost, "/auth/verify", "", verify, "application/json")
	require.Equal(t, http.StatusOK, rec.Code)

	// The request endpoint never reveals whether the account exists.
	ask, _ := json.Marshal(passwordResetRequest{Email: "tidak-ada@example.com"})
	rec = doRequest(t, router, http.MethodPost, "/auth/password-reset", "", ask, "application/json")
	assert.Equal(t, http.StatusOK, rec.Code)

	resetToken := "reset-" + uuid.NewString()
	require.NoError(t, s.tokens.Save(context.Background(), session.TokenPasswordReset, resetToken, registered.UserID, time.Minute))
	confirm, _ := json.Marshal(passwordResetConfirm{Token: resetToken, Password: "rahasia-baru"})
	rec = doRequest(t, router, http.MethodPost, "/auth/password-reset/confirm", "", confirm, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	oldLogin, _ := json.Marshal(loginRequest{Email: email, Password: "rahasia-kuat"})
	rec = doRequest(t, router, http.MethodPost, "/auth/login", "", oldLogin, "application/json")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	newLogin, _ := json.Marshal(loginRequest{Email: email, Password: "rahasia-baru"})
	rec = doRequest(t, router, http.MethodPost, "/auth/login", "", newLogin, "application/json")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPickupFlow(t *testing.T) {
	s := newDBServer(t)
	router := s.Router()

	// pickup_requests references users, so the caller must exist.
	userID := uuid.NewString()
	now := time.Now().UTC()
	require.NoError(t, s.store.CreateUser(context.Background(), model.User{
		ID:           userID,
		Email:        uniqueEmail(),
		PasswordHash: "x",
		FullName:     "Warga Pickup",
		Role:         "user",
		Verified:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}))
	token := accessTokenFor(t, s, userID, "user")

	tomorrow := time.Now().UTC().Add(24 * time.Hour).Format("2006-01-02")
	payload, _ := json.Marshal(createPickupRequest{
		Address:       "Jl. Darmo 101, Surabaya",
		PickupDate:    tomorrow,
		PickupTime:    "morning",
		WasteType:     "household",
		WasteQuantity: "medium",
		Intruksi:      "Pagar hijau, sampah di samping garasi",
	})
	rec := doRequest(t, router, http.MethodPost, "/pickups", token, payload, "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		ID       string `json:"id"`
		Status   string `json:"status"`
		Intruksi string `json:"intruksi"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "scheduled", created.Status)
	assert.Equal(t, "Pagar hijau, sampah di samping garasi", created.Intruksi)

	rec = doRequest(t, router, http.MethodGet, "/pickups", token, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, created.ID, listed[0].ID)

	// Admin moves it along; an unknown id is a 404.
	adminToken := accessTokenFor(t, s, uuid.NewString(), "admin")
	status, _ := json.Marshal(updateStatusRequest{Status: "in-progress"})
	rec = doRequest(t, router, http.MethodPatch, "/admin/pickups/"+created.ID+"/status", adminToken, status, "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, router, http.MethodPatch, "/admin/pickups/"+uuid.NewString()+"/status", adminToken, status, "application/json")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
