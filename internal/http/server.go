package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Hocaabinn/sampah-keren-sub001/internal/auth"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/config"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/crypto"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/education"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/localstore"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/model"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/report"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/repository"
	"github.com/Hocaabinn/sampah-keren-sub001/internal/session"
)

const (
	minPasswordLen    = 8
	maxMultipartBytes = 32 << 20
	pickupDateLayout  = "2006-01-02"
)

var (
	reportsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_reports_submitted_total",
		Help: "Waste reports accepted by the portal.",
	})
	pickupsRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_pickups_requested_total",
		Help: "Pickup requests accepted by the portal.",
	})
)

type Server struct {
	cfg       config.Config
	store     *repository.Store
	archive   *localstore.Archive
	catalog   *education.Catalog
	bookmarks *education.Bookmarks
	notifier  *session.Notifier
	tokens    *session.TokenStore
	logger    *zap.Logger
	loc       *time.Location
	upgrader  websocket.Upgrader
}

func NewServer(
	cfg config.Config,
	store *repository.Store,
	archive *localstore.Archive,
	catalog *education.Catalog,
	notifier *session.Notifier,
	tokens *session.TokenStore,
	logger *zap.Logger,
) *Server {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Warn("unknown portal timezone, using UTC", zap.String("timezone", cfg.Timezone))
		loc = time.UTC
	}
	return &Server{
		cfg:       cfg,
		store:     store,
		archive:   archive,
		catalog:   catalog,
		bookmarks: education.NewBookmarks(),
		notifier:  notifier,
		tokens:    tokens,
		logger:    logger,
		loc:       loc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/register", s.handleRegister)
	r.Post("/auth/verify", s.handleVerify)
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/refresh", s.handleRefresh)
	r.Post("/auth/password-reset", s.handlePasswordResetRequest)
	r.Post("/auth/password-reset/confirm", s.handlePasswordResetConfirm)
	r.Get("/auth/events", s.handleAuthEvents)
	r.With(s.authMiddleware).Post("/auth/logout", s.handleLogout)
	r.With(s.authMiddleware).Get("/auth/me", s.handleGetMe)
	r.With(s.authMiddleware).Patch("/auth/me", s.handleUpdateMe)

	r.Route("/reports", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/", s.handleCreateReport)
		r.Get("/", s.handleListReports)
		r.Get("/{reportID}", s.handleGetReport)
		r.Delete("/{reportID}", s.handleDeleteReport)
		r.Get("/{reportID}/photos/{index}", s.handleGetReportPhoto)
	})

	r.Route("/pickups", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/", s.handleCreatePickup)
		r.Get("/", s.handleListPickups)
	})

	r.Route("/education", func(r chi.Router) {
		r.Get("/", s.handleListEducation)
		r.With(s.authMiddleware).Get("/bookmarks", s.handleListBookmarks)
		r.Get("/{contentID}", s.handleGetEducation)
		r.With(s.authMiddleware).Put("/{contentID}/bookmark", s.handleAddBookmark)
		r.With(s.authMiddleware).Delete("/{contentID}/bookmark", s.handleRemoveBookmark)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.authMiddleware, s.requireAdmin)
		r.Get("/reports", s.handleAdminListReports)
		r.Patch("/reports/{reportID}/status", s.handleAdminUpdateReportStatus)
		r.Get("/pickups", s.handleAdminListPickups)
		r.Patch("/pickups/{pickupID}/status", s.handleAdminUpdatePickupStatus)
	})

	return r
}

// WatchSessions keeps process-local session side effects in line with
// auth events, wherever they originate: a sign-out anywhere drops the
// user's bookmark set here.
func (s *Server) WatchSessions(ctx context.Context) {
	events, cancel := s.notifier.Subscribe()
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}
				if event.Type == session.EventSignedOut && event.UserID != "" {
					s.bookmarks.Clear(event.UserID)
				}
			}
		}
	}()
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
}

type userSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	Role     string `json:"role"`
	Verified bool   `json:"verified"`
}

type authResponse struct {
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken"`
	User         userSummary `json:"user"`
}

func mapUserSummary(user model.User) userSummary {
	return userSummary{
		ID:       user.ID,
		Email:    user.Email,
		FullName: user.FullName,
		Phone:    user.Phone,
		Address:  user.Address,
		Role:     user.Role,
		Verified: user.Verified,
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.FullName = strings.TrimSpace(req.FullName)
	fields := map[string]string{}
	if req.Email == "" {
		fields["email"] = "email_required"
	}
	if req.FullName == "" {
		fields["fullName"] = "full_name_required"
	}
	if len(req.Password) < minPasswordLen {
		fields["password"] = "password_too_weak"
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	if _, err := s.store.GetUserByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusBadRequest, "email_already_registered")
		return
	} else if !errors.Is(err, pgx.ErrNoRows) {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password_hash_failed")
		return
	}

	now := time.Now().UTC()
	user := model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		FullName:     req.FullName,
		Phone:        strings.TrimSpace(req.Phone),
		Address:      strings.TrimSpace(req.Address),
		Role:         "user",
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		writeError(w, http.StatusBadRequest, "user_create_failed")
		return
	}

	token, err := crypto.NewToken()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}
	if err := s.tokens.Save(r.Context(), session.TokenVerification, token, user.ID, s.cfg.VerificationTTL); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	// Mail delivery is out of process; the token is handed to the queue
	// via the log until then.
	s.logger.Info("verification email queued",
		zap.String("email", user.Email),
		zap.String("token", token))

	writeJSON(w, http.StatusCreated, map[string]string{
		"status": "verification_required",
		"userId": user.ID,
	})
}

type verifyRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	userID, ok, err := s.tokens.Consume(r.Context(), session.TokenVerification, req.Token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_verification_token")
		return
	}

	now := time.Now().UTC()
	if err := s.store.MarkUserVerified(r.Context(), userID, now); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), userID)
	if err == nil {
		s.publishEvent(r.Context(), session.Event{
			Type:   session.EventVerified,
			UserID: user.ID,
			Email:  user.Email,
			Role:   user.Role,
			At:     now,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if err := crypto.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	if !user.Verified {
		writeError(w, http.StatusForbidden, "email_not_verified")
		return
	}

	accessToken, refreshToken, err := s.issueTokens(r.Context(), user, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	s.publishEvent(r.Context(), session.Event{
		Type:   session.EventSignedIn,
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		At:     time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         mapUserSummary(user),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "missing_refresh_token")
		return
	}

	tokenHash := crypto.HashToken(req.RefreshToken)
	refreshSession, err := s.store.GetRefreshSession(r.Context(), tokenHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_refresh_token")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	if refreshSession.RevokedAt != nil || refreshSession.ExpiresAt.Before(time.Now().UTC()) {
		writeError(w, http.StatusUnauthorized, "refresh_token_expired")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), refreshSession.UserID)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "user_not_found")
		return
	}

	if err := s.store.RevokeRefreshSession(r.Context(), refreshSession.ID, time.Now().UTC()); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	accessToken, refreshToken, err := s.issueTokens(r.Context(), user, r.UserAgent(), clientIP(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         mapUserSummary(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	// Local session state clears unconditionally; a failed revocation
	// only means the refresh tokens die by expiry instead.
	now := time.Now().UTC()
	if err := s.store.RevokeRefreshSessionsByUser(r.Context(), claims.UserID, now); err != nil {
		s.logger.Warn("refresh session revocation failed", zap.Error(err), zap.String("userId", claims.UserID))
	}
	if err := s.tokens.RevokeUser(r.Context(), claims.UserID, now, s.cfg.AccessTokenTTL); err != nil {
		s.logger.Warn("access token denylist failed", zap.Error(err), zap.String("userId", claims.UserID))
	}
	s.bookmarks.Clear(claims.UserID)

	s.publishEvent(r.Context(), session.Event{
		Type:   session.EventSignedOut,
		UserID: claims.UserID,
		At:     time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	user, err := s.store.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user_not_found")
		return
	}
	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

type updateMeRequest struct {
	FullName *string `json:"fullName,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Address  *string `json:"address,omitempty"`
	Password *string `json:"password,omitempty"`
}

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req updateMeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	update := repository.UserUpdate{}
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name != "" {
			update.FullName = &name
		}
	}
	if req.Phone != nil {
		phone := strings.TrimSpace(*req.Phone)
		update.Phone = &phone
	}
	if req.Address != nil {
		address := strings.TrimSpace(*req.Address)
		update.Address = &address
	}
	if req.Password != nil && strings.TrimSpace(*req.Password) != "" {
		if len(*req.Password) < minPasswordLen {
			writeFieldErrors(w, map[string]string{"password": "password_too_weak"})
			return
		}
		hash, err := crypto.HashPassword(*req.Password)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "password_hash_failed")
			return
		}
		update.PasswordHash = &hash
	}

	// The response carries the row the database confirmed, never a local
	// merge of the request.
	user, err := s.store.UpdateUser(r.Context(), claims.UserID, update)
	if err != nil {
		writeError(w, http.StatusBadRequest, "update_rejected")
		return
	}

	s.publishEvent(r.Context(), session.Event{
		Type:   session.EventProfileUpdated,
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		At:     time.Now().UTC(),
	})

	writeJSON(w, http.StatusOK, mapUserSummary(user))
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (s *Server) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	// Always acknowledge to avoid account enumeration.
	if user, err := s.store.GetUserByEmail(r.Context(), email); err == nil {
		if token, err := crypto.NewToken(); err == nil {
			if err := s.tokens.Save(r.Context(), session.TokenPasswordReset, token, user.ID, s.cfg.PasswordResetTTL); err == nil {
				s.logger.Info("password reset email queued",
					zap.String("email", user.Email),
					zap.String("token", token))
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type passwordResetConfirm struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req passwordResetConfirm
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeFieldErrors(w, map[string]string{"password": "password_too_weak"})
		return
	}

	userID, ok, err := s.tokens.Consume(r.Context(), session.TokenPasswordReset, req.Token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_reset_token")
		return
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password_hash_failed")
		return
	}
	if _, err := s.store.UpdateUser(r.Context(), userID, repository.UserUpdate{PasswordHash: &hash}); err != nil {
		writeError(w, http.StatusBadRequest, "update_rejected")
		return
	}
	resetAt := time.Now().UTC()
	if err := s.store.RevokeRefreshSessionsByUser(r.Context(), userID, resetAt); err != nil {
		s.logger.Warn("refresh session revocation failed", zap.Error(err), zap.String("userId", userID))
	}
	if err := s.tokens.RevokeUser(r.Context(), userID, resetAt, s.cfg.AccessTokenTTL); err != nil {
		s.logger.Warn("access token denylist failed", zap.Error(err), zap.String("userId", userID))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sessionFrame pairs a delivered auth event with the session state
// reduced from it, so subscribers never have to derive state themselves.
type sessionFrame struct {
	Event   session.Event    `json:"event"`
	Session session.Snapshot `json:"session"`
}

// handleAuthEvents streams auth-state changes over a websocket, the way
// a second browser tab would observe them. The bearer token travels in
// the query string because browsers cannot set headers on websockets.
func (s *Server) handleAuthEvents(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r.Header.Get("Authorization"))
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, cancel := s.notifier.Subscribe()
	defer cancel()

	// Each connection reduces its own lifecycle, seeded from the token's
	// claims: uninitialized, loading, then the loaded session.
	now := time.Now().UTC()
	snapshot := session.Reduce(session.NewSnapshot(), session.Event{Type: session.EventInitStarted, At: now})
	initial := session.Event{
		Type:   session.EventSessionLoaded,
		UserID: claims.UserID,
		Email:  claims.Email,
		Role:   claims.Role,
		At:     now,
	}
	snapshot = session.Reduce(snapshot, initial)
	if err := conn.WriteJSON(sessionFrame{Event: initial, Session: snapshot}); err != nil {
		return
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.UserID != claims.UserID {
				continue
			}
			snapshot = session.Reduce(snapshot, event)
			if err := conn.WriteJSON(sessionFrame{Event: event, Session: snapshot}); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	if err := r.ParseMultipartForm(maxMultipartBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_multipart")
		return
	}

	draft := report.Draft{
		Category:    r.FormValue("category"),
		Description: r.FormValue("description"),
		Urgency:     r.FormValue("urgency"),
		Contact: model.Contact{
			Name:  r.FormValue("contactName"),
			Email: r.FormValue("contactEmail"),
			Phone: r.FormValue("contactPhone"),
		},
	}

	latRaw, lngRaw := r.FormValue("latitude"), r.FormValue("longitude")
	if latRaw != "" && lngRaw != "" {
		lat, latErr := strconv.ParseFloat(latRaw, 64)
		lng, lngErr := strconv.ParseFloat(lngRaw, 64)
		if latErr == nil && lngErr == nil {
			draft.Location = &model.Location{
				Latitude:  lat,
				Longitude: lng,
				Address:   strings.TrimSpace(r.FormValue("address")),
			}
		}
	}

	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["photos"] {
			file, err := header.Open()
			if err != nil {
				continue
			}
			data, err := io.ReadAll(file)
			file.Close()
			if err != nil {
				continue
			}
			draft.Photos = append(draft.Photos, report.PhotoUpload{
				FileName:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Data:        data,
			})
		}
	}

	record, fields := report.Build(draft, claims.UserID, time.Now())
	if fields != nil {
		writeFieldErrors(w, fields)
		return
	}

	if _, err := s.archive.Add(r.Context(), record); err != nil {
		s.logger.Error("report archive write failed", zap.Error(err), zap.String("reportId", record.ID))
		writeError(w, http.StatusInternalServerError, "archive_error")
		return
	}
	reportsSubmitted.Inc()

	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var category model.WasteCategory
	if raw := r.URL.Query().Get("type"); raw != "" {
		parsed, ok := model.ValidWasteCategory(raw)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_category")
			return
		}
		category = parsed
	}
	sortKey, ok := report.ValidSortKey(r.URL.Query().Get("sort"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_sort")
		return
	}

	reports, err := s.archive.List(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	reports = report.FilterByCategory(reports, category)
	reports = report.Sort(reports, sortKey)
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	record, err := s.archive.Get(r.Context(), claims.UserID, chi.URLParam(r, "reportID"))
	if err != nil {
		if errors.Is(err, localstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	// Deleting an absent id is a no-op, not an error.
	_, removed, err := s.archive.Delete(r.Context(), claims.UserID, chi.URLParam(r, "reportID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleGetReportPhoto(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	reportID := chi.URLParam(r, "reportID")

	if _, err := s.archive.Get(r.Context(), claims.UserID, reportID); err != nil {
		writeError(w, http.StatusNotFound, "report_not_found")
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid_photo_index")
		return
	}

	photo, err := s.archive.GetPhoto(r.Context(), reportID, index)
	if err != nil {
		if errors.Is(err, localstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "photo_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	data := photo.Data
	contentType := photo.ContentType
	if r.URL.Query().Get("thumbnail") == "1" && len(photo.Thumbnail) > 0 {
		data = photo.Thumbnail
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type createPickupRequest struct {
	Address       string `json:"address"`
	PickupDate    string `json:"pickupDate"`
	PickupTime    string `json:"pickupTime"`
	WasteType     string `json:"wasteType"`
	WasteQuantity string `json:"wasteQuantity"`
	Intruksi      string `json:"intruksi"`
}

func (s *Server) handleCreatePickup(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	var req createPickupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	fields := map[string]string{}
	if strings.TrimSpace(req.Address) == "" {
		fields["address"] = "address_required"
	}
	// "Today" means the portal's civil day, not the UTC one.
	pickupDate, err := time.ParseInLocation(pickupDateLayout, req.PickupDate, s.loc)
	if err != nil {
		fields["pickupDate"] = "invalid_date"
	} else if pickupDate.Before(dayStart(time.Now(), s.loc)) {
		fields["pickupDate"] = "date_in_past"
	}
	pickupTime, ok := model.ValidPickupTime(req.PickupTime)
	if !ok {
		fields["pickupTime"] = "invalid_time_slot"
	}
	wasteType, ok := model.ValidWasteCategory(req.WasteType)
	if !ok {
		fields["wasteType"] = "invalid_category"
	}
	quantity, ok := model.ValidPickupQuantity(req.WasteQuantity)
	if !ok {
		fields["wasteQuantity"] = "invalid_quantity"
	}
	if len(fields) > 0 {
		writeFieldErrors(w, fields)
		return
	}

	request := model.PickupRequest{
		ID:         uuid.NewString(),
		UserID:     claims.UserID,
		Address:    strings.TrimSpace(req.Address),
		PickupDate: pickupDate,
		PickupTime: pickupTime,
		WasteType:  wasteType,
		Quantity:   quantity,
		Intruksi:   strings.TrimSpace(req.Intruksi),
		Status:     model.PickupScheduled,
		CreatedAt:  time.Now().UTC(),
	}

	// Respond with the row the database produced rather than echoing the
	// client-constructed object.
	created, err := s.store.CreatePickupRequest(r.Context(), request)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "pickup_create_failed")
		return
	}
	pickupsRequested.Inc()

	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListPickups(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	requests, err := s.store.ListPickupRequestsByUser(r.Context(), claims.UserID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Server) handleListEducation(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	entries := s.catalog.Filter(query.Get("category"), query.Get("difficulty"), query.Get("q"))
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetEducation(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.catalog.Get(chi.URLParam(r, "contentID"))
	if !ok {
		writeError(w, http.StatusNotFound, "content_not_found")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleAddBookmark(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	contentID := chi.URLParam(r, "contentID")
	if _, ok := s.catalog.Get(contentID); !ok {
		writeError(w, http.StatusNotFound, "content_not_found")
		return
	}
	s.bookmarks.Add(claims.UserID, contentID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRemoveBookmark(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	s.bookmarks.Remove(claims.UserID, chi.URLParam(r, "contentID"))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListBookmarks(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"bookmarks": s.bookmarks.List(claims.UserID)})
}

func (s *Server) handleAdminListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.archive.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

func (s *Server) handleAdminUpdateReportStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	status, ok := model.ValidReportStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	record, err := s.archive.UpdateStatus(r.Context(), chi.URLParam(r, "reportID"), status, req.Note, time.Now())
	if err != nil {
		if errors.Is(err, localstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleAdminListPickups(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	requests, err := s.store.ListPickupRequests(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (s *Server) handleAdminUpdatePickupStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	status, ok := model.ValidPickupStatus(req.Status)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	request, err := s.store.UpdatePickupStatus(r.Context(), chi.URLParam(r, "pickupID"), status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusNotFound, "pickup_not_found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (s *Server) issueTokens(ctx context.Context, user model.User, userAgent, ip string) (string, string, error) {
	accessToken, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, auth.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return "", "", err
	}

	refreshToken, err := crypto.NewToken()
	if err != nil {
		return "", "", err
	}

	now := time.Now().UTC()
	refreshSession := model.RefreshSession{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: crypto.HashToken(refreshToken),
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}
	if userAgent != "" {
		refreshSession.UserAgent = &userAgent
	}
	if ip != "" {
		refreshSession.IPAddress = &ip
	}

	if err := s.store.CreateRefreshSession(ctx, refreshSession); err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

func (s *Server) publishEvent(ctx context.Context, event session.Event) {
	if err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn("auth event publish failed", zap.Error(err), zap.String("type", string(event.Type)))
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		// Sign-out denylists the user's outstanding tokens; a token minted
		// at or before that cut is dead even though its signature holds.
		revokedAt, revoked, err := s.tokens.UserRevokedAt(r.Context(), claims.UserID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		if revoked && claims.IssuedAt != nil && !claims.IssuedAt.Time.After(revokedAt) {
			writeError(w, http.StatusUnauthorized, "token_revoked")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.Role != "admin" {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"error":  "validation_failed",
		"fields": fields,
	})
}

func dayStart(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return ""
}
