package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Hocaabinn/sampah-keren-sub001/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateUser(ctx context.Context, user model.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, phone, address, role, verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, user.ID, user.Email, user.PasswordHash, user.FullName, user.Phone, user.Address, user.Role, user.Verified, user.CreatedAt, user.UpdatedAt)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, full_name, phone, address, role, verified, created_at, updated_at
		FROM users
		WHERE email = $1
	`, email)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.Phone,
		&user.Address,
		&user.Role,
		&user.Verified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *Store) GetUserByID(ctx context.Context, userID string) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, full_name, phone, address, role, verified, created_at, updated_at
		FROM users
		WHERE id = $1
	`, userID)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.Phone,
		&user.Address,
		&user.Role,
		&user.Verified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

type UserUpdate struct {
	FullName     *string
	Phone        *string
	Address      *string
	PasswordHash *string
}

func (s *Store) UpdateUser(ctx context.Context, userID string, update UserUpdate) (model.User, error) {
	var user model.User
	row := s.pool.QueryRow(ctx, `
		UPDATE users
		SET full_name     = COALESCE($2, full_name),
		    phone         = COALESCE($3, phone),
		    address       = COALESCE($4, address),
		    password_hash = COALESCE($5, password_hash),
		    updated_at    = $6
		WHERE id = $1
		RETURNING id, email, password_hash, full_name, phone, address, role, verified, created_at, updated_at
	`, userID, update.FullName, update.Phone, update.Address, update.PasswordHash, time.Now().UTC())
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.FullName,
		&user.Phone,
		&user.Address,
		&user.Role,
		&user.Verified,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *Store) MarkUserVerified(ctx context.Context, userID string, verifiedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users SET verified = TRUE, updated_at = $1 WHERE id = $2
	`, verifiedAt, userID)
	return err
}

func (s *Store) DeleteUnverifiedUsersBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM users WHERE verified = FALSE AND created_at < $1
	`, cutoff)
	return tag.RowsAffected(), err
}

func (s *Store) CreateRefreshSession(ctx context.Context, session model.RefreshSession) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_token_sessions (id, user_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, session.ID, session.UserID, session.TokenHash, session.CreatedAt, session.ExpiresAt, session.RevokedAt, session.UserAgent, session.IPAddress)
	return err
}

func (s *Store) GetRefreshSession(ctx context.Context, tokenHash string) (model.RefreshSession, error) {
	var session model.RefreshSession
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, token_hash, created_at, expires_at, revoked_at, user_agent, ip_address
		FROM refresh_token_sessions
		WHERE token_hash = $1
	`, tokenHash)
	err := row.Scan(&session.ID, &session.UserID, &session.TokenHash, &session.CreatedAt, &session.ExpiresAt, &session.RevokedAt, &session.UserAgent, &session.IPAddress)
	return session, err
}

func (s *Store) RevokeRefreshSession(ctx context.Context, sessionID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE refresh_token_sessions SET revoked_at = $1 WHERE id = $2`, revokedAt, sessionID)
	return err
}

func (s *Store) RevokeRefreshSessionsByUser(ctx context.Context, userID string, revokedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_token_sessions
		SET revoked_at = $1
		WHERE user_id = $2 AND revoked_at IS NULL
	`, revokedAt, userID)
	return err
}

func (s *Store) DeleteStaleRefreshSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM refresh_token_sessions
		WHERE expires_at < $1 OR revoked_at IS NOT NULL
	`, cutoff)
	return tag.RowsAffected(), err
}

func (s *Store) CreatePickupRequest(ctx context.Context, request model.PickupRequest) (model.PickupRequest, error) {
	var created model.PickupRequest
	row := s.pool.QueryRow(ctx, `
		INSERT INTO pickup_requests (id, user_id, address, pickup_date, pickup_time, waste_type, waste_quantity, intruksi, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, user_id, address, pickup_date, pickup_time, waste_type, waste_quantity, intruksi, status, created_at
	`, request.ID, request.UserID, request.Address, request.PickupDate, request.PickupTime, request.WasteType, request.Quantity, request.Intruksi, request.Status, request.CreatedAt)
	err := row.Scan(
		&created.ID,
		&created.UserID,
		&created.Address,
		&created.PickupDate,
		&created.PickupTime,
		&created.WasteType,
		&created.Quantity,
		&created.Intruksi,
		&created.Status,
		&created.CreatedAt,
	)
	return created, err
}

func (s *Store) GetPickupRequest(ctx context.Context, requestID string) (model.PickupRequest, error) {
	var request model.PickupRequest
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, address, pickup_date, pickup_time, waste_type, waste_quantity, intruksi, status, created_at
		FROM pickup_requests
		WHERE id = $1
	`, requestID)
	err := row.Scan(
		&request.ID,
		&request.UserID,
		&request.Address,
		&request.PickupDate,
		&request.PickupTime,
		&request.WasteType,
		&request.Quantity,
		&request.Intruksi,
		&request.Status,
		&request.CreatedAt,
	)
	return request, err
}

func (s *Store) ListPickupRequestsByUser(ctx context.Context, userID string, limit int) ([]model.PickupRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, address, pickup_date, pickup_time, waste_type, waste_quantity, intruksi, status, created_at
		FROM pickup_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPickupRequests(rows)
}

func (s *Store) ListPickupRequests(ctx context.Context, limit int) ([]model.PickupRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, address, pickup_date, pickup_time, waste_type, waste_quantity, intruksi, status, created_at
		FROM pickup_requests
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPickupRequests(rows)
}

func (s *Store) UpdatePickupStatus(ctx context.Context, requestID string, status model.PickupStatus) (model.PickupRequest, error) {
	var request model.PickupRequest
	row := s.pool.QueryRow(ctx, `
		UPDATE pickup_requests
		SET status = $2
		WHERE id = $1
		RETURNING id, user_id, address, pickup_date, pickup_time, waste_type, waste_quantity, intruksi, status, created_at
	`, requestID, status)
	err := row.Scan(
		&request.ID,
		&request.UserID,
		&request.Address,
		&request.PickupDate,
		&request.PickupTime,
		&request.WasteType,
		&request.Quantity,
		&request.Intruksi,
		&request.Status,
		&request.CreatedAt,
	)
	return request, err
}

type pickupRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanPickupRequests(rows pickupRows) ([]model.PickupRequest, error) {
	requests := make([]model.PickupRequest, 0)
	for rows.Next() {
		var request model.PickupRequest
		if err := rows.Scan(
			&request.ID,
			&request.UserID,
			&request.Address,
			&request.PickupDate,
			&request.PickupTime,
			&request.WasteType,
			&request.Quantity,
			&request.Intruksi,
			&request.Status,
			&request.CreatedAt,
		); err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, rows.Err()
}
