// Package sqlite implements auth persistence over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/mhamrah/hamrah-auth/internal/platform/storage/sqlitemigrate"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/storage/sqlite/migrations"
	"github.com/mhamrah/hamrah-auth/internal/services/auth/user"
	_ "modernc.org/sqlite"
)

// Store implements every auth storage contract over a single SQLite file so
// all identity subflows share the same transaction and visibility boundaries.
type Store struct {
	sqlDB *sql.DB
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func toNullMillis(value *time.Time) any {
	if value == nil {
		return nil
	}
	return toMillis(*value)
}

func fromNullMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := fromMillis(value.Int64)
	return &t
}

// Open opens an auth SQLite store and applies bundled migrations.
//
// This keeps startup and schema evolution in one place, instead of requiring
// callers to coordinate migrations independently.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// DB returns the raw database handle for tests and tooling.
func (s *Store) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.sqlDB
}

// Close releases the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.Apply(context.Background(), s.sqlDB, migrations.FS)
}

func (s *Store) ensureDB() error {
	if s == nil || s.sqlDB == nil {
		return errors.New("sqlite store is not configured")
	}
	return nil
}

// PutUser inserts or updates a user record.
func (s *Store) PutUser(ctx context.Context, u user.User) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, email, name, picture, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			picture = excluded.picture,
			updated_at = excluded.updated_at`,
		u.ID, u.Email, u.Name, u.Picture, toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil && strings.Contains(err.Error(), "users.email") {
		return storage.ErrEmailTaken
	}
	return err
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, userID string) (user.User, error) {
	if err := s.ensureDB(); err != nil {
		return user.User{}, err
	}
	return s.scanUser(s.sqlDB.QueryRowContext(ctx,
		`SELECT id, email, name, picture, created_at, updated_at FROM users WHERE id = ?`, userID))
}

// GetUserByEmail returns a user by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	if err := s.ensureDB(); err != nil {
		return user.User{}, err
	}
	return s.scanUser(s.sqlDB.QueryRowContext(ctx,
		`SELECT id, email, name, picture, created_at, updated_at FROM users WHERE email = ?`,
		user.NormalizeEmail(email)))
}

func (s *Store) scanUser(row *sql.Row) (user.User, error) {
	var u user.User
	var createdAt, updatedAt int64
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return user.User{}, storage.ErrNotFound
		}
		return user.User{}, err
	}
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

// PutIdentity inserts or refreshes a provider identity link.
func (s *Store) PutIdentity(ctx context.Context, identity storage.Identity) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO user_identities (id, user_id, provider, subject, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(provider, subject) DO UPDATE SET
			updated_at = excluded.updated_at`,
		identity.ID, identity.UserID, identity.Provider, identity.Subject,
		toMillis(identity.CreatedAt), toMillis(identity.UpdatedAt),
	)
	return err
}

// GetIdentity returns the identity link for a provider subject.
func (s *Store) GetIdentity(ctx context.Context, provider, subject string) (storage.Identity, error) {
	if err := s.ensureDB(); err != nil {
		return storage.Identity{}, err
	}
	var identity storage.Identity
	var createdAt, updatedAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, user_id, provider, subject, created_at, updated_at
		FROM user_identities WHERE provider = ? AND subject = ?`,
		provider, subject,
	).Scan(&identity.ID, &identity.UserID, &identity.Provider, &identity.Subject, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Identity{}, storage.ErrNotFound
		}
		return storage.Identity{}, err
	}
	identity.CreatedAt = fromMillis(createdAt)
	identity.UpdatedAt = fromMillis(updatedAt)
	return identity, nil
}

// ListIdentities returns every provider link for a user.
func (s *Store) ListIdentities(ctx context.Context, userID string) ([]storage.Identity, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, user_id, provider, subject, created_at, updated_at
		FROM user_identities WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var identities []storage.Identity
	for rows.Next() {
		var identity storage.Identity
		var createdAt, updatedAt int64
		if err := rows.Scan(&identity.ID, &identity.UserID, &identity.Provider, &identity.Subject, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		identity.CreatedAt = fromMillis(createdAt)
		identity.UpdatedAt = fromMillis(updatedAt)
		identities = append(identities, identity)
	}
	return identities, rows.Err()
}

// PutCredential inserts or updates a WebAuthn credential.
func (s *Store) PutCredential(ctx context.Context, credential storage.Credential) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO credentials
		(id, user_id, public_key, sign_count, transports, user_verified, backup_eligible, backup_state, display_name, created_at, updated_at, last_used_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sign_count = excluded.sign_count,
			transports = excluded.transports,
			user_verified = excluded.user_verified,
			backup_eligible = excluded.backup_eligible,
			backup_state = excluded.backup_state,
			display_name = excluded.display_name,
			updated_at = excluded.updated_at,
			last_used_at = excluded.last_used_at`,
		credential.ID, credential.UserID, credential.PublicKey, credential.SignCount,
		strings.Join(credential.Transports, ","), boolToInt(credential.UserVerified),
		boolToInt(credential.BackupEligible), boolToInt(credential.BackupState),
		credential.DisplayName, toMillis(credential.CreatedAt), toMillis(credential.UpdatedAt),
		toNullMillis(credential.LastUsedAt),
	)
	return err
}

// GetCredential returns a credential by its encoded ID.
func (s *Store) GetCredential(ctx context.Context, credentialID string) (storage.Credential, error) {
	if err := s.ensureDB(); err != nil {
		return storage.Credential{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, user_id, public_key, sign_count, transports, user_verified, backup_eligible, backup_state, display_name, created_at, updated_at, last_used_at
		FROM credentials WHERE id = ?`, credentialID)
	return scanCredential(row.Scan)
}

// ListCredentials returns every credential registered to a user.
func (s *Store) ListCredentials(ctx context.Context, userID string) ([]storage.Credential, error) {
	if err := s.ensureDB(); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, user_id, public_key, sign_count, transports, user_verified, backup_eligible, backup_state, display_name, created_at, updated_at, last_used_at
		FROM credentials WHERE user_id = ? ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var credentials []storage.Credential
	for rows.Next() {
		credential, err := scanCredential(rows.Scan)
		if err != nil {
			return nil, err
		}
		credentials = append(credentials, credential)
	}
	return credentials, rows.Err()
}

func scanCredential(scan func(...any) error) (storage.Credential, error) {
	var credential storage.Credential
	var transports string
	var userVerified, backupEligible, backupState int
	var createdAt, updatedAt int64
	var lastUsedAt sql.NullInt64
	err := scan(&credential.ID, &credential.UserID, &credential.PublicKey, &credential.SignCount,
		&transports, &userVerified, &backupEligible, &backupState, &credential.DisplayName,
		&createdAt, &updatedAt, &lastUsedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Credential{}, storage.ErrNotFound
		}
		return storage.Credential{}, err
	}
	if transports != "" {
		credential.Transports = strings.Split(transports, ",")
	}
	credential.UserVerified = userVerified != 0
	credential.BackupEligible = backupEligible != 0
	credential.BackupState = backupState != 0
	credential.CreatedAt = fromMillis(createdAt)
	credential.UpdatedAt = fromMillis(updatedAt)
	credential.LastUsedAt = fromNullMillis(lastUsedAt)
	return credential, nil
}

// DeleteCredential removes a credential.
func (s *Store) DeleteCredential(ctx context.Context, credentialID string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, credentialID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// RenameCredential updates a credential's display name.
func (s *Store) RenameCredential(ctx context.Context, credentialID, displayName string, updatedAt time.Time) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE credentials SET display_name = ?, updated_at = ? WHERE id = ?`,
		displayName, toMillis(updatedAt), credentialID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// UpdateCredentialCounter conditionally advances the signature counter.
//
// The WHERE clause carries the compare-and-swap: the update only lands when
// the stored counter still equals the value the caller verified against.
func (s *Store) UpdateCredentialCounter(ctx context.Context, credentialID string, previous, next uint32, lastUsedAt time.Time) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE credentials SET sign_count = ?, last_used_at = ?, updated_at = ?
		WHERE id = ? AND sign_count = ?`,
		next, toMillis(lastUsedAt), toMillis(lastUsedAt), credentialID, previous)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Missing row and lost race report differently so the ceremony can
		// distinguish CredentialNotFound from ReplayDetected.
		if _, getErr := s.GetCredential(ctx, credentialID); getErr != nil {
			return getErr
		}
		return storage.ErrCounterConflict
	}
	return nil
}

// PutChallenge stores a single-use challenge.
func (s *Store) PutChallenge(ctx context.Context, challenge storage.Challenge) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO challenges (id, value, purpose, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		challenge.ID, challenge.Value, challenge.Purpose, challenge.UserID,
		toMillis(challenge.CreatedAt), toMillis(challenge.ExpiresAt))
	return err
}

// GetChallenge reads a challenge without consuming it.
func (s *Store) GetChallenge(ctx context.Context, id string) (storage.Challenge, error) {
	if err := s.ensureDB(); err != nil {
		return storage.Challenge{}, err
	}
	var challenge storage.Challenge
	var createdAt, expiresAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, value, purpose, user_id, created_at, expires_at FROM challenges WHERE id = ?`, id,
	).Scan(&challenge.ID, &challenge.Value, &challenge.Purpose, &challenge.UserID, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Challenge{}, storage.ErrNotFound
		}
		return storage.Challenge{}, err
	}
	challenge.CreatedAt = fromMillis(createdAt)
	challenge.ExpiresAt = fromMillis(expiresAt)
	return challenge, nil
}

// ConsumeChallenge atomically fetches and deletes a challenge.
//
// The read happens first, but the DELETE decides the winner: whichever caller
// actually removes the row owns the challenge, everyone else sees NotFound.
func (s *Store) ConsumeChallenge(ctx context.Context, id string) (storage.Challenge, error) {
	challenge, err := s.GetChallenge(ctx, id)
	if err != nil {
		return storage.Challenge{}, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM challenges WHERE id = ?`, id)
	if err != nil {
		return storage.Challenge{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.Challenge{}, err
	}
	if affected == 0 {
		return storage.Challenge{}, storage.ErrNotFound
	}
	return challenge, nil
}

// DeleteChallenge removes a challenge without returning it.
func (s *Store) DeleteChallenge(ctx context.Context, id string) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM challenges WHERE id = ?`, id)
	return err
}

// DeleteExpiredChallenges removes challenges past their expiry.
func (s *Store) DeleteExpiredChallenges(ctx context.Context, now time.Time) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM challenges WHERE expires_at <= ?`, toMillis(now))
	return err
}

// PutSession stores a web session.
func (s *Store) PutSession(ctx context.Context, session storage.Session) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, platform, user_agent, created_at, expires_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.Platform, session.UserAgent,
		toMillis(session.CreatedAt), toMillis(session.ExpiresAt), toNullMillis(session.RevokedAt))
	return err
}

// GetSession returns a session by its token.
func (s *Store) GetSession(ctx context.Context, id string) (storage.Session, error) {
	if err := s.ensureDB(); err != nil {
		return storage.Session{}, err
	}
	var session storage.Session
	var createdAt, expiresAt int64
	var revokedAt sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, user_id, platform, user_agent, created_at, expires_at, revoked_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.UserID, &session.Platform, &session.UserAgent, &createdAt, &expiresAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Session{}, storage.ErrNotFound
		}
		return storage.Session{}, err
	}
	session.CreatedAt = fromMillis(createdAt)
	session.ExpiresAt = fromMillis(expiresAt)
	session.RevokedAt = fromNullMillis(revokedAt)
	return session, nil
}

// RevokeSession marks a session revoked.
func (s *Store) RevokeSession(ctx context.Context, id string, revokedAt time.Time) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		toMillis(revokedAt), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// RevokeUserSessions revokes every live session for a user.
func (s *Store) RevokeUserSessions(ctx context.Context, userID string, revokedAt time.Time) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		toMillis(revokedAt), userID)
	return err
}

// DeleteExpiredSessions removes sessions past their expiry.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now))
	return err
}

// PutTokenPair stores an access/refresh token pair.
func (s *Store) PutTokenPair(ctx context.Context, pair storage.TokenPair) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO token_pairs
		(id, user_id, platform, user_agent, access_token, access_expires_at, refresh_token, refresh_expires_at, created_at, rotated_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		pair.ID, pair.UserID, pair.Platform, pair.UserAgent,
		pair.AccessToken, toMillis(pair.AccessExpiresAt),
		pair.RefreshToken, toMillis(pair.RefreshExpiresAt),
		toMillis(pair.CreatedAt), toNullMillis(pair.RotatedAt), toNullMillis(pair.RevokedAt))
	return err
}

// GetTokenPairByAccess returns the pair holding an access token.
func (s *Store) GetTokenPairByAccess(ctx context.Context, accessToken string) (storage.TokenPair, error) {
	return s.getTokenPair(ctx, "access_token", accessToken)
}

// GetTokenPairByRefresh returns the pair holding a refresh token.
func (s *Store) GetTokenPairByRefresh(ctx context.Context, refreshToken string) (storage.TokenPair, error) {
	return s.getTokenPair(ctx, "refresh_token", refreshToken)
}

func (s *Store) getTokenPair(ctx context.Context, column, token string) (storage.TokenPair, error) {
	if err := s.ensureDB(); err != nil {
		return storage.TokenPair{}, err
	}
	var pair storage.TokenPair
	var accessExpires, refreshExpires, createdAt int64
	var rotatedAt, revokedAt sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, user_id, platform, user_agent, access_token, access_expires_at, refresh_token, refresh_expires_at, created_at, rotated_at, revoked_at
		FROM token_pairs WHERE `+column+` = ?`, token,
	).Scan(&pair.ID, &pair.UserID, &pair.Platform, &pair.UserAgent,
		&pair.AccessToken, &accessExpires, &pair.RefreshToken, &refreshExpires,
		&createdAt, &rotatedAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TokenPair{}, storage.ErrNotFound
		}
		return storage.TokenPair{}, err
	}
	pair.AccessExpiresAt = fromMillis(accessExpires)
	pair.RefreshExpiresAt = fromMillis(refreshExpires)
	pair.CreatedAt = fromMillis(createdAt)
	pair.RotatedAt = fromNullMillis(rotatedAt)
	pair.RevokedAt = fromNullMillis(revokedAt)
	return pair, nil
}

// MarkTokenPairRotated retires a pair whose refresh token was exchanged.
//
// The guard on rotated_at makes concurrent exchanges of the same refresh
// token resolve to exactly one winner.
func (s *Store) MarkTokenPairRotated(ctx context.Context, pairID string, rotatedAt time.Time) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE token_pairs SET rotated_at = ?
		WHERE id = ? AND rotated_at IS NULL AND revoked_at IS NULL`,
		toMillis(rotatedAt), pairID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// RevokeUserTokenPairs revokes every live token pair for a user.
func (s *Store) RevokeUserTokenPairs(ctx context.Context, userID string, revokedAt time.Time) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE token_pairs SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		toMillis(revokedAt), userID)
	return err
}

// DeleteExpiredTokenPairs removes pairs whose refresh window has closed.
func (s *Store) DeleteExpiredTokenPairs(ctx context.Context, now time.Time) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM token_pairs WHERE refresh_expires_at <= ?`, toMillis(now))
	return err
}

// PutFlowState stores OAuth flow state keyed by state token.
func (s *Store) PutFlowState(ctx context.Context, state storage.FlowState) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO oauth_flow_states (state, provider, platform, code_verifier, redirect_uri, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		state.State, state.Provider, state.Platform, state.CodeVerifier, state.RedirectURI,
		toMillis(state.CreatedAt), toMillis(state.ExpiresAt))
	return err
}

// ConsumeFlowState atomically fetches and deletes flow state.
func (s *Store) ConsumeFlowState(ctx context.Context, state string) (storage.FlowState, error) {
	if err := s.ensureDB(); err != nil {
		return storage.FlowState{}, err
	}
	var flow storage.FlowState
	var createdAt, expiresAt int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT state, provider, platform, code_verifier, redirect_uri, created_at, expires_at
		FROM oauth_flow_states WHERE state = ?`, state,
	).Scan(&flow.State, &flow.Provider, &flow.Platform, &flow.CodeVerifier, &flow.RedirectURI, &createdAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.FlowState{}, storage.ErrNotFound
		}
		return storage.FlowState{}, err
	}
	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM oauth_flow_states WHERE state = ?`, state)
	if err != nil {
		return storage.FlowState{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.FlowState{}, err
	}
	if affected == 0 {
		return storage.FlowState{}, storage.ErrNotFound
	}
	flow.CreatedAt = fromMillis(createdAt)
	flow.ExpiresAt = fromMillis(expiresAt)
	return flow, nil
}

// DeleteExpiredFlowStates removes flow state past its expiry.
func (s *Store) DeleteExpiredFlowStates(ctx context.Context, now time.Time) error {
	if err := s.ensureDB(); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx, `DELETE FROM oauth_flow_states WHERE expires_at <= ?`, toMillis(now))
	return err
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
