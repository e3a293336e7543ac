package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/evcraddock/carevisit/internal/db"
)

const (
	apiKeyBytes  = 32 // 256-bit keys
	apiKeyPrefix = "cv_"
)

var (
	// ErrInvalidKey is returned by Validate for unknown keys.
	ErrInvalidKey = errors.New("invalid API key")
	// ErrKeyNotFound is returned by Delete for unknown key ids.
	ErrKeyNotFound = errors.New("key not found")
)

// APIKey is the stored representation of an API key (no raw key).
type APIKey struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CaregiverID string     `json:"caregiver_id"`
	KeyPrefix   string     `json:"key_prefix"` // first 8 chars for identification
	CreatedAt   time.Time  `json:"created_at"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// APIKeyStore manages API keys.
type APIKeyStore struct {
	db  *db.DB
	now func() time.Time
}

// NewAPIKeyStore creates an API key store.
func NewAPIKeyStore(database *db.DB) *APIKeyStore {
	return &APIKeyStore{db: database, now: time.Now}
}

// Create generates a new API key for a caregiver.
// Returns the raw key (shown once to user) and the stored record.
func (s *APIKeyStore) Create(ctx context.Context, name, caregiverID string) (string, *APIKey, error) {
	if name == "" {
		return "", nil, fmt.Errorf("key name is required")
	}

	raw, err := generateAPIKey()
	if err != nil {
		return "", nil, fmt.Errorf("generating key: %w", err)
	}

	key := &APIKey{
		ID:          uuid.NewString(),
		Name:        name,
		CaregiverID: caregiverID,
		KeyPrefix:   raw[:8],
		CreatedAt:   s.now().UTC().Truncate(time.Second),
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		"INSERT INTO api_keys (id, name, caregiver_id, key_prefix, key_hash, created_at) VALUES (?, ?, ?, ?, ?, ?)"),
		key.ID, key.Name, key.CaregiverID, key.KeyPrefix, hashAPIKey(raw), key.CreatedAt,
	)
	if err != nil {
		return "", nil, fmt.Errorf("storing key: %w", err)
	}

	return raw, key, nil
}

// List returns all API keys (without the raw key), newest first.
func (s *APIKeyStore) List(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, caregiver_id, key_prefix, created_at, last_used_at FROM api_keys ORDER BY created_at DESC, name",
	)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Warn().Err(cerr).Msg("closing rows")
		}
	}()

	var keys []APIKey
	for rows.Next() {
		k, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, *k)
	}

	return keys, rows.Err()
}

// Delete removes an API key by ID.
func (s *APIKeyStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM api_keys WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if rows == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// Validate looks up a raw API key and records its use.
func (s *APIKeyStore) Validate(ctx context.Context, rawKey string) (*APIKey, error) {
	hash := hashAPIKey(rawKey)

	row := s.db.QueryRowContext(ctx, s.db.Rebind(
		"SELECT id, name, caregiver_id, key_prefix, created_at, last_used_at FROM api_keys WHERE key_hash = ?"), hash)
	key, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("validating key: %w", err)
	}

	now := s.now().UTC().Truncate(time.Second)
	if _, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE api_keys SET last_used_at = ? WHERE id = ?"), now, key.ID); err != nil {
		return nil, fmt.Errorf("recording key use: %w", err)
	}
	key.LastUsedAt = &now

	return key, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanKey(row rowScanner) (*APIKey, error) {
	var k APIKey
	var lastUsed sql.NullTime
	if err := row.Scan(&k.ID, &k.Name, &k.CaregiverID, &k.KeyPrefix, &k.CreatedAt, &lastUsed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning key: %w", err)
	}
	if lastUsed.Valid {
		t := lastUsed.Time
		k.LastUsedAt = &t
	}
	return &k, nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
