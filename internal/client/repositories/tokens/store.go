// Package tokens persists the access/refresh credential pair. It has no
// logic beyond get, set and remove; refresh policy lives in the HTTP client.
package tokens

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kz4killua/course-alerts/internal/client/models"
	"github.com/kz4killua/course-alerts/internal/client/repositories/metadata"
	"github.com/kz4killua/course-alerts/internal/common"
	"github.com/kz4killua/course-alerts/internal/dbx"
)

// Store is the credential storage contract. Missing tokens read as "".
type Store interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) (string, error)
	SetAccessToken(ctx context.Context, token string) error
	SetPair(ctx context.Context, pair models.CredentialPair) error
	Clear(ctx context.Context) error
}

// SQLiteStore keeps the tokens in the metadata table so that a restarted
// client resumes the previous session.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) repo() metadata.Repository {
	return metadata.NewSQLiteRepository(s.db)
}

func (s *SQLiteStore) AccessToken(ctx context.Context) (string, error) {
	return s.get(ctx, common.AccessTokenKey)
}

func (s *SQLiteStore) RefreshToken(ctx context.Context) (string, error) {
	return s.get(ctx, common.RefreshTokenKey)
}

func (s *SQLiteStore) get(ctx context.Context, key string) (string, error) {
	v, err := s.repo().Get(ctx, key)
	if err != nil {
		return "", err
	}
	return string(v), nil
}

func (s *SQLiteStore) SetAccessToken(ctx context.Context, token string) error {
	return s.repo().Set(ctx, common.AccessTokenKey, []byte(token))
}

// SetPair stores both tokens atomically.
func (s *SQLiteStore) SetPair(ctx context.Context, pair models.CredentialPair) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Set(ctx, common.AccessTokenKey, []byte(pair.Access)); err != nil {
			return err
		}
		if err := repo.Set(ctx, common.RefreshTokenKey, []byte(pair.Refresh)); err != nil {
			return err
		}
		return nil
	})
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if err := s.repo().Delete(ctx, common.AccessTokenKey, common.RefreshTokenKey); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}
