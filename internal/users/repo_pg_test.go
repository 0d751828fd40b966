package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"docvault/internal/access"
)

var userRowColumns = []string{"id", "email", "full_name", "picture_url", "role", "created_at", "updated_at"}

func newMockRepo(t *testing.T) (*PGRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &PGRepo{DB: db}, mock
}

func TestPGUpsertNeverOverwritesRole(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO users .* ON CONFLICT \(id\) DO UPDATE SET email = EXCLUDED.email, full_name = EXCLUDED.full_name, picture_url = EXCLUDED.picture_url, updated_at = now\(\) RETURNING`).
		WithArgs("google:7", "a@example.com", "Ada", nil, "user").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("google:7", "a@example.com", "Ada", nil, "admin", now, now))

	user, err := repo.Upsert(context.Background(), User{ID: "google:7", Email: "a@example.com", FullName: "Ada"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if user.Role != access.RoleAdmin {
		t.Fatalf("expected stored role admin, got %q", user.Role)
	}
	if user.PictureURL != "" {
		t.Fatalf("expected empty picture, got %q", user.PictureURL)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGGetByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery("SELECT .* FROM users WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGGetByIDRejectsUnknownRole(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()
	mock.ExpectQuery("SELECT .* FROM users WHERE id = \\$1").
		WithArgs("u9").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u9", "u9@example.com", nil, nil, "owner", now, now))

	if _, err := repo.GetByID(context.Background(), "u9"); !errors.Is(err, access.ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
}
