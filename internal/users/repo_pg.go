package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"docvault/internal/access"
)

type PGRepo struct {
	DB *sql.DB
}

const userColumns = `id, email, full_name, picture_url, role, created_at, updated_at`

// Upsert inserts or refreshes the profile fields; role is only written on insert.
func (r *PGRepo) Upsert(ctx context.Context, user User) (User, error) {
	role := user.Role
	if role == "" {
		role = access.RoleUser
	}
	query := `
INSERT INTO users (id, email, full_name, picture_url, role, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now(), now())
ON CONFLICT (id) DO UPDATE SET
  email = EXCLUDED.email,
  full_name = EXCLUDED.full_name,
  picture_url = EXCLUDED.picture_url,
  updated_at = now()
RETURNING ` + userColumns
	row := r.DB.QueryRowContext(ctx, query,
		user.ID,
		user.Email,
		nullableString(user.FullName),
		nullableString(user.PictureURL),
		string(role),
	)
	return scanUser(row)
}

func (r *PGRepo) GetByID(ctx context.Context, userID string) (User, error) {
	query := `
SELECT ` + userColumns + `
FROM users
WHERE id = $1
LIMIT 1`
	user, err := scanUser(r.DB.QueryRowContext(ctx, query, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

func scanUser(row *sql.Row) (User, error) {
	var user User
	var fullName sql.NullString
	var pictureURL sql.NullString
	var role string
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&fullName,
		&pictureURL,
		&role,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return User{}, err
	}
	parsed, err := access.ParseRole(role)
	if err != nil {
		return User{}, fmt.Errorf("user %s: %w", user.ID, err)
	}
	user.Role = parsed
	user.FullName = fullName.String
	user.PictureURL = pictureURL.String
	return user, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
