package services

import (
  "errors"
  "strings"
  "github.com/jackc/pgx/v5/pgconn"
  "gorm.io/gorm"
  "github.com/connectplus/backend/internal/domain"
)

// MapError translates persistence failures into domain error codes.
// Errors already carrying a domain code pass through untouched; the
// original message is preserved for diagnostics on everything else.
func MapError(op string, err error) error {
  if err == nil {
    return nil
  }
  var engErr *domain.Error
  if errors.As(err, &engErr) {
    return err
  }
  if errors.Is(err, gorm.ErrRecordNotFound) {
    return domain.Wrap(domain.CodeNotFound, op, err)
  }

  var pgErr *pgconn.PgError
  if errors.As(err, &pgErr) {
    switch strings.TrimSpace(pgErr.Code) {
    case "23505":
      return domain.Wrap(domain.CodeConflict, op, err) // unique_violation
    case "23503":
      return domain.Wrap(domain.CodeValidation, op, err) // foreign_key_violation
    }
  }

  msg := strings.ToLower(strings.TrimSpace(err.Error()))
  switch {
  case strings.Contains(msg, "duplicate key"), strings.Contains(msg, "already exists"):
    return domain.Wrap(domain.CodeConflict, op, err)
  default:
    return domain.Wrap(domain.CodeInternal, op, err)
  }
}
