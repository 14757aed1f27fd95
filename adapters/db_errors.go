package adapters

import (
	"regexp"
	"strings"

	"github.com/soffa-projects/tenantdb-go/errors"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	pgUniqueViolation = "23505"
	pgUndefinedTable  = "42P01"
	pgUndefinedColumn = "42703"
	pgDuplicateTable  = "42P07"
	pgDuplicateColumn = "42701"
)

var sqlStatePattern = regexp.MustCompile(`\(SQLSTATE=([0-9A-Z]{5})\)`)

// pgCode returns the SQLSTATE of a postgres error, also when it only
// survives in the wrapped message.
func pgCode(err error) string {
	if err == nil {
		return ""
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C')
	}
	if m := sqlStatePattern.FindStringSubmatch(err.Error()); m != nil {
		return m[1]
	}
	return ""
}

// classifyDBError maps driver failures to the error taxonomy.
func classifyDBError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case pgCode(err) == pgUniqueViolation, strings.Contains(msg, "UNIQUE constraint failed"):
		return errors.Conflict("duplicate value: %s", detail(msg))
	case pgCode(err) == pgUndefinedColumn, strings.Contains(msg, "no such column"), strings.Contains(msg, "has no column named"):
		return errors.BadRequest("unknown column: %s", detail(msg))
	}
	return errors.Wrap(err, format, args...)
}

// The duplicate checks only apply to DDL, where a unique violation comes
// from the system catalogs when two sessions create the same object.

func isDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	code := pgCode(err)
	return code == pgDuplicateColumn || code == pgUniqueViolation || strings.Contains(err.Error(), "duplicate column name")
}

func isDuplicateTable(err error) bool {
	if err == nil {
		return false
	}
	code := pgCode(err)
	return code == pgDuplicateTable || code == pgUniqueViolation || strings.Contains(err.Error(), "already exists")
}

func isMissingTable(err error) bool {
	return err != nil && (pgCode(err) == pgUndefinedTable || strings.Contains(err.Error(), "no such table"))
}

func detail(msg string) string {
	if idx := strings.LastIndex(msg, ": "); idx >= 0 && idx+2 < len(msg) {
		return msg[idx+2:]
	}
	return msg
}
