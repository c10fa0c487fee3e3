// Copyright 2025 Alephnode Protocol

package handlers

import "database/sql"

func sqlNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func sqlNullInt64None() sql.NullInt64 {
	return sql.NullInt64{}
}
