/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/tomoncle/entitygate/types"
)

type SQLError int

const (
	UnknownErr SQLError = iota
	NoRowsErr
	NoColumnErr
	NoTableErr
	ExistTableErr
	DuplicateKeyErr
	NotNullViolationErr
	ForeignKeyViolationErr
	CheckConstraintViolationErr
	DataTruncatedErr
	InvalidTypeCastErr
	DeadlockErr
	LockTimeoutErr
	SerializationErr
)

var sqlErrorNames = map[SQLError]string{
	UnknownErr:                  "unknown",
	NoRowsErr:                   "no rows",
	NoColumnErr:                 "no column",
	NoTableErr:                  "no table",
	ExistTableErr:               "table exists",
	DuplicateKeyErr:             "duplicate key",
	NotNullViolationErr:         "not null violation",
	ForeignKeyViolationErr:      "foreign key violation",
	CheckConstraintViolationErr: "check constraint violation",
	DataTruncatedErr:            "data truncated",
	InvalidTypeCastErr:          "invalid type cast",
	DeadlockErr:                 "deadlock",
	LockTimeoutErr:              "lock timeout",
	SerializationErr:            "serialization failure",
}

func (e SQLError) String() string {
	if n, ok := sqlErrorNames[e]; ok {
		return n
	}
	return sqlErrorNames[UnknownErr]
}

var mysqlNumbers = map[uint16]SQLError{
	1054: NoColumnErr,
	1146: NoTableErr,
	1050: ExistTableErr,
	1062: DuplicateKeyErr,
	1048: NotNullViolationErr,
	1216: ForeignKeyViolationErr,
	1217: ForeignKeyViolationErr,
	1451: ForeignKeyViolationErr,
	1452: ForeignKeyViolationErr,
	3819: CheckConstraintViolationErr,
	1265: DataTruncatedErr,
	1213: DeadlockErr,
	1205: LockTimeoutErr,
}

var sqlStates = map[string]SQLError{
	"42703": NoColumnErr,
	"42p01": NoTableErr,
	"42p07": ExistTableErr,
	"23505": DuplicateKeyErr,
	"23502": NotNullViolationErr,
	"23503": ForeignKeyViolationErr,
	"23514": CheckConstraintViolationErr,
	"22001": DataTruncatedErr,
	"42804": InvalidTypeCastErr,
	"40p01": DeadlockErr,
	"55p03": LockTimeoutErr,
	"40001": SerializationErr,
}

// IsSqlError reports whether err came from the database and what class of
// failure it is. Driver error types are checked first, then the message.
func IsSqlError(err error) (is bool, sqlErr SQLError) {
	if err == nil {
		return false, UnknownErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return true, NoRowsErr
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		if e, ok := mysqlNumbers[mysqlErr.Number]; ok {
			return true, e
		}
		return true, UnknownErr
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true, sqlState(pgErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return true, sqlState(string(pqErr.Code))
	}

	s := strings.ToLower(err.Error())
	if i := strings.Index(s, "sqlstate "); i >= 0 && len(s) >= i+14 {
		if e, ok := sqlStates[s[i+9:i+14]]; ok {
			return true, e
		}
	}
	switch {
	case strings.Contains(s, "undefined column") || strings.Contains(s, "no such column"):
		return true, NoColumnErr
	case strings.Contains(s, "undefined table") || strings.Contains(s, "no such table"):
		return true, NoTableErr
	case strings.Contains(s, "already exists") && strings.Contains(s, "table"):
		return true, ExistTableErr
	case strings.Contains(s, "duplicate key value") || strings.Contains(s, "unique constraint failed"):
		return true, DuplicateKeyErr
	case strings.Contains(s, "not-null constraint") || strings.Contains(s, "not null constraint failed"):
		return true, NotNullViolationErr
	case strings.Contains(s, "foreign key constraint failed") || strings.Contains(s, "foreign key violation"):
		return true, ForeignKeyViolationErr
	case strings.Contains(s, "check constraint"):
		return true, CheckConstraintViolationErr
	case strings.Contains(s, "data truncated") || strings.Contains(s, "string data right truncation"):
		return true, DataTruncatedErr
	case strings.Contains(s, "datatype mismatch"):
		return true, InvalidTypeCastErr
	case strings.Contains(s, "deadlock"):
		return true, DeadlockErr
	case strings.Contains(s, "database is locked") || strings.Contains(s, "lock wait timeout"):
		return true, LockTimeoutErr
	case strings.Contains(s, "could not serialize"):
		return true, SerializationErr
	}
	return false, UnknownErr
}

func sqlState(code string) SQLError {
	if e, ok := sqlStates[strings.ToLower(code)]; ok {
		return e
	}
	return UnknownErr
}

// ClassifyError maps a store failure onto the gateway error kinds while
// keeping the driver error in the chain. Errors that already carry a kind
// are returned as is.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		types.ErrConcurrencyConflict, types.ErrNotFound, types.ErrTransactionFailure,
		types.ErrTranslation, types.ErrConfiguration, types.ErrDisposed,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	is, kind := IsSqlError(err)
	if !is {
		return err
	}
	switch kind {
	case NoRowsErr:
		return fmt.Errorf("%w: %w", types.ErrNotFound, err)
	case DuplicateKeyErr, DeadlockErr, LockTimeoutErr, SerializationErr:
		return fmt.Errorf("%w: %s: %w", types.ErrConcurrencyConflict, kind, err)
	case NoColumnErr, NoTableErr:
		return fmt.Errorf("%w: %s: %w", types.ErrConfiguration, kind, err)
	}
	return err
}
