package postgres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"tenantmail/backend/internal/storage"
)

// PostgreSQL SQLSTATE 错误码
const (
	pgSerializationFailure = "40001" // serialization_failure
	pgDeadlockDetected     = "40P01" // deadlock_detected
	pgLockNotAvailable     = "55P03" // lock_not_available
)

// MySQL 错误码
const (
	myDeadlock        = 1213 // ER_LOCK_DEADLOCK
	myLockWaitTimeout = 1205 // ER_LOCK_WAIT_TIMEOUT
)

// wrapTransient 把驱动层的瞬时并发错误包装为 storage.ErrTransientConcurrency，
// 其余错误原样返回。
func wrapTransient(err error) error {
	if err == nil {
		return nil
	}
	if isTransientErr(err) {
		return fmt.Errorf("%w: %v", storage.ErrTransientConcurrency, err)
	}
	return err
}

// isTransientErr 判断错误是否为可重试的并发错误
func isTransientErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
			return true
		}
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case myDeadlock, myLockWaitTimeout:
			return true
		}
		return false
	}

	return false
}

// isDuplicateErr 判断错误是否为唯一约束冲突
func isDuplicateErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062 // ER_DUP_ENTRY
	}

	// SQLite 等测试环境的兜底判断
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
