package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/warehouse-auth/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

const userColumns = "id,email,password_hash,name,role,is_manager,status,otp_code,otp_expiry,created_at,updated_at"

// UserRepo is the MySQL credential store over the `users` table. Affected
// row counts assume the DSN sets clientFoundRows=true (see database.Open).
type UserRepo struct{ DB *sql.DB }

// NewUserRepo wraps an open MySQL pool.
func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts u and returns its ID. u.Email is expected to be normalized.
func (r *UserRepo) Create(ctx context.Context, u model.User) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, name, role, is_manager, status) VALUES (?,?,?,?,?,?)",
		u.Email, u.PasswordHash, u.Name, u.Role, u.IsManager, u.Status)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email)
	return scanUser(row)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	row := r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return scanUser(row)
}

// GetAuthByID loads only the fields the authentication gate needs.
func (r *UserRepo) GetAuthByID(ctx context.Context, id uint64) (model.User, error) {
	var u model.User
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,role,status,is_manager FROM users WHERE id=? LIMIT 1", id).
		Scan(&u.ID, &u.Email, &u.Role, &u.Status, &u.IsManager)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// SetOTP stores code and expiry in a single statement so neither column is
// ever written without the other.
func (r *UserRepo) SetOTP(ctx context.Context, id uint64, code string, expiry time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET otp_code=?, otp_expiry=? WHERE id=?", code, expiry.UTC(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// ConsumeOTP clears the pending OTP only if it still equals code and has not
// expired at now. It reports whether this call consumed it; of two
// concurrent callers with the same code at most one sees true.
func (r *UserRepo) ConsumeOTP(ctx context.Context, id uint64, code string, now time.Time) (bool, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET otp_code=NULL, otp_expiry=NULL WHERE id=? AND otp_code=? AND otp_expiry>?",
		id, code, now.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ClearOTP drops any pending OTP.
func (r *UserRepo) ClearOTP(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET otp_code=NULL, otp_expiry=NULL WHERE id=?", id)
	return err
}

// Update applies the non-nil fields of upd.
func (r *UserRepo) Update(ctx context.Context, id uint64, upd model.UserUpdate) error {
	if upd.Empty() {
		_, err := r.GetAuthByID(ctx, id)
		return err
	}
	var (
		sets []string
		args []any
	)
	if upd.Name != nil {
		sets = append(sets, "name=?")
		args = append(args, *upd.Name)
	}
	if upd.Role != nil {
		sets = append(sets, "role=?")
		args = append(args, *upd.Role)
	}
	if upd.IsManager != nil {
		sets = append(sets, "is_manager=?")
		args = append(args, *upd.IsManager)
	}
	if upd.Status != nil {
		sets = append(sets, "status=?")
		args = append(args, *upd.Status)
	}
	args = append(args, id)
	res, err := r.DB.ExecContext(ctx,
		fmt.Sprintf("UPDATE users SET %s WHERE id=?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func scanUser(row *sql.Row) (model.User, error) {
	var (
		u       model.User
		otpCode sql.NullString
		otpExp  sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.IsManager, &u.Status,
		&otpCode, &otpExp, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, err
	}
	if otpCode.Valid && otpExp.Valid {
		u.OTPLogin = &model.OTPLogin{Code: otpCode.String, Expiry: otpExp.Time}
	}
	return u, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDuplicateEntry
	}
	return false
}
