package session

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/gustavlms/gustav/errors"
	"github.com/gustavlms/gustav/database"
	"github.com/gustavlms/gustav/logger"
)

// DefaultTable is created by the bundled migrations.
const DefaultTable = "app_sessions"

// tablePattern allows "table" or "schema.table" and nothing else; the name
// is interpolated into SQL.
var tablePattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)?$`)

type sessionRow struct {
	SessionID     string    `gorm:"column:session_id;primaryKey"`
	Subject       string    `gorm:"column:sub;not null;index"`
	Roles         []string  `gorm:"column:roles;serializer:json;not null"`
	DisplayName   string    `gorm:"column:name;not null"`
	EmailVerified bool      `gorm:"column:email_verified;not null"`
	IDToken       string    `gorm:"column:id_token"`
	ExpiresAt     time.Time `gorm:"column:expires_at;not null;index"`
	CreatedAt     time.Time `gorm:"column:created_at"`
}

func (r *sessionRow) toSession() *Session {
	return &Session{
		ID:            r.SessionID,
		Subject:       r.Subject,
		Roles:         r.Roles,
		DisplayName:   r.DisplayName,
		EmailVerified: r.EmailVerified,
		IDToken:       r.IDToken,
		ExpiresAt:     r.ExpiresAt.UTC(),
	}
}

// DBStore persists sessions in a SQL table. Expired rows are filtered at
// query time and removed by DeleteExpired, which runs out of band.
type DBStore struct {
	db    *gorm.DB
	owner *database.DB
	table string
	now   func() time.Time
	log   *logger.Logger

	allowServiceRole bool
}

// DBOption configures a DBStore.
type DBOption func(*DBStore)

// WithTable overrides DefaultTable.
func WithTable(name string) DBOption {
	return func(s *DBStore) { s.table = name }
}

// WithDBClock overrides the store clock.
func WithDBClock(now func() time.Time) DBOption {
	return func(s *DBStore) { s.now = now }
}

// WithDBLogger sets the store logger.
func WithDBLogger(log *logger.Logger) DBOption {
	return func(s *DBStore) { s.log = log }
}

// WithAllowServiceRole permits privileged database roles on both
// constructors. Development only.
func WithAllowServiceRole() DBOption {
	return func(s *DBStore) { s.allowServiceRole = true }
}

func newDBStore(opts []DBOption) (*DBStore, error) {
	s := &DBStore{table: DefaultTable, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.NewNop()
	}
	s.log = s.log.WithComponent("sessions")
	if !tablePattern.MatchString(s.table) {
		return nil, apperrors.InvalidConfig("sessions.table", fmt.Sprintf("invalid table name %q", s.table))
	}
	return s, nil
}

// NewDBStore creates a store on an open connection. The table name is
// validated before the connection is used; on Postgres the connection's
// role is then checked like in NewDBStoreFromDSN.
func NewDBStore(db *gorm.DB, opts ...DBOption) (*DBStore, error) {
	s, err := newDBStore(opts)
	if err != nil {
		return nil, err
	}
	role, err := currentRole(db)
	if err != nil {
		return nil, database.FromDatabase(err)
	}
	if err := s.checkRole("database", role); err != nil {
		return nil, err
	}
	s.db = db
	return s, nil
}

// currentRole is the session role of a Postgres connection. Other dialects
// have no roles and report "".
var currentRole = func(db *gorm.DB) (string, error) {
	if db.Dialector == nil || db.Dialector.Name() != database.DriverPostgres {
		return "", nil
	}
	var role string
	if err := db.Raw("SELECT current_user").Scan(&role).Error; err != nil {
		return "", err
	}
	return role, nil
}

// checkRole refuses privileged roles unless WithAllowServiceRole was given.
func (s *DBStore) checkRole(field, role string) error {
	if !database.IsPrivilegedRole(role) {
		return nil
	}
	if !s.allowServiceRole {
		return apperrors.InvalidConfig(field,
			fmt.Sprintf("role %q bypasses row level security; use a limited role", role))
	}
	s.log.Warn("Session store uses a privileged database role", logger.Fields("role", role))
	return nil
}

// NewDBStoreFromDSN opens a Postgres connection for the store. Privileged
// roles are refused before connecting unless WithAllowServiceRole is given.
// The store owns the connection; call Close.
func NewDBStoreFromDSN(ctx context.Context, dsn string, opts ...DBOption) (*DBStore, error) {
	s, err := newDBStore(opts)
	if err != nil {
		return nil, err
	}

	user, err := database.DSNUser(dsn)
	if err != nil {
		return nil, apperrors.InvalidConfig("database_url", "unparsable DSN").WithCause(err)
	}
	if err := s.checkRole("database_url", user); err != nil {
		return nil, err
	}

	db, err := database.Open(ctx, database.Config{DSN: dsn, Driver: database.DriverPostgres}, s.log)
	if err != nil {
		return nil, err
	}
	s.owner = db
	s.db = db.GormDB
	return s, nil
}

var (
	_ Store   = (*DBStore)(nil)
	_ Sweeper = (*DBStore)(nil)
)

// Table returns the validated table name.
func (s *DBStore) Table() string { return s.table }

// EnsureSchema creates the table when missing. Production schemas come
// from the migrations; this serves SQLite and local setups.
func (s *DBStore) EnsureSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Table(s.table).AutoMigrate(&sessionRow{}); err != nil {
		return database.FromDatabase(err)
	}
	return nil
}

// Create implements Store.
func (s *DBStore) Create(ctx context.Context, in NewSession) (*Session, error) {
	sess, err := newSession(s.now(), in)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	row := &sessionRow{
		SessionID:     sess.ID,
		Subject:       sess.Subject,
		Roles:         sess.Roles,
		DisplayName:   sess.DisplayName,
		EmailVerified: sess.EmailVerified,
		IDToken:       sess.IDToken,
		ExpiresAt:     sess.ExpiresAt,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.db.WithContext(ctx).Table(s.table).Create(row).Error; err != nil {
		return nil, database.FromDatabase(err)
	}
	return sess, nil
}

// Get implements Store.
func (s *DBStore) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	var row sessionRow
	err := s.db.WithContext(ctx).Table(s.table).
		Where("session_id = ? AND expires_at > ?", id, s.now().UTC()).
		Take(&row).Error
	if database.IsNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, database.FromDatabase(err)
	}
	return row.toSession(), nil
}

// Delete implements Store.
func (s *DBStore) Delete(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Table(s.table).
		Where("session_id = ?", id).
		Delete(&sessionRow{}).Error
	if err != nil {
		return database.FromDatabase(err)
	}
	return nil
}

// DeleteExpired removes rows past their expiry and returns how many.
func (s *DBStore) DeleteExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Table(s.table).
		Where("expires_at <= ?", s.now().UTC()).
		Delete(&sessionRow{})
	if res.Error != nil {
		return 0, database.FromDatabase(res.Error)
	}
	if res.RowsAffected > 0 {
		s.log.Info("Expired sessions removed", logger.Fields("count", res.RowsAffected, "table", s.table))
	}
	return res.RowsAffected, nil
}

// Close releases a connection opened by NewDBStoreFromDSN.
func (s *DBStore) Close() error {
	if s.owner == nil {
		return nil
	}
	return s.owner.Close()
}
