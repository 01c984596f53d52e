package store

import (
	"context"
	"strings"

	core "github.com/DomeLiquid/paycore"
	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const verifiedTxIndex = `CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_requests_verified_tx
	ON payment_requests (resolved_tx_hash) WHERE status = 'verified'`

type Store struct {
	db *gorm.DB
}

var (
	_ core.PaymentRequestStore      = (*Store)(nil)
	_ core.VerificationAttemptStore = (*Store)(nil)
)

// Open picks the postgres driver for postgres DSNs and sqlite for everything else.
func Open(dsn string) (*Store, error) {
	var dialector gorm.Dialector
	if isPostgres(dsn) {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if !isPostgres(dsn) {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return New(db)
}

func New(db *gorm.DB) (*Store, error) {
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&core.PaymentRequest{}, &core.VerificationAttempt{}); err != nil {
		return errors.Wrap(err, "auto migrate")
	}
	if err := db.Exec(verifiedTxIndex).Error; err != nil {
		return errors.Wrap(err, "create verified tx index")
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") ||
		strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=")
}
