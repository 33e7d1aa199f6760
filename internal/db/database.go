package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ubuygold/ledgerpool/internal/config"
	"github.com/ubuygold/ledgerpool/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateAccount is returned when the (provider, credential) pair already exists.
	ErrDuplicateAccount = errors.New("account with this credential already exists")
)

// Service is the persistence surface of the account pool.
type Service interface {
	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccount(ctx context.Context, id string) (*model.Account, error)
	FindAccountByCredential(ctx context.Context, provider model.Provider, credential string) (*model.Account, error)
	ListAccounts(ctx context.Context, provider model.Provider) ([]model.Account, error)
	ListAccountsByStatus(ctx context.Context, status model.Status) ([]model.Account, error)
	FindCandidateAccounts(ctx context.Context, provider model.Provider, now time.Time) ([]model.Account, error)
	SaveAccount(ctx context.Context, account *model.Account) error
	UpdateAccountFields(ctx context.Context, id string, fields map[string]any) error
	UpdateAccountStatus(ctx context.Context, id string, status model.Status) (model.Status, error)
	DeleteAccount(ctx context.Context, id string) error
	Close() error
	GetDB() *gorm.DB
}

type gormService struct {
	db *gorm.DB
}

// Init initializes the database connection based on the provided configuration.
func Init(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&model.Account{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	return db, nil
}

// NewService opens the database and returns a Service backed by it.
func NewService(cfg config.DatabaseConfig) (Service, error) {
	db, err := Init(cfg)
	if err != nil {
		return nil, err
	}
	return &gormService{db: db}, nil
}

// NewServiceFromDB wraps an already opened connection.
func NewServiceFromDB(db *gorm.DB) Service {
	return &gormService{db: db}
}

func (s *gormService) GetDB() *gorm.DB {
	return s.db
}

func (s *gormService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *gormService) CreateAccount(ctx context.Context, account *model.Account) error {
	err := s.db.WithContext(ctx).Create(account).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateAccount
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s *gormService) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var account model.Account
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}
	return &account, nil
}

func (s *gormService) FindAccountByCredential(ctx context.Context, provider model.Provider, credential string) (*model.Account, error) {
	var account model.Account
	err := s.db.WithContext(ctx).
		Where("provider = ? AND credential = ?", provider, credential).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up %s credential: %w", provider, err)
	}
	return &account, nil
}

// ListAccounts returns every account, or only those of provider when it is
// non-empty, ordered by provider, then priority descending, then age.
func (s *gormService) ListAccounts(ctx context.Context, provider model.Provider) ([]model.Account, error) {
	var accounts []model.Account
	q := s.db.WithContext(ctx).Model(&model.Account{})
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	if err := q.Order("provider asc").Order("priority desc").Order("created_at asc").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (s *gormService) ListAccountsByStatus(ctx context.Context, status model.Status) ([]model.Account, error) {
	var accounts []model.Account
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("priority desc").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s accounts: %w", status, err)
	}
	return accounts, nil
}

// FindCandidateAccounts returns the active accounts that still have capacity
// and have not passed their trial horizon, sorted by priority descending and
// least recent use. Rate limits and monthly quotas are left to the caller.
func (s *gormService) FindCandidateAccounts(ctx context.Context, provider model.Provider, now time.Time) ([]model.Account, error) {
	var accounts []model.Account
	q := s.db.WithContext(ctx).
		Where("status = ?", model.StatusActive).
		Where("total_capacity = 0 OR remaining_capacity > 0").
		Where("plan_type = ? OR trial_ends_at IS NULL OR trial_ends_at > ?", model.PlanPaid, now.UTC())
	if provider != "" {
		q = q.Where("provider = ?", provider)
	}
	if err := q.Order("priority desc").Order("last_used_at asc").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to query candidate accounts: %w", err)
	}
	return accounts, nil
}

// SaveAccount writes every column of account, as admin edits do. A row deleted in the meantime
// is not recreated.
func (s *gormService) SaveAccount(ctx context.Context, account *model.Account) error {
	result := s.db.WithContext(ctx).Model(account).Select("*").Omit("created_at").Updates(account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to save account %s: %w", account.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateAccountFields writes only the given columns of the account with id.
// Keys are column names.
func (s *gormService) UpdateAccountFields(ctx context.Context, id string, fields map[string]any) error {
	result := s.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return fmt.Errorf("failed to update account %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateAccountStatus moves the account with id to status unless it is
// disabled, and returns the status the row holds afterwards.
func (s *gormService) UpdateAccountStatus(ctx context.Context, id string, status model.Status) (model.Status, error) {
	result := s.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ? AND status <> ?", id, model.StatusDisabled).
		Update("status", status)
	if result.Error != nil {
		return "", fmt.Errorf("failed to update status of account %s: %w", id, result.Error)
	}
	if result.RowsAffected > 0 {
		return status, nil
	}

	var current model.Account
	if err := s.db.WithContext(ctx).Select("status").Where("id = ?", id).First(&current).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrAccountNotFound
		}
		return "", fmt.Errorf("failed to read status of account %s: %w", id, err)
	}
	return current.Status, nil
}

func (s *gormService) DeleteAccount(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Account{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete account %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
