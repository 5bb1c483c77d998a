package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/campaigndesk/campaigndesk/internal/guard"
	"github.com/campaigndesk/campaigndesk/internal/models"
	"github.com/campaigndesk/campaigndesk/pkg/logger"
)

type PostgresDB struct {
	logger    *logger.Logger
	publisher models.ChangePublisher

	Conn *gorm.DB
}

var _ models.Repository = (*PostgresDB)(nil)

// NewPostgresDB connects to Postgres and brings the schema up to date, with
// SQL migrations when migrationsPath is set and AutoMigrate otherwise.
func NewPostgresDB(user, password, dbname, host string, port int, migrationsPath string, publisher models.ChangePublisher, logger *logger.Logger) (*PostgresDB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if migrationsPath != "" {
		if err := RunMigrations(db, migrationsPath); err != nil {
			return nil, err
		}
		logger.Info("Applied SQL migrations", "path", migrationsPath)
	} else if err := db.AutoMigrate(
		&models.Ad{},
		&models.BillingAccount{},
		&models.MonthlyStatement{},
		&models.LoginSession{},
		&models.BannedIP{},
		&models.AppSettings{},
		&models.AlertRecipient{},
		&models.CampaignMetrics{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL!")
	return NewFromGorm(db, publisher, logger), nil
}

// NewFromGorm wraps an open connection.
func NewFromGorm(db *gorm.DB, publisher models.ChangePublisher, logger *logger.Logger) *PostgresDB {
	return &PostgresDB{Conn: db, publisher: publisher, logger: logger}
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.Close()
}

func (db *PostgresDB) Ping(ctx context.Context) error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return storeErr("failed to get database connection", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storeErr("failed to ping database", err)
	}
	return nil
}

// storeErr classifies a gorm error.
func storeErr(op string, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, models.ErrConflict)
	}
	return fmt.Errorf("%s: %w: %w", op, models.ErrExternalStore, err)
}

func (db *PostgresDB) publish(table string, op models.ChangeOp, id string) {
	if db.publisher == nil {
		return
	}
	db.publisher.Publish(models.ChangeEvent{Table: table, Op: op, ID: id, At: time.Now().UTC()})
}

// Ads

func (db *PostgresDB) ListAds(ctx context.Context) ([]*models.Ad, error) {
	var ads []*models.Ad
	if err := db.Conn.WithContext(ctx).Order("created_at DESC, id").Find(&ads).Error; err != nil {
		return nil, storeErr("failed to list ads", err)
	}
	return ads, nil
}

func (db *PostgresDB) GetAd(ctx context.Context, id string) (*models.Ad, error) {
	var ad models.Ad
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&ad).Error; err != nil {
		return nil, storeErr("failed to get ad", err)
	}
	return &ad, nil
}

func (db *PostgresDB) CreateAd(ctx context.Context, ad *models.Ad) error {
	if err := db.Conn.WithContext(ctx).Create(ad).Error; err != nil {
		return storeErr("failed to create ad", err)
	}
	db.publish("ads", models.OpInsert, ad.ID)
	return nil
}

func (db *PostgresDB) UpdateAdFields(ctx context.Context, id string, fields map[string]interface{}) error {
	res := db.Conn.WithContext(ctx).Model(&models.Ad{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return storeErr("failed to update ad", res.Error)
	}
	if res.RowsAffected == 0 {
		return storeErr("failed to update ad", gorm.ErrRecordNotFound)
	}
	db.publish("ads", models.OpUpdate, id)
	return nil
}

func (db *PostgresDB) DeleteAd(ctx context.Context, id string) error {
	res := db.Conn.WithContext(ctx).Where("id = ?", id).Delete(&models.Ad{})
	if res.Error != nil {
		return storeErr("failed to delete ad", res.Error)
	}
	if res.RowsAffected == 0 {
		return storeErr("failed to delete ad", gorm.ErrRecordNotFound)
	}
	db.publish("ads", models.OpDelete, id)
	return nil
}

// Billing

func (db *PostgresDB) GetBillingAccount(ctx context.Context) (*models.BillingAccount, error) {
	var account models.BillingAccount
	if err := db.Conn.WithContext(ctx).Order("created_at").FirstOrCreate(&account).Error; err != nil {
		return nil, storeErr("failed to get billing account", err)
	}
	return &account, nil
}

func (db *PostgresDB) UpdateBillingAccount(ctx context.Context, fields map[string]interface{}) (*models.BillingAccount, error) {
	account, err := db.GetBillingAccount(ctx)
	if err != nil {
		return nil, err
	}
	if err := db.Conn.WithContext(ctx).Model(account).Updates(fields).Error; err != nil {
		return nil, storeErr("failed to update billing account", err)
	}
	db.publish("billing_accounts", models.OpUpdate, account.ID)
	return db.GetBillingAccount(ctx)
}

func (db *PostgresDB) ListStatements(ctx context.Context) ([]*models.MonthlyStatement, error) {
	var statements []*models.MonthlyStatement
	if err := db.Conn.WithContext(ctx).Order("year DESC, month DESC").Find(&statements).Error; err != nil {
		return nil, storeErr("failed to list monthly statements", err)
	}
	return statements, nil
}

func (db *PostgresDB) GetStatement(ctx context.Context, id string) (*models.MonthlyStatement, error) {
	var st models.MonthlyStatement
	if err := db.Conn.WithContext(ctx).Where("id = ?", id).First(&st).Error; err != nil {
		return nil, storeErr("failed to get monthly statement", err)
	}
	return &st, nil
}

func (db *PostgresDB) CreateStatement(ctx context.Context, st *models.MonthlyStatement) error {
	if err := db.Conn.WithContext(ctx).Create(st).Error; err != nil {
		return storeErr("failed to create monthly statement", err)
	}
	db.publish("monthly_statements", models.OpInsert, st.ID)
	return nil
}

func (db *PostgresDB) SaveStatement(ctx context.Context, st *models.MonthlyStatement) error {
	if err := db.Conn.WithContext(ctx).Save(st).Error; err != nil {
		return storeErr("failed to save monthly statement", err)
	}
	db.publish("monthly_statements", models.OpUpdate, st.ID)
	return nil
}

func (db *PostgresDB) DeleteStatement(ctx context.Context, id string) error {
	res := db.Conn.WithContext(ctx).Where("id = ?", id).Delete(&models.MonthlyStatement{})
	if res.Error != nil {
		return storeErr("failed to delete monthly statement", res.Error)
	}
	if res.RowsAffected == 0 {
		return storeErr("failed to delete monthly statement", gorm.ErrRecordNotFound)
	}
	db.publish("monthly_statements", models.OpDelete, id)
	return nil
}

// Login sessions

func (db *PostgresDB) CreateSession(ctx context.Context, device guard.DeviceInfo, loginTime time.Time) (string, error) {
	session := models.LoginSession{
		IPAddress:    optional(device.IPAddress),
		UserAgent:    optional(device.UserAgent),
		DeviceType:   optional(device.DeviceType),
		BrowserName:  optional(device.BrowserName),
		OSName:       optional(device.OSName),
		Country:      optional(device.Country),
		City:         optional(device.City),
		Latitude:     device.Latitude,
		Longitude:    device.Longitude,
		LoginTime:    loginTime,
		LastActivity: loginTime,
		IsActive:     true,
	}
	if err := db.Conn.WithContext(ctx).Create(&session).Error; err != nil {
		return "", storeErr("failed to create login session", err)
	}
	db.publish("login_sessions", models.OpInsert, session.ID)
	return session.SessionID, nil
}

func (db *PostgresDB) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	res := db.Conn.WithContext(ctx).Model(&models.LoginSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{"last_activity": at, "is_active": true})
	if res.Error != nil {
		return storeErr("failed to refresh login session", res.Error)
	}
	if res.RowsAffected == 0 {
		return storeErr("failed to refresh login session", gorm.ErrRecordNotFound)
	}
	return nil
}

func (db *PostgresDB) DeactivateSession(ctx context.Context, sessionID string, at time.Time) error {
	res := db.Conn.WithContext(ctx).Model(&models.LoginSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{"last_activity": at, "is_active": false})
	if res.Error != nil {
		return storeErr("failed to deactivate login session", res.Error)
	}
	db.publish("login_sessions", models.OpUpdate, sessionID)
	return nil
}

func (db *PostgresDB) ListSessions(ctx context.Context, limit int) ([]*models.LoginSession, error) {
	var sessions []*models.LoginSession
	q := db.Conn.WithContext(ctx).Order("login_time DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, storeErr("failed to list login sessions", err)
	}
	return sessions, nil
}

func (db *PostgresDB) DeactivateStaleSessions(ctx context.Context, lastActivityBefore, at time.Time) (int64, error) {
	res := db.Conn.WithContext(ctx).Model(&models.LoginSession{}).
		Where("is_active = ? AND last_activity < ?", true, lastActivityBefore).
		Updates(map[string]interface{}{"is_active": false, "updated_at": at})
	if res.Error != nil {
		return 0, storeErr("failed to deactivate stale sessions", res.Error)
	}
	if res.RowsAffected > 0 {
		db.publish("login_sessions", models.OpUpdate, "")
	}
	return res.RowsAffected, nil
}

// Banned IPs

func (db *PostgresDB) ListBannedIPs(ctx context.Context) ([]*models.BannedIP, error) {
	var bans []*models.BannedIP
	if err := db.Conn.WithContext(ctx).Order("banned_at DESC").Find(&bans).Error; err != nil {
		return nil, storeErr("failed to list banned ips", err)
	}
	return bans, nil
}

func (db *PostgresDB) UpsertBan(ctx context.Context, ban *models.BannedIP) error {
	err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ip_address"}},
		DoUpdates: clause.AssignmentColumns([]string{"reason", "banned_by", "banned_at", "is_active", "updated_at"}),
	}).Create(ban).Error
	if err != nil {
		return storeErr("failed to ban ip", err)
	}
	db.publish("banned_ips", models.OpUpdate, ban.IPAddress)
	return nil
}

func (db *PostgresDB) DeactivateBan(ctx context.Context, ip string) error {
	res := db.Conn.WithContext(ctx).Model(&models.BannedIP{}).
		Where("ip_address = ?", ip).
		Update("is_active", false)
	if res.Error != nil {
		return storeErr("failed to unban ip", res.Error)
	}
	if res.RowsAffected == 0 {
		return storeErr("failed to unban ip", gorm.ErrRecordNotFound)
	}
	db.publish("banned_ips", models.OpUpdate, ip)
	return nil
}

func (db *PostgresDB) GetActiveBan(ctx context.Context, ip string) (*models.BannedIP, error) {
	var ban models.BannedIP
	if err := db.Conn.WithContext(ctx).Where("ip_address = ? AND is_active = ?", ip, true).First(&ban).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeErr("failed to check banned ip", err)
	}
	return &ban, nil
}

// Settings

func (db *PostgresDB) GetSettings(ctx context.Context) (*models.AppSettings, error) {
	settings := models.DefaultSettings()
	if err := db.Conn.WithContext(ctx).Attrs(models.DefaultSettings()).FirstOrCreate(&settings, models.AppSettings{ID: 1}).Error; err != nil {
		return nil, storeErr("failed to get settings", err)
	}
	return &settings, nil
}

func (db *PostgresDB) SaveSettings(ctx context.Context, settings *models.AppSettings) error {
	settings.ID = 1
	if err := db.Conn.WithContext(ctx).Save(settings).Error; err != nil {
		return storeErr("failed to save settings", err)
	}
	db.publish("app_settings", models.OpUpdate, "")
	return nil
}

// Campaign metrics

func (db *PostgresDB) ListCampaignMetrics(ctx context.Context) ([]*models.CampaignMetrics, error) {
	var rows []*models.CampaignMetrics
	if err := db.Conn.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, storeErr("failed to list campaign metrics", err)
	}
	return rows, nil
}

func (db *PostgresDB) SaveCampaignMetrics(ctx context.Context, rows []models.CampaignMetrics) error {
	err := db.Conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Save(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return storeErr("failed to save campaign metrics", err)
	}
	for _, row := range rows {
		db.publish("campaign_metrics", models.OpUpdate, string(row.DateRange))
	}
	return nil
}

// Alert recipients

func (db *PostgresDB) AddAlertRecipient(ctx context.Context, recipient *models.AlertRecipient) error {
	err := db.Conn.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "channel"}, {Name: "address"}},
		DoUpdates: clause.AssignmentColumns([]string{"username"}),
	}).Create(recipient).Error
	if err != nil {
		return storeErr("failed to add alert recipient", err)
	}
	return nil
}

func (db *PostgresDB) ListAlertRecipients(ctx context.Context, channel models.AlertChannel) ([]*models.AlertRecipient, error) {
	var recipients []*models.AlertRecipient
	if err := db.Conn.WithContext(ctx).Where("channel = ?", channel).Order("id").Find(&recipients).Error; err != nil {
		return nil, storeErr("failed to list alert recipients", err)
	}
	return recipients, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
