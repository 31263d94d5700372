package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/allmovies/ultrapro/internal/models"
	"github.com/allmovies/ultrapro/internal/security"
	internalsettings "github.com/allmovies/ultrapro/internal/settings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// defaultAdminUsername is the account created on first boot.
const defaultAdminUsername = "admin"

// generatedPasswordLength sizes the bootstrap admin password.
const generatedPasswordLength = 16

// HasAdminInitialized reports whether at least one admin account exists.
func HasAdminInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("nil db")
	}
	if !conn.Migrator().HasTable(&models.Admin{}) {
		return false, nil
	}
	var count int64
	if errCount := conn.Model(&models.Admin{}).Count(&count).Error; errCount != nil {
		return false, errCount
	}
	return count > 0, nil
}

// EnsureAdmin creates the initial admin account with a generated password
// when no admin exists yet. The password is logged exactly once.
func EnsureAdmin(conn *gorm.DB) error {
	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return fmt.Errorf("app: check admin state: %w", errInit)
	}
	if initialized {
		return nil
	}

	password, errGen := security.GenerateRandomString(generatedPasswordLength)
	if errGen != nil {
		return fmt.Errorf("app: generate admin password: %w", errGen)
	}
	if errCreate := CreateAdminUserWithConn(conn, defaultAdminUsername, password, internalsettings.DefaultSiteName); errCreate != nil {
		return errCreate
	}
	log.Warnf("created initial admin %q with password %q, change it after first login", defaultAdminUsername, password)
	return nil
}

// CreateAdminUserWithConn creates the first admin user and seeds the site name.
func CreateAdminUserWithConn(conn *gorm.DB, username, password, siteName string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	now := time.Now().UTC()
	admin := models.Admin{
		Username:     username,
		Password:     hashedPassword,
		Active:       true,
		IsSuperAdmin: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		return fmt.Errorf("create admin: %w", errCreate)
	}

	if errSite := upsertSiteNameSetting(conn, siteName); errSite != nil {
		return errSite
	}

	return nil
}

// upsertSiteNameSetting stores the SITE_NAME setting in the database.
func upsertSiteNameSetting(conn *gorm.DB, siteName string) error {
	normalized := strings.TrimSpace(siteName)
	if normalized == "" {
		normalized = internalsettings.DefaultSiteName
	}
	payload, errMarshal := json.Marshal(normalized)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal SITE_NAME setting: %w", errMarshal)
	}

	now := time.Now().UTC()
	res := conn.Model(&models.Setting{}).Where("key = ?", internalsettings.SiteNameKey).
		Updates(map[string]any{
			"value":      payload,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("db: update SITE_NAME setting: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	setting := models.Setting{
		Key:       internalsettings.SiteNameKey,
		Value:     payload,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create SITE_NAME setting: %w", errCreate)
	}
	return nil
}
