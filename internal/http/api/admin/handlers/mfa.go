package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/allmovies/ultrapro/internal/models"
	"github.com/allmovies/ultrapro/internal/security"
	internalsettings "github.com/allmovies/ultrapro/internal/settings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// MFAHandler manages TOTP enrollment for the authenticated admin.
type MFAHandler struct {
	db *gorm.DB
}

// NewMFAHandler constructs an MFA handler.
func NewMFAHandler(db *gorm.DB) *MFAHandler {
	return &MFAHandler{db: db}
}

// Status reports whether TOTP is enabled for the authenticated admin.
func (h *MFAHandler) Status(c *gin.Context) {
	admin, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"totp_enabled": admin.TOTPSecret != ""})
}

// PrepareTOTP generates a fresh secret and provisioning URL. Nothing is
// persisted until ConfirmTOTP proves possession of the secret.
func (h *MFAHandler) PrepareTOTP(c *gin.Context) {
	admin, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	if admin.TOTPSecret != "" {
		c.JSON(http.StatusConflict, gin.H{"error": "totp already enabled"})
		return
	}

	secret, url, errProvision := security.ProvisionTOTP(issuerName(), admin.Username)
	if errProvision != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate totp secret failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"secret": secret, "url": url})
}

// confirmTOTPRequest defines the request body for TOTP confirmation.
type confirmTOTPRequest struct {
	Secret string `json:"secret"` // Secret returned by PrepareTOTP.
	Code   string `json:"code"`   // Current passcode for that secret.
}

// ConfirmTOTP verifies a passcode against the prepared secret and enables TOTP.
func (h *MFAHandler) ConfirmTOTP(c *gin.Context) {
	admin, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	if admin.TOTPSecret != "" {
		c.JSON(http.StatusConflict, gin.H{"error": "totp already enabled"})
		return
	}

	var body confirmTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	secret := strings.TrimSpace(body.Secret)
	if secret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing secret"})
		return
	}
	if !security.ValidateTOTP(body.Code, secret) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid code"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Updates(map[string]any{"totp_secret": secret, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enable totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// disableTOTPRequest defines the request body for disabling TOTP.
type disableTOTPRequest struct {
	Code string `json:"code"` // Current passcode.
}

// DisableTOTP turns TOTP off after verifying a current passcode.
func (h *MFAHandler) DisableTOTP(c *gin.Context) {
	admin, ok := h.loadAdmin(c)
	if !ok {
		return
	}
	if admin.TOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp not enabled"})
		return
	}

	var body disableTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if !security.ValidateTOTP(body.Code, admin.TOTPSecret) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}

	res := h.db.WithContext(c.Request.Context()).Model(&models.Admin{}).
		Where("id = ?", admin.ID).
		Updates(map[string]any{"totp_secret": "", "updated_at": time.Now().UTC()})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "disable totp failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// loadAdmin resolves the authenticated admin row, writing the error response
// itself on failure.
func (h *MFAHandler) loadAdmin(c *gin.Context) (*models.Admin, bool) {
	adminID, ok := adminIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing admin context"})
		return nil, false
	}
	var admin models.Admin
	if errFind := h.db.WithContext(c.Request.Context()).First(&admin, adminID).Error; errFind != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
		return nil, false
	}
	return &admin, true
}

// issuerName reads the display name used in provisioning URLs.
func issuerName() string {
	if raw, ok := internalsettings.DBConfigValue(internalsettings.SiteNameKey); ok {
		var name string
		if errUnmarshal := json.Unmarshal(raw, &name); errUnmarshal == nil {
			if name = strings.TrimSpace(name); name != "" {
				return name
			}
		}
	}
	return internalsettings.DefaultSiteName
}
