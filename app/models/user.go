package models

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	STATUS_ACTIVE   = "active"
	STATUS_DISABLED = "disabled"
)

// MagicLinkTTL is how long a requested sign-in link stays valid.
const MagicLinkTTL = 15 * time.Minute

// User is the account record. Sign-in is magic-link only: a random token is
// mailed to the user and its bcrypt hash is kept here until verified.
type User struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	Email              string         `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	Status             string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active disabled"`
	MagicLinkTokenHash string         `gorm:"type:text" json:"-"`
	MagicLinkSentAt    *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	LastLoginAt        *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func CreateUser(email string) (*User, error) {
	u := &User{
		Email:  strings.ToLower(strings.TrimSpace(email)),
		Status: STATUS_ACTIVE,
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	return u, nil
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// GenerateMagicLinkToken creates a random sign-in token, stores its bcrypt
// hash and returns the plaintext token for the outbound email.
func (u *User) GenerateMagicLinkToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	token := hex.EncodeToString(b)

	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	u.MagicLinkTokenHash = string(hash)
	now := time.Now()
	u.MagicLinkSentAt = &now
	return token, nil
}

// CheckMagicLinkToken verifies a presented token against the stored hash and
// rejects tokens older than MagicLinkTTL.
func (u *User) CheckMagicLinkToken(token string) bool {
	if u.MagicLinkTokenHash == "" || u.MagicLinkSentAt == nil {
		return false
	}
	if time.Since(*u.MagicLinkSentAt) > MagicLinkTTL {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.MagicLinkTokenHash), []byte(token)) == nil
}

// ClearMagicLinkToken invalidates the stored token after a successful login.
func (u *User) ClearMagicLinkToken() {
	u.MagicLinkTokenHash = ""
	u.MagicLinkSentAt = nil
}
