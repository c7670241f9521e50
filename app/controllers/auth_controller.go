package controllers

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/justinrpoole/143-assessment-sub003/app/models"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/analytics"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/billing"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/database"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/env"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/session"
)

// LoginRequestBody is the body for POST /api/v1/auth/login/request.
type LoginRequestBody struct {
	Email string `json:"email" validate:"required,email,min=5,max=200"`
	Next  string `json:"next" validate:"omitempty,max=200"`
}

// HandleLoginRequest starts a magic-link sign-in. The account is created on
// first contact, so this doubles as the email capture point. The response is
// the same whether or not the address was known before.
func HandleLoginRequest(c *fiber.Ctx) error {
	var req LoginRequestBody
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_request_body"})
	}
	if err := validator.New().Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_email"})
	}

	db := database.GetDB()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var user models.User
	created := false
	err := db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		newUser, cerr := models.CreateUser(email)
		if cerr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_email"})
		}
		if cerr := db.Create(newUser).Error; cerr != nil {
			log.Errorf("[Auth] User create failed for %s: %v", email, cerr)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "login_request_failed"})
		}
		user = *newUser
		created = true
	} else if err != nil {
		log.Errorf("[Auth] User lookup failed for %s: %v", email, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "login_request_failed"})
	}
	if !user.IsActive() {
		// Disabled accounts get the same neutral answer as everyone else.
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "message": "check_your_email"})
	}

	repo := billing.NewRepository(db)
	ent, err := repo.GetEntitlementByUserID(user.ID)
	if err == nil && ent == nil {
		if uerr := repo.UpsertEntitlement(&models.UserEntitlement{
			UserID:    user.ID,
			UserState: models.UserStateFreeEmail,
		}); uerr != nil {
			log.Errorf("[Auth] Entitlement init failed for user %d: %v", user.ID, uerr)
		}
	}

	token, err := user.GenerateMagicLinkToken()
	if err != nil {
		log.Errorf("[Auth] Token generation failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "login_request_failed"})
	}
	if err := db.Save(&user).Error; err != nil {
		log.Errorf("[Auth] Token persist failed for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "login_request_failed"})
	}

	next := req.Next
	if next == "" || !strings.HasPrefix(next, "/") {
		next = "/portal"
	}
	magicLink := fmt.Sprintf("%s/api/v1/auth/login/verify?uid=%d&token=%s&next=%s",
		env.GetEnv("PUBLIC_DOMAIN", "http://localhost:4000"), user.ID, token, url.QueryEscape(next))

	billing.NewDispatcher(repo).QueueEmail(user.ID, models.EmailJobTypeMagicLinkLogin, map[string]interface{}{
		"magic_link_url": magicLink,
	})

	userState := models.UserStateFreeEmail
	if ent != nil {
		userState = ent.UserState
	}
	if created {
		analytics.Emit(analytics.Event{
			EventName:   analytics.EventEmailCaptured,
			SourceRoute: "/api/v1/auth/login/request",
			UserState:   userState,
			UserID:      user.ID,
		})
	}
	analytics.Emit(analytics.Event{
		EventName:   analytics.EventMagicLinkSent,
		SourceRoute: "/api/v1/auth/login/request",
		UserState:   userState,
		UserID:      user.ID,
	})

	resp := fiber.Map{"ok": true, "message": "check_your_email"}
	if env.IsDev() {
		resp["dev_magic_link"] = magicLink
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// HandleLoginVerify consumes a magic link from the email and establishes the
// session. Invalid or expired links bounce back to the login page.
func HandleLoginVerify(c *fiber.Ctx) error {
	uid, err := strconv.ParseUint(c.Query("uid"), 10, 64)
	token := strings.TrimSpace(c.Query("token"))
	if err != nil || uid == 0 || token == "" {
		return c.Redirect("/login?error=link_invalid", fiber.StatusSeeOther)
	}

	db := database.GetDB()
	var user models.User
	if err := db.Where("id = ?", uint(uid)).First(&user).Error; err != nil {
		return c.Redirect("/login?error=link_invalid", fiber.StatusSeeOther)
	}
	if !user.IsActive() || !user.CheckMagicLinkToken(token) {
		return c.Redirect("/login?error=link_invalid", fiber.StatusSeeOther)
	}

	user.ClearMagicLinkToken()
	if err := db.Model(&user).Updates(map[string]interface{}{
		"magic_link_token_hash": "",
		"magic_link_sent_at":    nil,
		"last_login_at":         gorm.Expr("CURRENT_TIMESTAMP"),
	}).Error; err != nil {
		log.Errorf("[Auth] Login finalize failed for user %d: %v", user.ID, err)
		return c.Redirect("/login?error=login_failed", fiber.StatusSeeOther)
	}

	userState := models.UserStateFreeEmail
	if ent, eerr := billing.NewRepository(db).GetEntitlementByUserID(user.ID); eerr == nil && ent != nil {
		userState = ent.UserState
	}

	if err := session.SetSessionValue(c, session.KeyUserID, strconv.FormatUint(uint64(user.ID), 10)); err != nil {
		log.Errorf("[Auth] Session write failed for user %d: %v", user.ID, err)
		return c.Redirect("/login?error=login_failed", fiber.StatusSeeOther)
	}
	_ = session.SetSessionValue(c, session.KeyUserState, userState)

	next := c.Query("next", "/portal")
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = "/portal"
	}
	return c.Redirect(next, fiber.StatusSeeOther)
}

// HandleLogout drops the caller's session.
func HandleLogout(c *fiber.Ctx) error {
	if err := session.Destroy(c); err != nil {
		log.Warnf("[Auth] Session destroy failed: %v", err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
