package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/justinrpoole/143-assessment-sub003/app/models"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/session"
	"github.com/justinrpoole/143-assessment-sub003/internal/pkg/usercontext"
)

// UserContextMiddleware resolves the session into a UserContext for every
// request. The webhook route never carries a session, so it falls through as
// anonymous without any extra cost beyond the session lookup.
func UserContextMiddleware(c *fiber.Ctx) error {
	store := session.GetSessionStore()
	if store == nil {
		usercontext.SetUserContext(c, usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	sess, err := store.Get(c)
	if err != nil {
		usercontext.SetUserContext(c, usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	rawID, _ := sess.Get(session.KeyUserID).(string)
	userID, _ := strconv.ParseUint(rawID, 10, 64)
	if userID == 0 {
		usercontext.SetUserContext(c, usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	state, _ := sess.Get(session.KeyUserState).(string)
	if !models.IsValidUserState(state) {
		state = models.UserStateFreeEmail
	}

	usercontext.SetUserContext(c, usercontext.UserContext{
		UserID:     uint(userID),
		UserState:  state,
		IsLoggedIn: true,
	})
	return c.Next()
}
