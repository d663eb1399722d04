package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/AndriyMelnyk/FinTrack/app/repository"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/session"
	"github.com/AndriyMelnyk/FinTrack/internal/pkg/usercontext"
)

// UserContextMiddleware sets up the complete user context for every request
// This centralizes user session handling and eliminates code duplication
func UserContextMiddleware(c *fiber.Ctx) error {
	// Get session with error handling
	sess, err := session.GetSessionStore().Get(c)
	if err != nil {
		// On error: set as anonymous user
		c.Locals("USER_CONTEXT", usercontext.UserContext{
			IsLoggedIn: false,
		})
		c.Locals(usercontext.KeyFromProtected, false)
		return c.Next()
	}

	// Get user ID from session
	rawID := sess.Get(usercontext.KeyUserID)
	userID := uuid.Nil
	if s, ok := rawID.(string); ok {
		if parsed, err := uuid.Parse(s); err == nil {
			userID = parsed
		}
	}
	if userID == uuid.Nil {
		// Anonymous user - no session data
		c.Locals("USER_CONTEXT", usercontext.UserContext{
			IsLoggedIn: false,
		})
		c.Locals(usercontext.KeyFromProtected, false)
		return c.Next()
	}

	// User is logged in - get additional data
	name := session.GetSessionValue(c, usercontext.KeyUserName)

	// Determine plan with session-first strategy
	plan := session.GetSessionValue(c, "user_plan")
	if plan == "" {
		plan = "free"
		repos := repository.GetGlobalRepositories()
		if sub, err := repos.Subscription.FindCurrentByUser(userID); err == nil && sub.IsActive() && sub.Plan != nil {
			plan = sub.Plan.Code
		}
		// cache in session for subsequent requests
		_ = session.SetSessionValue(c, "user_plan", plan)
	}

	// Set complete user context
	userCtx := usercontext.UserContext{
		UserID:     userID,
		Name:       name,
		IsLoggedIn: true,
		Plan:       plan,
	}
	c.Locals("USER_CONTEXT", userCtx)

	c.Locals(usercontext.KeyFromProtected, true)
	c.Locals(usercontext.KeyUserName, name)
	c.Locals(usercontext.KeyUserID, userID)

	return c.Next()
}
