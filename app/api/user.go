package api

import "github.com/gofiber/fiber/v2"

// UserIDKey holds the caller's subject in fiber locals.
const UserIDKey = "user_id"

// UserID returns the caller's subject, or "" when unknown.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(UserIDKey).(string)
	return id
}
