// internal/handlers/auth.go
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"translator-back/internal/activity"
	"translator-back/internal/auth"
	"translator-back/internal/metrics"
	"translator-back/internal/middleware"
	"translator-back/internal/models"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type SignupRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AuthDeps is what the account handlers share.
type AuthDeps struct {
	DB           *gorm.DB
	Tokens       *auth.TokenService
	Audit        *activity.Recorder
	BcryptCost   int
	SecureCookie bool
}

func Signup(d AuthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SignupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		email := normalizeEmail(req.Email)

		// Check if user exists
		var existing models.User
		err := d.DB.WithContext(c.Request.Context()).Where("email = ?", email).First(&existing).Error
		if err == nil {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Error("failed to look up user", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), d.BcryptCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}

		user := models.User{
			Email:    email,
			Password: string(hashed),
			Name:     strings.TrimSpace(req.Name),
		}
		if err := insertUser(d.DB.WithContext(c.Request.Context()), &user); err != nil {
			if errors.Is(err, errEmailTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
				return
			}
			slog.Error("failed to create user", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
			return
		}

		access, ok := d.startSession(c, user.ID)
		if !ok {
			return
		}

		e := activity.FromRequest(c, user.ID, models.ActionCreate, models.EntityUser)
		e.EntityID = user.ID
		d.Audit.Record(c.Request.Context(), e)

		c.JSON(http.StatusCreated, gin.H{
			"message":     "User created successfully",
			"accessToken": access,
		})
	}
}

var errEmailTaken = errors.New("email already registered")

// insertUser creates the row. The unique index on email settles signups
// racing past the existence check.
func insertUser(db *gorm.DB, user *models.User) error {
	err := db.Create(user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errEmailTaken
	}
	return err
}

func Login(d AuthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// Find user
		var user models.User
		if err := d.DB.WithContext(c.Request.Context()).Where("email = ?", normalizeEmail(req.Email)).First(&user).Error; err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid credentials"})
			return
		}

		// Check password
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			e := activity.FromRequest(c, user.ID, models.ActionLogin, models.EntityUser)
			e.Outcome = models.OutcomeFailed
			d.Audit.Record(c.Request.Context(), e)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid credentials"})
			return
		}

		access, ok := d.startSession(c, user.ID)
		if !ok {
			return
		}
		d.Audit.Record(c.Request.Context(), activity.FromRequest(c, user.ID, models.ActionLogin, models.EntityUser))

		c.JSON(http.StatusOK, gin.H{
			"message":     "Login successful",
			"accessToken": access,
			"user":        toUserResponse(user),
		})
	}
}

// Logout revokes the refresh tokens of the cookie's owner. It succeeds
// without a valid cookie so a client can always clear its session.
func Logout(d AuthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if refresh, err := c.Cookie(middleware.RefreshCookie); err == nil && refresh != "" {
			claims, err := d.Tokens.ValidateRefreshToken(c.Request.Context(), refresh)
			if err == nil {
				if err := d.Tokens.RevokeRefreshTokens(c.Request.Context(), claims.UserID); err != nil {
					slog.Error("failed to revoke refresh tokens", "user_id", claims.UserID, "error", err)
				}
				d.Audit.Record(c.Request.Context(), activity.FromRequest(c, claims.UserID, models.ActionLogout, models.EntityRefreshToken))
			}
		}

		d.setRefreshCookie(c, "", -1)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// RefreshAccessToken trades the refresh cookie for a new access token and
// rotates the cookie.
func RefreshAccessToken(d AuthDeps) gin.HandlerFunc {
	return func(c *gin.Context) {
		refresh, err := c.Cookie(middleware.RefreshCookie)
		if err != nil || refresh == "" {
			metrics.TokenRefreshTotal.WithLabelValues("endpoint", metrics.OutcomeFailure).Inc()
			c.JSON(http.StatusForbidden, gin.H{"error": "Refresh token missing"})
			return
		}

		claims, err := d.Tokens.ValidateRefreshToken(c.Request.Context(), refresh)
		if err != nil {
			metrics.TokenRefreshTotal.WithLabelValues("endpoint", metrics.OutcomeFailure).Inc()
			c.JSON(http.StatusForbidden, gin.H{"error": "Invalid or expired refresh token"})
			return
		}

		access, ok := d.startSession(c, claims.UserID)
		if !ok {
			return
		}
		metrics.TokenRefreshTotal.WithLabelValues("endpoint", metrics.OutcomeSuccess).Inc()
		c.JSON(http.StatusOK, gin.H{"accessToken": access})
	}
}

func GetMe(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.UserID(c)

		var user models.User
		err := db.WithContext(c.Request.Context()).Where("id = ?", userID).First(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		if err != nil {
			slog.Error("failed to load user", "user_id", userID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}

		c.JSON(http.StatusOK, toUserResponse(user))
	}
}

// startSession rotates the refresh cookie and returns a new access token.
// On failure the response is already written.
func (d AuthDeps) startSession(c *gin.Context, userID string) (string, bool) {
	refresh, _, err := d.Tokens.RotateRefreshToken(c.Request.Context(), userID)
	if err != nil {
		slog.Error("failed to rotate refresh token", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return "", false
	}
	access, err := d.Tokens.IssueAccessToken(userID)
	if err != nil {
		slog.Error("failed to issue access token", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return "", false
	}

	d.setRefreshCookie(c, refresh, int(d.Tokens.RefreshTTL().Seconds()))
	return access, true
}

func (d AuthDeps) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(middleware.RefreshCookie, value, maxAge, "/", "", d.SecureCookie, true)
}

func toUserResponse(u models.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, Name: u.Name}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
