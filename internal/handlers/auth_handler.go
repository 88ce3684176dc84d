package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/harentsoar/clinic-api/internal/middleware"
	"github.com/harentsoar/clinic-api/internal/models"
	"github.com/harentsoar/clinic-api/internal/repository"
	"github.com/harentsoar/clinic-api/internal/utils"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges email and password for an access token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.Accounts.GetUserByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !utils.CheckPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.Tokens.Generate(user.ID, user.Role)
	if err != nil {
		h.Log.Error().Err(err).Msg("generate token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not generate token"})
		return
	}
	h.Log.Info().Int64("user_id", user.ID).Str("role", user.Role).Msg("login")
	c.JSON(http.StatusOK, gin.H{"token": token, "user": user})
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64(middleware.ContextUserID)
}

func currentRole(c *gin.Context) string {
	return c.GetString(middleware.ContextUserRole)
}

// GetCurrentUser returns the authenticated user with their role profile.
func (h *Handler) GetCurrentUser(c *gin.Context) {
	acct, err := h.Accounts.GetAccount(c.Request.Context(), currentUserID(c))
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, acct)
}

type updateContactRequest struct {
	FirstName *string         `json:"firstName"`
	LastName  *string         `json:"lastName"`
	Phone     *string         `json:"phone"`
	Address   *models.Address `json:"address"`
}

// UpdateCurrentUser changes the caller's own contact details.
func (h *Handler) UpdateCurrentUser(c *gin.Context) {
	var req updateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.FirstName == nil && req.LastName == nil && req.Phone == nil && req.Address == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No update fields provided"})
		return
	}
	if (req.FirstName != nil && *req.FirstName == "") || (req.LastName != nil && *req.LastName == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name fields cannot be empty"})
		return
	}

	err := h.Accounts.UpdateContact(c.Request.Context(), currentUserID(c), repository.ContactUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Address:   req.Address,
	})
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated successfully"})
}
