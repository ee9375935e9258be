package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/arnavshah/plazas-api-go/pkg/auth"
	"github.com/arnavshah/plazas-api-go/pkg/database"
	"github.com/arnavshah/plazas-api-go/pkg/models"
	"github.com/arnavshah/plazas-api-go/pkg/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const claimsKey = "claims"

// Handler contains dependencies for the route handlers
type Handler struct {
	Service    *service.Service
	Store      *database.Store
	Tokens     *auth.Tokens
	AccessCode string
	Log        *zap.Logger
}

// AuthMiddleware verifies the JWT token and requires one of the given roles
func (h *Handler) AuthMiddleware(roles ...auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		// Strip "Bearer " if present
		token = strings.TrimPrefix(token, "Bearer ")

		claims, err := h.Tokens.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		allowed := len(roles) == 0
		for _, r := range roles {
			if claims.Role == r {
				allowed = true
				break
			}
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient role"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *auth.Claims {
	raw, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := raw.(*auth.Claims)
	return claims
}

// respondError maps service and store errors to status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrRankTaken):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidPreferences), errors.Is(err, service.ErrInvalidRank):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInconsistentData):
		c.JSON(http.StatusConflict, gin.H{"error": "Candidate data is inconsistent, see /admin/validate"})
	default:
		_ = c.Error(err)
		h.Log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// Login handles admin login
func (h *Handler) Login(c *gin.Context) {
	var req models.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.Store.FindMasterUser(c.Request.Context(), req.Username)
	if err != nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.Tokens.CreateToken(user.Username, auth.RoleAdmin, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer", "role": auth.RoleAdmin})
}

// CandidateLogin handles candidate login by national ID and access code
func (h *Handler) CandidateLogin(c *gin.Context) {
	var req models.CandidateLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !auth.CheckAccessCode(req.AccessCode, h.AccessCode) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid access code"})
		return
	}

	cand, err := h.Store.FindCandidateByNationalID(c.Request.Context(), req.NationalID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "No candidate with that national ID"})
			return
		}
		h.respondError(c, err)
		return
	}

	token, err := h.Tokens.CreateToken(cand.NationalID, auth.RoleCandidate, cand.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Could not create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"role":         auth.RoleCandidate,
		"candidate":    cand,
	})
}

// Me returns the logged-in candidate with their preference limit
func (h *Handler) Me(c *gin.Context) {
	claims := claimsFrom(c)
	cand, err := h.Service.Candidate(c.Request.Context(), claims.CandidateID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"candidate":       cand,
		"max_preferences": cand.Rank,
	})
}

// ListLocations returns every location with its current occupancy
func (h *Handler) ListLocations(c *gin.Context) {
	alloc, err := h.Service.Allocation(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	q := strings.ToLower(strings.TrimSpace(c.Query("q")))
	locations := make([]models.LocationStatus, 0, len(alloc.Statuses))
	for _, st := range alloc.Statuses {
		if q != "" &&
			!strings.Contains(strings.ToLower(st.Municipality), q) &&
			!strings.Contains(strings.ToLower(st.Department), q) {
			continue
		}
		locations = append(locations, st)
	}

	c.JSON(http.StatusOK, gin.H{
		"locations":   locations,
		"computed_at": alloc.At,
	})
}

// SavePreferences replaces the logged-in candidate's preference list
func (h *Handler) SavePreferences(c *gin.Context) {
	var req models.SavePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims := claimsFrom(c)
	list, err := h.Service.SavePreferences(c.Request.Context(), claims.CandidateID, req.Preferences)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"preferences": list})
}

// TogglePreference adds or removes one location from the logged-in candidate's list
func (h *Handler) TogglePreference(c *gin.Context) {
	var req models.TogglePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims := claimsFrom(c)
	list, changed, err := h.Service.TogglePreference(c.Request.Context(), claims.CandidateID, req.LocationID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if list == nil {
		list = []models.Preference{}
	}
	c.JSON(http.StatusOK, gin.H{"preferences": list, "changed": changed})
}
