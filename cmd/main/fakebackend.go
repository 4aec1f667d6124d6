package main

import (
	"log"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/agroscan/agroscan-core/src/models"
)

// fakeBackend is an in-memory stand-in for the AgroScan auth backend so the
// demo commands work without server-side infrastructure. It accepts any
// parseable ID token and rotates tokens on refresh.
type fakeBackend struct {
	mu            sync.Mutex
	accessTokens  map[string]*models.UserProfile
	refreshTokens map[string]*models.UserProfile
}

func runFakeBackend() {
	port := os.Getenv("FAKE_BACKEND_PORT")
	if port == "" {
		port = "8081"
	}

	b := &fakeBackend{
		accessTokens:  make(map[string]*models.UserProfile),
		refreshTokens: make(map[string]*models.UserProfile),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()
	r.POST("/api/auth/google", b.handleGoogle)
	r.POST("/api/auth/refresh", b.handleRefresh)
	r.GET("/api/auth/verify", b.handleVerify)

	log.Printf("🚀 Fake auth backend running on port %s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Fake backend failed: %v", err)
	}
}

func (b *fakeBackend) issue(profile *models.UserProfile) models.TokenResponse {
	b.mu.Lock()
	defer b.mu.Unlock()

	resp := models.TokenResponse{
		AccessToken:  "at_" + uuid.New().String(),
		RefreshToken: "rt_" + uuid.New().String(),
		ExpiresIn:    3600,
	}
	b.accessTokens[resp.AccessToken] = profile
	b.refreshTokens[resp.RefreshToken] = profile

	return resp
}

func (b *fakeBackend) handleGoogle(c *gin.Context) {
	idToken := bearerToken(c)
	if idToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Missing identity assertion"})
		return
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid identity assertion"})
		return
	}

	email, _ := claims["email"].(string)
	if email == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Identity assertion missing email"})
		return
	}

	profile := &models.UserProfile{Email: email}
	if name, ok := claims["name"].(string); ok {
		profile.Name = name
	}
	if picture, ok := claims["picture"].(string); ok {
		profile.Picture = picture
	}

	c.JSON(http.StatusOK, b.issue(profile))
}

func (b *fakeBackend) handleRefresh(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing refresh token"})
		return
	}

	b.mu.Lock()
	profile, ok := b.refreshTokens[body.RefreshToken]
	if ok {
		delete(b.refreshTokens, body.RefreshToken)
	}
	b.mu.Unlock()

	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown refresh token"})
		return
	}

	c.JSON(http.StatusOK, b.issue(profile))
}

func (b *fakeBackend) handleVerify(c *gin.Context) {
	token := bearerToken(c)

	b.mu.Lock()
	profile, ok := b.accessTokens[token]
	b.mu.Unlock()

	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	c.JSON(http.StatusOK, profile)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
