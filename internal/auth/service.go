package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kinship-app/backend/internal/database"
	"github.com/kinship-app/backend/internal/geo"
	"github.com/kinship-app/backend/internal/logger"
	"github.com/kinship-app/backend/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("account with this email already exists")
	ErrPhoneExists        = errors.New("account with this phone already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is deactivated")
)

// Service handles registration, login, and token issuance.
type Service struct {
	jwtSecret []byte
	tokenTTL  time.Duration
	geo       geo.Lookuper // nil disables location snapshots
}

// NewService creates a new authentication service.
func NewService(jwtSecret []byte, geoClient geo.Lookuper) *Service {
	return &Service{
		jwtSecret: jwtSecret,
		tokenTTL:  24 * time.Hour,
		geo:       geoClient,
	}
}

// AuthResponse is returned from register/login.
type AuthResponse struct {
	Token     string      `json:"token"`
	User      models.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// RegisterRequest is the native registration payload.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=1,max=80"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone" binding:"required,min=7,max=20"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest is the native login payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RequestMeta carries per-request client metadata into snapshots.
type RequestMeta struct {
	IP     string
	Device string
}

// Register creates a new account. Email and phone are unique; a duplicate
// of either is a conflict, never a second account.
func (s *Service) Register(ctx context.Context, req RegisterRequest, meta RequestMeta) (*AuthResponse, error) {
	var existing models.User
	err := database.DB.Where("LOWER(email) = LOWER(?)", req.Email).First(&existing).Error
	if err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	err = database.DB.Where("phone = ?", req.Phone).First(&existing).Error
	if err == nil {
		return nil, ErrPhoneExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hashedStr := string(hashed)

	snapshot := s.snapshot(ctx, meta)
	user := models.User{
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		PasswordHash:     &hashedStr,
		Role:             models.RoleUser,
		IsActive:         true,
		RegistrationMeta: snapshot,
	}

	if err := database.DB.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.recordLogin(&user, meta, snapshot)
	return s.generateAuthResponse(&user)
}

// Login authenticates with email/password and refreshes the login snapshot.
func (s *Service) Login(ctx context.Context, req LoginRequest, meta RequestMeta) (*AuthResponse, error) {
	var user models.User
	err := database.DB.Where("LOWER(email) = LOWER(?)", req.Email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	} else if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	if user.PasswordHash == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	snapshot := s.snapshot(ctx, meta)
	now := time.Now().UTC()
	user.LastLoginAt = &now
	user.LastLoginMeta = snapshot
	if err := database.DB.Save(&user).Error; err != nil {
		logger.WarnWithFields("failed to update login snapshot", err)
	}

	s.recordLogin(&user, meta, snapshot)
	return s.generateAuthResponse(&user)
}

// ExternalIdentity is a verified identity asserted by an external provider.
type ExternalIdentity struct {
	Email     string
	Name      string
	AvatarURL string
}

// UpsertByExternalIdentity resolves an externally issued identity to a local
// account, provisioning one if the email is unknown. Conflict policy: an
// existing account with the same email wins and is returned unchanged apart
// from the login snapshot; no duplicate account is ever created.
func (s *Service) UpsertByExternalIdentity(ctx context.Context, ident ExternalIdentity, meta RequestMeta) (*AuthResponse, error) {
	var user models.User
	err := database.DB.Where("LOWER(email) = LOWER(?)", ident.Email).First(&user).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		snapshot := s.snapshot(ctx, meta)
		user = models.User{
			Name:             ident.Name,
			Email:            ident.Email,
			AvatarURL:        ident.AvatarURL,
			Role:             models.RoleUser,
			IsActive:         true,
			RegistrationMeta: snapshot,
		}
		if err := database.DB.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("failed to provision user: %w", err)
		}
		s.recordLogin(&user, meta, snapshot)
	case err != nil:
		return nil, fmt.Errorf("database error: %w", err)
	default:
		if !user.IsActive {
			return nil, ErrAccountDisabled
		}
		snapshot := s.snapshot(ctx, meta)
		now := time.Now().UTC()
		user.LastLoginAt = &now
		user.LastLoginMeta = snapshot
		if err := database.DB.Save(&user).Error; err != nil {
			logger.WarnWithFields("failed to update login snapshot", err)
		}
		s.recordLogin(&user, meta, snapshot)
	}

	return s.generateAuthResponse(&user)
}

// snapshot resolves meta into a location snapshot; failures degrade to the
// raw IP/device so auth never blocks on the geo provider.
func (s *Service) snapshot(ctx context.Context, meta RequestMeta) *models.LocationSnapshot {
	snap := &models.LocationSnapshot{IP: meta.IP, Device: meta.Device}
	if s.geo == nil || meta.IP == "" {
		return snap
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	resolved, err := s.geo.Lookup(lookupCtx, meta.IP)
	if err != nil {
		logger.WarnWithFields("geo lookup failed", err)
		return snap
	}
	resolved.Device = meta.Device
	return resolved
}

func (s *Service) recordLogin(user *models.User, meta RequestMeta, snapshot *models.LocationSnapshot) {
	entry := models.LoginHistory{
		UserID:   user.ID,
		IP:       meta.IP,
		Device:   meta.Device,
		Location: snapshot,
	}
	if err := database.DB.Create(&entry).Error; err != nil {
		logger.WarnWithFields("failed to record login history", err)
	}
}

func (s *Service) generateAuthResponse(user *models.User) (*AuthResponse, error) {
	expiresAt := time.Now().Add(s.tokenTTL)

	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"role":    string(user.Role),
		"exp":     expiresAt.Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &AuthResponse{
		Token:     tokenString,
		User:      *user,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateToken validates a JWT token and returns fresh user data.
func (s *Service) ValidateToken(tokenString string) (*models.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, errors.New("invalid user_id in token")
	}

	var user models.User
	if err := database.DB.Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	return &user, nil
}
