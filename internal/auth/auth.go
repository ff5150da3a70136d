package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ukydev/fleet-pm/internal/clock"
	"github.com/ukydev/fleet-pm/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const actionPurpose = "pm_action"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// DefaultLinkTTL is how long an action link stays valid.
const DefaultLinkTTL = 72 * time.Hour

// Service signs and verifies notification action links
type Service struct {
	secret  []byte
	linkTTL time.Duration
	baseURL string
	clock   clock.Clock
}

// NewService creates a new action link service
func NewService(secret string, linkTTL time.Duration, baseURL string, c clock.Clock) (*Service, error) {
	if secret == "" {
		return nil, errors.New("action link secret is required")
	}
	if linkTTL <= 0 {
		linkTTL = DefaultLinkTTL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid action base url: %w", err)
	}
	return &Service{
		secret:  []byte(secret),
		linkTTL: linkTTL,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		clock:   clock.OrSystem(c),
	}, nil
}

// SignActionLink generates a JWT allowing userID to act on one work order
func (s *Service) SignActionLink(userID, workOrderID primitive.ObjectID) (string, error) {
	now := s.clock.Now()
	claims := jwt.MapClaims{
		"user_id":       userID.Hex(),
		"work_order_id": workOrderID.Hex(),
		"purpose":       actionPurpose,
		"exp":           now.Add(s.linkTTL).Unix(),
		"iat":           now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ActionURL implements workorder.LinkBuilder.
func (s *Service) ActionURL(userID, workOrderID primitive.ObjectID) (string, error) {
	token, err := s.SignActionLink(userID, workOrderID)
	if err != nil {
		return "", fmt.Errorf("failed to sign action link: %w", err)
	}
	return fmt.Sprintf("%s/work-orders/%s?token=%s", s.baseURL, workOrderID.Hex(), url.QueryEscape(token)), nil
}

// ValidateActionToken validates an action link token and returns its claims
func (s *Service) ValidateActionToken(tokenString string) (*models.ActionClaims, error) {
	// Remove "Bearer " prefix if present
	tokenString = strings.TrimPrefix(tokenString, "Bearer ")

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.clock.Now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if purpose, _ := claims["purpose"].(string); purpose != actionPurpose {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	workOrderID, ok := claims["work_order_id"].(string)
	if !ok {
		return nil, ErrInvalidToken
	}

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &models.ActionClaims{
		UserID:      userID,
		WorkOrderID: workOrderID,
		ExpiresAt:   time.Unix(int64(exp), 0).UTC(),
	}, nil
}
