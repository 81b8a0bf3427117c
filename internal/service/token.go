package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity - пользователь из access токена вместе со связкой пары.
// PartnerID и CoupleID пустые, если пара ещё не связана.
type Identity struct {
	UserID    uuid.UUID
	PartnerID uuid.UUID
	CoupleID  uuid.UUID
}

// TokenManager отвечает за выпуск и проверку JWT.
type TokenManager struct {
	accessSecret []byte
	accessTTL    time.Duration
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(accessSecret string, accessTTL time.Duration) *TokenManager {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	return &TokenManager{
		accessSecret: []byte(accessSecret),
		accessTTL:    accessTTL,
	}
}

// IssueAccess выпускает access токен. Используется сервисом авторизации
// и тестами; в проде токены обычно приходят уже подписанными.
func (m *TokenManager) IssueAccess(id Identity) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(m.accessTTL)

	claims := jwt.MapClaims{
		"sub": id.UserID.String(),
		"iat": now.Unix(),
		"exp": exp.Unix(),
	}
	if id.PartnerID != uuid.Nil {
		claims["partner_id"] = id.PartnerID.String()
	}
	if id.CoupleID != uuid.Nil {
		claims["couple_id"] = id.CoupleID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.accessSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess проверяет access токен и извлекает identity.
func (m *TokenManager) ParseAccess(token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный алгоритм подписи %v", t.Header["alg"])
		}
		return m.accessSecret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	if !parsed.Valid {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return Identity{}, err
	}

	id := Identity{UserID: userID}
	if id.PartnerID, err = optionalUUID(claims, "partner_id"); err != nil {
		return Identity{}, err
	}
	if id.CoupleID, err = optionalUUID(claims, "couple_id"); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func optionalUUID(claims jwt.MapClaims, key string) (uuid.UUID, error) {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return uuid.Nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return uuid.Nil, errors.New("некорректный claim " + key)
	}
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}
