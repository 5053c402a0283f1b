// Package auth проверяет токены доступа, выданные внешним сервисом
// аутентификации. Выпуск и продление сессий — не наша зона ответственности:
// здесь только верификация подписи и извлечение актора из claims.
package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "docspace/pkg/errors"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Actor — аутентифицированный пользователь в рамках одного запроса
type Actor struct {
	ID     uuid.UUID `json:"id"`
	TeamID uuid.UUID `json:"team_id"`
	Role   Role      `json:"role"`
}

type claims struct {
	TeamID string `json:"team_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// VerifyToken проверяет подпись и срок действия токена и возвращает актора
func (v *Verifier) VerifyToken(tokenString string) (*Actor, error) {
	var c claims
	token, err := jwt.ParseWithClaims(tokenString, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("failed to parse token: %w", err), apperrors.ErrAuthenticationRequired)
	}
	if !token.Valid {
		return nil, apperrors.Clone(apperrors.ErrAuthenticationRequired, "token is not valid")
	}

	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("invalid subject claim: %w", err), apperrors.ErrAuthenticationRequired)
	}
	teamID, err := uuid.Parse(c.TeamID)
	if err != nil {
		return nil, apperrors.Wrap(fmt.Errorf("invalid team_id claim: %w", err), apperrors.ErrAuthenticationRequired)
	}

	role := Role(c.Role)
	switch role {
	case RoleAdmin, RoleMember, RoleViewer:
	default:
		return nil, apperrors.Clone(apperrors.ErrAuthenticationRequired, "unknown role in token")
	}

	return &Actor{ID: userID, TeamID: teamID, Role: role}, nil
}

// VerifyRequest извлекает актора из заголовка Authorization
func (v *Verifier) VerifyRequest(r *http.Request) (*Actor, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, apperrors.Clone(apperrors.ErrAuthenticationRequired, "no authorization header")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, apperrors.Clone(apperrors.ErrAuthenticationRequired, "invalid authorization header")
	}

	return v.VerifyToken(parts[1])
}

// OptionalActor возвращает актора, если заголовок присутствует и валиден,
// и nil без ошибки, если заголовка нет. Используется на маршрутах, где
// доступ может давать публичная ссылка без аутентификации.
func (v *Verifier) OptionalActor(r *http.Request) (*Actor, error) {
	if r.Header.Get("Authorization") == "" {
		return nil, nil
	}
	return v.VerifyRequest(r)
}
