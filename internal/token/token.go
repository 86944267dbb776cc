// Пакет token — выпуск и проверка HS256 JWT сессии пользователя.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/bigkaa/objektpro/internal/domain/model"
)

// Ошибки проверки токена.
var (
	// ErrTokenMalformed — строка не является JWT.
	ErrTokenMalformed = errors.New("токен имеет неверный формат")
	// ErrTokenRejected — JWT разобран, но не прошёл проверку
	// (подпись, срок действия, issuer, claims).
	ErrTokenRejected = errors.New("токен недействителен")
)

// Claims — claims токена сессии.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Issuer — выпуск токенов.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer создаёт Issuer с общим секретом HMAC.
func NewIssuer(secret []byte, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue выпускает токен для субъекта. Возвращает строку токена и время истечения.
func (i *Issuer) Issue(id model.Identity) (string, time.Time, error) {
	now := i.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(i.ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.UserID, 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: id.Email,
		Name:  id.Name,
		Role:  string(id.Role),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, expiresAt, nil
}

// Verifier — проверка токенов.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewVerifier создаёт Verifier. leeway — допустимое отклонение часов.
func NewVerifier(secret []byte, issuer string, leeway time.Duration) *Verifier {
	return &Verifier{secret: secret, issuer: issuer, leeway: leeway, now: time.Now}
}

// Verify проверяет подпись, срок действия и issuer токена
// и возвращает субъект. Ошибки: ErrTokenMalformed или ErrTokenRejected.
func (v *Verifier) Verify(tokenString string) (model.Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(v.issuer),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return model.Identity{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
		}
		return model.Identity{}, fmt.Errorf("%w: %v", ErrTokenRejected, err)
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return model.Identity{}, fmt.Errorf("%w: некорректный sub %q", ErrTokenRejected, claims.Subject)
	}
	role := model.Role(claims.Role)
	if !role.Valid() {
		return model.Identity{}, fmt.Errorf("%w: неизвестная роль %q", ErrTokenRejected, claims.Role)
	}

	return model.Identity{
		UserID: userID,
		Email:  claims.Email,
		Name:   claims.Name,
		Role:   role,
	}, nil
}
