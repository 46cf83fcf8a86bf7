// Package token выпускает и проверяет подписанные (HS256) bearer-токены
// с ограниченным сроком жизни.
//
// Один Codec - один контекст подписи: access- и refresh-токены создаются
// двумя независимыми экземплярами с разными секретами и TTL, поэтому
// токен одного вида никогда не проходит проверку другим.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrEmptySecret - секрет подписи не задан. Codec не создаётся.
	ErrEmptySecret = errors.New("signing secret is empty")
	// ErrInvalidTTL - TTL не положительный.
	ErrInvalidTTL = errors.New("token ttl must be positive")
	// ErrInvalidToken - подпись/алгоритм/формат/issuer/subject некорректны.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired - срок действия токена истёк.
	ErrTokenExpired = errors.New("token expired")
)

// Options - параметры контекста подписи.
type Options struct {
	Secret []byte
	TTL    time.Duration
	Issuer string
}

// Codec выпускает и проверяет токены одного вида. Безопасен для
// конкурентного использования: после создания не изменяется.
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option - функциональная опция Codec.
type Option func(*Codec)

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// New создаёт Codec. Пустой секрет - ошибка: подставлять значение
// по умолчанию нельзя.
func New(opts Options, extra ...Option) (*Codec, error) {
	const op = "token.New"

	if len(opts.Secret) == 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrEmptySecret)
	}

	if opts.TTL <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidTTL)
	}

	c := &Codec{
		secret: append([]byte(nil), opts.Secret...),
		ttl:    opts.TTL,
		issuer: opts.Issuer,
		now:    time.Now,
	}

	for _, o := range extra {
		o(c)
	}

	return c, nil
}

// TTL возвращает срок жизни выпускаемых токенов.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue выпускает токен для subject. iat округляется до секунды
// (точность NumericDate), exp = iat + TTL ровно.
func (c *Codec) Issue(subject uuid.UUID) (string, time.Time, error) {
	const op = "token.Issue"

	iat := c.now().UTC().Truncate(time.Second)
	exp := iat.Add(c.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   subject.String(),
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

// Verify проверяет подпись, алгоритм, issuer и срок действия и возвращает
// subject. Токен недействителен начиная с момента exp включительно.
func (c *Codec) Verify(tokenStr string) (uuid.UUID, error) {
	const op = "token.Verify"

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	if !tok.Valid {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	sub, err := uuid.Parse(claims.Subject)
	if err != nil || sub == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	return sub, nil
}
