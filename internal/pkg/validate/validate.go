// Package validate проверяет форму входных данных auth-эндпойнтов до того,
// как они попадут в сервисный слой.
//
// Правила:
//   - username: 3..25 символов;
//   - email: формат RFC 5322 (net/mail), без display name;
//   - password: 6..32 символа и не больше 72 байт (предел bcrypt);
//   - usernameOrEmail при логине: не короче 3 символов.
package validate

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	UsernameMin = 3
	UsernameMax = 25
	PasswordMin = 6
	PasswordMax = 32
	// PasswordMaxBytes - предел bcrypt: более длинный ввод он не хэширует.
	PasswordMaxBytes = 72
	LoginMin         = 3
)

// ErrInvalid - базовая ошибка валидации; конкретное поле в тексте.
var ErrInvalid = errors.New("validation failed")

// FieldError описывает нарушение для одного поля.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string { return e.Field + ": " + e.Message }

// Errors - набор нарушений. Unwrap отдаёт ErrInvalid, чтобы работал errors.Is.
type Errors []FieldError

func (es Errors) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalid, es.Summary())
}

// Summary перечисляет нарушения через "; " (безопасно для ответа клиенту).
func (es Errors) Summary() string {
	msgs := make([]string, 0, len(es))
	for _, e := range es {
		msgs = append(msgs, e.Error())
	}

	return strings.Join(msgs, "; ")
}

func (es Errors) Unwrap() error { return ErrInvalid }

func (es Errors) orNil() error {
	if len(es) == 0 {
		return nil
	}

	return es
}

// Registration проверяет поля регистрации.
func Registration(username, email, password string) error {
	var errs Errors

	if n := utf8.RuneCountInString(strings.TrimSpace(username)); n < UsernameMin || n > UsernameMax {
		errs = append(errs, FieldError{"username", fmt.Sprintf("must be %d..%d characters", UsernameMin, UsernameMax)})
	}

	if !Email(email) {
		errs = append(errs, FieldError{"email", "invalid email format"})
	}

	if err := passwordLength(password); err != nil {
		errs = append(errs, *err)
	}

	return errs.orNil()
}

// AccountUpdate проверяет частичное обновление учётной записи администратором:
// nil-поле не меняется, но хотя бы одно поле должно быть передано.
// Набор ролей, если передан, не может быть пустым; допустимость значений
// проверяет сервис (models.ParseRole).
func AccountUpdate(username, email *string, roles []string) error {
	if username == nil && email == nil && roles == nil {
		return Errors{{"body", "at least one of username, email, roles is required"}}
	}

	var errs Errors

	if username != nil {
		if n := utf8.RuneCountInString(strings.TrimSpace(*username)); n < UsernameMin || n > UsernameMax {
			errs = append(errs, FieldError{"username", fmt.Sprintf("must be %d..%d characters", UsernameMin, UsernameMax)})
		}
	}

	if email != nil && !Email(*email) {
		errs = append(errs, FieldError{"email", "invalid email format"})
	}

	if roles != nil && len(roles) == 0 {
		errs = append(errs, FieldError{"roles", "must not be empty"})
	}

	return errs.orNil()
}

// Login проверяет поля входа.
func Login(usernameOrEmail, password string) error {
	var errs Errors

	if utf8.RuneCountInString(strings.TrimSpace(usernameOrEmail)) < LoginMin {
		errs = append(errs, FieldError{"usernameOrEmail", fmt.Sprintf("must be at least %d characters", LoginMin)})
	}

	if err := passwordLength(password); err != nil {
		errs = append(errs, *err)
	}

	return errs.orNil()
}

// RefreshToken проверяет, что токен передан.
func RefreshToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return Errors{{"token", "is required"}}
	}

	return nil
}

// Email сообщает, является ли строка «голым» адресом (без имени и угловых скобок).
func Email(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}

	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}

	return addr.Name == "" && addr.Address == s
}

func passwordLength(pw string) *FieldError {
	if n := utf8.RuneCountInString(pw); n < PasswordMin || n > PasswordMax {
		return &FieldError{"password", fmt.Sprintf("must be %d..%d characters", PasswordMin, PasswordMax)}
	}

	if len(pw) > PasswordMaxBytes {
		return &FieldError{"password", fmt.Sprintf("must not exceed %d bytes", PasswordMaxBytes)}
	}

	return nil
}
