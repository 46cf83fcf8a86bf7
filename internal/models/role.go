package models

import (
	"fmt"
	"strings"
)

// Role - метка роли. Набор ролей закрытый.
type Role string

const (
	// RoleUser - обычный пользователь, выдаётся при регистрации.
	RoleUser Role = "USER"
	// RoleAdmin - администратор: доступ к /users.
	RoleAdmin Role = "ADMIN"
)

// ValidRoles - все допустимые роли.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// ParseRole приводит строку к Role (без учёта регистра и пробелов по краям).
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range ValidRoles {
		if r == v {
			return r, nil
		}
	}

	return "", fmt.Errorf("unknown role %q", s)
}

// ParseRoles конвертирует строки из хранилища в роли.
// Неизвестные значения пропускаются: они не дают никаких прав.
func ParseRoles(ss []string) []Role {
	out := make([]Role, 0, len(ss))
	for _, s := range ss {
		if r, err := ParseRole(s); err == nil {
			out = append(out, r)
		}
	}

	return out
}

// RoleStrings - обратная к ParseRoles конвертация для записи в хранилище.
func RoleStrings(roles []Role) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}

	return out
}
