package models

import "time"

// TokenPair - пара токенов, выдаваемая при аутентификации.
//
// Описание:
//   - AccessToken - короткоживущий JWT для доступа к API;
//   - RefreshToken - долгоживущий JWT; его текущее значение хранится
//     в слоте аккаунта (Account.RefreshToken);
//   - AccessExpiresAt - момент истечения access-токена (UTC).
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}
