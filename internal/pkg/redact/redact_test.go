package redact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmail_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "обычный адрес", in: "alice@example.com", want: "al***@example.com"},
		{name: "короткая локальная часть", in: "al@example.com", want: "***@example.com"},
		{name: "без @", in: "alice", want: "***"},
		{name: "две @", in: "a@b@c", want: "***"},
		{name: "unicode", in: "пётр@пример.рф", want: "пё***@пример.рф"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Email(tt.in))
		})
	}
}

func TestLogin(t *testing.T) {
	t.Parallel()

	require.Equal(t, "al***@x.com", Login("alice@x.com"))
	require.Equal(t, "alice", Login("alice"))
}

func TestLiterals(t *testing.T) {
	t.Parallel()

	require.Equal(t, "[REDACTED_TOKEN]", Token())
	require.Equal(t, "[REDACTED_PASSWORD]", Password())
}
