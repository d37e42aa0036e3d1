package jwt

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, tok, secret string) (jwt.MapClaims, error) {
	t.Helper()

	parsed, err := jwt.Parse(tok, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, err
	}
	return parsed.Claims.(jwt.MapClaims), nil
}

func TestIssue(t *testing.T) {
	tok, err := Issue("secret", 42, "user", 1)
	require.NoError(t, err)

	claims, err := parse(t, tok, "secret")
	require.NoError(t, err)
	require.Equal(t, float64(42), claims["sub"])
	require.Equal(t, "user", claims["role"])

	_, err = parse(t, tok, "other-secret")
	require.Error(t, err)
}

func TestIssue_Expiry(t *testing.T) {
	expired, err := Issue("secret", 42, "user", -1)
	require.NoError(t, err)

	_, err = parse(t, expired, "secret")
	require.Error(t, err)
}
