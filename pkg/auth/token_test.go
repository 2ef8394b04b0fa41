package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vendor-payouts/pkg/config"
	"github.com/angelmondragon/vendor-payouts/pkg/enums"
)

var testCfg = config.JWTConfig{Secret: "secret", Issuer: "payouts", ExpirationMinutes: 30}

func mint(t *testing.T, now time.Time, role enums.Role) string {
	t.Helper()
	token, err := MintAccessToken(testCfg, now, AccessTokenPayload{UserID: uuid.New(), Role: role})
	require.NoError(t, err)
	return token
}

func sign(t *testing.T, claims AccessTokenClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testCfg.Secret))
	require.NoError(t, err)
	return token
}

func TestMintAndParseAccessToken(t *testing.T) {
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(testCfg, now, AccessTokenPayload{UserID: userID, Role: enums.RoleFinance, JTI: " run-42 "})
	require.NoError(t, err)

	claims, err := ParseAccessToken(testCfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enums.RoleFinance, claims.Role)
	assert.Equal(t, testCfg.Issuer, claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "run-42", claims.ID)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestParseAccessTokenRejects(t *testing.T) {
	now := time.Now()
	valid := mint(t, now, enums.RoleAdmin)
	otherSecret := testCfg
	otherSecret.Secret = "other"
	otherIssuer := testCfg
	otherIssuer.Issuer = "someone-else"

	cases := []struct {
		name  string
		cfg   config.JWTConfig
		token string
	}{
		{"tampered", testCfg, valid + "x"},
		{"different secret", otherSecret, valid},
		{"different issuer", otherIssuer, valid},
		{"expired", testCfg, mint(t, now.Add(-time.Hour), enums.RoleAdmin)},
		{"unknown role", testCfg, sign(t, AccessTokenClaims{
			UserID: uuid.New(),
			Role:   "root",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    testCfg.Issuer,
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		})},
		{"no expiry", testCfg, sign(t, AccessTokenClaims{
			UserID:           uuid.New(),
			Role:             enums.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: testCfg.Issuer},
		})},
		{"subject mismatch", testCfg, sign(t, AccessTokenClaims{
			UserID: uuid.New(),
			Role:   enums.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    testCfg.Issuer,
				Subject:   uuid.NewString(),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
		})},
		{"no secret configured", config.JWTConfig{Issuer: "payouts"}, valid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseAccessToken(tc.cfg, tc.token)
			assert.Error(t, err)
		})
	}
}

func TestParseAccessTokenToleratesSmallSkew(t *testing.T) {
	token := mint(t, time.Now().Add(-30*time.Minute-10*time.Second), enums.RoleAdmin)
	_, err := ParseAccessToken(testCfg, token)
	assert.NoError(t, err)
}

func TestMintAccessTokenValidation(t *testing.T) {
	cases := []struct {
		name    string
		cfg     config.JWTConfig
		payload AccessTokenPayload
	}{
		{"missing role", testCfg, AccessTokenPayload{UserID: uuid.New()}},
		{"missing user", testCfg, AccessTokenPayload{Role: enums.RoleAdmin}},
		{"no secret", config.JWTConfig{Issuer: "payouts", ExpirationMinutes: 5}, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin}},
		{"no ttl", config.JWTConfig{Secret: "s", Issuer: "payouts"}, AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleAdmin}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := MintAccessToken(tc.cfg, time.Now(), tc.payload)
			assert.Error(t, err)
		})
	}
}
