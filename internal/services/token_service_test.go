package services

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokens(t *testing.T, clock *fakeClock, mutate ...func(*TokenConfig)) *TokenService {
	t.Helper()
	cfg := defaultTokenConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	ts, err := NewTokenService(cfg, clock.Now)
	require.NoError(t, err)
	return ts
}

func TestTokenService_AccessExpiryIsExact(t *testing.T) {
	clock := newFakeClock()
	ts := newTokens(t, clock)

	tok, exp, err := ts.IssueAccess(7, testPhone, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(15*time.Minute), exp)

	clock.Advance(14*time.Minute + 59*time.Second)
	claims, err := ts.Verify(tok, AccessToken)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)
	assert.Equal(t, testPhone, claims.Phone)
	assert.Equal(t, "jti-1", claims.ID)

	clock.Advance(2 * time.Second)
	_, err = ts.Verify(tok, AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenService_RefreshCarriesType(t *testing.T) {
	clock := newFakeClock()
	ts := newTokens(t, clock)

	tok, exp, err := ts.IssueRefresh(7, testPhone, "jti-1")
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(30*24*time.Hour), exp)

	claims, err := ts.Verify(tok, RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "refresh", claims.Type)
}

func TestTokenService_CrossTypeIsRejected(t *testing.T) {
	clock := newFakeClock()
	ts := newTokens(t, clock)

	access, _, err := ts.IssueAccess(7, testPhone, "j")
	require.NoError(t, err)
	refresh, _, err := ts.IssueRefresh(7, testPhone, "j")
	require.NoError(t, err)

	_, err = ts.Verify(refresh, AccessToken)
	assert.ErrorIs(t, err, ErrTokenMalformed)
	_, err = ts.Verify(access, RefreshToken)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestTokenService_WrongTypeClaim(t *testing.T) {
	clock := newFakeClock()
	ts := newTokens(t, clock)

	// access-секрет, но type=refresh
	claims := Claims{
		Phone: testPhone,
		Type:  "refresh",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7",
			IssuedAt:  jwt.NewNumericDate(clock.Now()),
			ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
	require.NoError(t, err)

	_, err = ts.Verify(tok, AccessToken)
	assert.ErrorIs(t, err, ErrTokenWrongType)
}

func TestTokenService_RejectsOtherAlgorithms(t *testing.T) {
	clock := newFakeClock()
	ts := newTokens(t, clock)
	claims := jwt.RegisteredClaims{
		Subject:   "7",
		IssuedAt:  jwt.NewNumericDate(clock.Now()),
		ExpiresAt: jwt.NewNumericDate(clock.Now().Add(time.Minute)),
	}

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testAccessSecret))
	require.NoError(t, err)
	_, err = ts.Verify(hs512, AccessToken)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ts.Verify(none, AccessToken)
	assert.ErrorIs(t, err, ErrTokenMalformed)

	_, err = ts.Verify("not-a-jwt", AccessToken)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestTokenService_LeewayExtendsExpiry(t *testing.T) {
	clock := newFakeClock()
	ts := newTokens(t, clock, func(c *TokenConfig) { c.Leeway = 30 * time.Second })

	tok, _, err := ts.IssueAccess(7, testPhone, "jti-1")
	require.NoError(t, err)

	clock.Advance(15*time.Minute + 20*time.Second)
	_, err = ts.Verify(tok, AccessToken)
	assert.NoError(t, err)

	clock.Advance(15 * time.Second)
	_, err = ts.Verify(tok, AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokenService_FutureIssuedAt(t *testing.T) {
	clock := newFakeClock()
	issuer := newTokens(t, &fakeClock{t: clock.Now().Add(4 * time.Second)})
	skewed, _, err := issuer.IssueAccess(7, testPhone, "j")
	require.NoError(t, err)

	verifier := newTokens(t, clock)
	_, err = verifier.Verify(skewed, AccessToken)
	assert.NoError(t, err, "small skew is tolerated")

	farIssuer := newTokens(t, &fakeClock{t: clock.Now().Add(time.Minute)})
	far, _, err := farIssuer.IssueAccess(7, testPhone, "j")
	require.NoError(t, err)
	_, err = verifier.Verify(far, AccessToken)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestTokenService_Issuer(t *testing.T) {
	clock := newFakeClock()
	a := newTokens(t, clock, func(c *TokenConfig) { c.Issuer = "samadhaan" })
	b := newTokens(t, clock, func(c *TokenConfig) { c.Issuer = "other" })

	tok, _, err := a.IssueAccess(7, testPhone, "j")
	require.NoError(t, err)
	_, err = a.Verify(tok, AccessToken)
	require.NoError(t, err)
	_, err = b.Verify(tok, AccessToken)
	assert.True(t, errors.Is(err, ErrTokenMalformed))
}

func TestNewTokenService_SecretRules(t *testing.T) {
	_, err := NewTokenService(TokenConfig{AccessSecret: "short", RefreshSecret: testRefreshSecret}, nil)
	assert.Error(t, err)
	_, err = NewTokenService(TokenConfig{AccessSecret: testAccessSecret, RefreshSecret: testAccessSecret}, nil)
	assert.Error(t, err)
}
