package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/golang-jwt/jwt/v5"

	testHelper "recipe-api/internal/test"
)

func hmacCodec(t *testing.T, secret string) *Codec {
	t.Helper()
	alg, err := NewHMAC(secret)
	if err != nil {
		t.Fatal(err)
	}
	return NewCodec(alg, "http://recipes.local", time.Hour)
}

func rsaCodec(t *testing.T) *Codec {
	t.Helper()
	privatePEM, publicPEM := testHelper.RSAKeyPairPEM(t)
	alg, err := NewRSAFromPEM(privatePEM, publicPEM)
	if err != nil {
		t.Fatal(err)
	}
	return NewCodec(alg, "http://recipes.local", time.Hour)
}

func testClaims(offset time.Duration) *Claims {
	picture := "https://pictures.local/toni.png"
	return NewClaims(
		"11111111-1111-1111-1111-111111111111",
		"http://recipes.local",
		"toni@recipes.local",
		"Toni",
		"Tester",
		&picture,
		offset,
	)
}

func expiredClaims() *Claims {
	c := testClaims(time.Hour)
	now := time.Now()
	c.IssuedAt = jwt.NewNumericDate(now.Add(-2 * time.Hour))
	c.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
	return c
}

func assertSameClaims(t *testing.T, expected, actual *Claims) {
	t.Helper()
	assert.Equal(t, expected.Subject, actual.Subject)
	assert.Equal(t, expected.Issuer, actual.Issuer)
	assert.Equal(t, expected.Email, actual.Email)
	assert.Equal(t, expected.GivenName, actual.GivenName)
	assert.Equal(t, expected.FamilyName, actual.FamilyName)
	assert.Equal(t, expected.Picture, actual.Picture)
	assert.Equal(t, expected.ExpiresAt.Unix(), actual.ExpiresAt.Unix())
	assert.Equal(t, expected.IssuedAt.Unix(), actual.IssuedAt.Unix())
}

func TestRoundTrip(t *testing.T) {
	codecs := map[string]*Codec{
		AlgorithmHS256: hmacCodec(t, "super-secret"),
		AlgorithmRS256: rsaCodec(t),
	}
	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			claims := testClaims(time.Hour)
			token, err := codec.Mint(claims)
			if err != nil {
				t.Fatal(err)
			}
			verified, err := codec.Verify(token)
			if err != nil {
				t.Fatal(err)
			}
			assertSameClaims(t, claims, verified)
		})
	}
}

func TestRoundTripWithoutPicture(t *testing.T) {
	codec := hmacCodec(t, "super-secret")
	claims := testClaims(time.Hour)
	claims.Picture = nil

	token, err := codec.Mint(claims)
	if err != nil {
		t.Fatal(err)
	}
	verified, err := codec.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, (*string)(nil), verified.Picture)
}

func TestExpiredToken(t *testing.T) {
	codecs := map[string]*Codec{
		AlgorithmHS256: hmacCodec(t, "super-secret"),
		AlgorithmRS256: rsaCodec(t),
	}
	for name, codec := range codecs {
		t.Run(name, func(t *testing.T) {
			token, err := codec.Mint(expiredClaims())
			if err != nil {
				t.Fatal(err)
			}
			_, err = codec.Verify(token)
			if !errors.Is(err, ErrTokenExpired) {
				t.Fatalf("unexpected error: got %v, want %v", err, ErrTokenExpired)
			}
		})
	}
}

func TestAlgorithmConfusion(t *testing.T) {
	hmac := hmacCodec(t, "super-secret")
	rsa := rsaCodec(t)

	hmacToken, err := hmac.Mint(testClaims(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	rsaToken, err := rsa.Mint(testClaims(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	_, err = rsa.Verify(hmacToken)
	if !errors.Is(err, ErrAlgorithmMismatch) {
		t.Errorf("hmac token under rsa codec: got %v, want %v", err, ErrAlgorithmMismatch)
	}
	_, err = hmac.Verify(rsaToken)
	if !errors.Is(err, ErrAlgorithmMismatch) {
		t.Errorf("rsa token under hmac codec: got %v, want %v", err, ErrAlgorithmMismatch)
	}
}

// An HS256 token signed with the PEM bytes of the RSA public key must not pass
// a codec configured for RS256.
func TestAlgorithmConfusionWithPublicKeyAsSecret(t *testing.T) {
	privatePEM, publicPEM := testHelper.RSAKeyPairPEM(t)
	alg, err := NewRSAFromPEM(privatePEM, publicPEM)
	if err != nil {
		t.Fatal(err)
	}
	rsa := NewCodec(alg, "http://recipes.local", time.Hour)
	forged := hmacCodec(t, publicPEM)

	token, err := forged.Mint(testClaims(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	_, err = rsa.Verify(token)
	if !errors.Is(err, ErrAlgorithmMismatch) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrAlgorithmMismatch)
	}
}

func TestNoneAlgorithmRejected(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, testClaims(time.Hour)).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatal(err)
	}
	_, err = hmacCodec(t, "super-secret").Verify(token)
	if !errors.Is(err, ErrAlgorithmMismatch) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrAlgorithmMismatch)
	}
}

func TestSignatureInvalid(t *testing.T) {
	token, err := hmacCodec(t, "secret-one").Mint(testClaims(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	_, err = hmacCodec(t, "secret-two").Verify(token)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("other secret: got %v, want %v", err, ErrSignatureInvalid)
	}

	rsaToken, err := rsaCodec(t).Mint(testClaims(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	_, err = rsaCodec(t).Verify(rsaToken)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Errorf("other key pair: got %v, want %v", err, ErrSignatureInvalid)
	}
}

func TestMalformedToken(t *testing.T) {
	codec := hmacCodec(t, "super-secret")
	valid, err := codec.Mint(testClaims(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(valid, ".")

	tests := []string{
		"",
		"not-a-token",
		"a.b",
		parts[0] + ".!!!." + parts[2],
		parts[0] + ".eyJzdWIiOjF9." + parts[2], // {"sub":1}
	}
	for _, token := range tests {
		_, err := codec.Verify(token)
		if !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("unexpected error for token %q: got %v, want %v", token, err, ErrTokenMalformed)
		}
	}
}

func TestMintRejectsInvalidClaims(t *testing.T) {
	codec := hmacCodec(t, "super-secret")

	noExpiry := testClaims(time.Hour)
	noExpiry.ExpiresAt = nil
	_, err := codec.Mint(noExpiry)
	assert.Equal(t, ErrInvalidClaims, err)

	expiresBeforeIssued := testClaims(-time.Minute)
	_, err = codec.Mint(expiresBeforeIssued)
	assert.Equal(t, ErrInvalidClaims, err)
}

func TestMintWithVerifyOnlyRSA(t *testing.T) {
	_, publicPEM := testHelper.RSAKeyPairPEM(t)
	alg, err := NewRSAFromPEM("", publicPEM)
	if err != nil {
		t.Fatal(err)
	}
	_, err = NewCodec(alg, "", time.Hour).Mint(testClaims(time.Hour))
	if !errors.Is(err, ErrSigningKeyMissing) {
		t.Fatalf("unexpected error: got %v, want %v", err, ErrSigningKeyMissing)
	}
}

func TestSessionClaimsExpiry(t *testing.T) {
	codec := hmacCodec(t, "super-secret")
	codec.expiration = 3600 * time.Second

	claims := codec.NewSessionClaims("11111111-1111-1111-1111-111111111111", "toni@recipes.local", "Toni", "Tester", nil)
	token, err := codec.Mint(claims)
	if err != nil {
		t.Fatal(err)
	}
	verified, err := codec.Verify(token)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().Unix()
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", verified.Subject)
	assert.Equal(t, "http://recipes.local", verified.Issuer)
	exp := verified.Expiry().Unix()
	if exp < now+3599 || exp > now+3601 {
		t.Fatalf("expiry %d not within [%d, %d]", exp, now+3599, now+3601)
	}
}

func TestParseSigningAlgorithm(t *testing.T) {
	privatePEM, publicPEM := testHelper.RSAKeyPairPEM(t)

	alg, err := ParseSigningAlgorithm(AlgorithmHS256, "secret", "", "")
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, AlgorithmHS256, alg.Name())

	alg, err = ParseSigningAlgorithm(AlgorithmRS256, "", privatePEM, publicPEM)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, AlgorithmRS256, alg.Name())

	_, err = ParseSigningAlgorithm(AlgorithmHS256, "", "", "")
	if !errors.Is(err, ErrSigningKeyMissing) {
		t.Errorf("unexpected error: got %v, want %v", err, ErrSigningKeyMissing)
	}
	_, err = ParseSigningAlgorithm(AlgorithmRS256, "", "", "")
	if !errors.Is(err, ErrVerifyKeyMissing) {
		t.Errorf("unexpected error: got %v, want %v", err, ErrVerifyKeyMissing)
	}
	_, err = ParseSigningAlgorithm("ES256", "", "", "")
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("unexpected error: got %v, want %v", err, ErrUnsupportedAlgorithm)
	}
	_, err = ParseSigningAlgorithm(AlgorithmRS256, "", "garbage", "")
	if err == nil {
		t.Error("expected error for invalid pem")
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 404, HTTPStatus(ErrProviderNotFound))
	assert.Equal(t, 400, HTTPStatus(ErrMissingAuthCode))
	assert.Equal(t, 401, HTTPStatus(ErrStateMismatch))
	assert.Equal(t, 403, HTTPStatus(ErrAccessDenied))
	assert.Equal(t, 500, HTTPStatus(ErrMissingIDToken))
	assert.Equal(t, 500, HTTPStatus(ErrClaimsMappingFailed))
	assert.Equal(t, 500, HTTPStatus(errors.New("anything else")))
}
