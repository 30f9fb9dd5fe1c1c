package test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
	"github.com/labstack/gommon/random"

	log "github.com/sirupsen/logrus"
)

func RandHex(n uint8) string {
	r := random.New()
	return r.String(n, random.Hex)
}

// HttpClient returns a client with a cookie jar, which does not follow redirects.
// The tests inspect every redirect of the login flow themselves.
func HttpClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{
		Timeout: time.Second * 10,
		Jar:     jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func AssertBodyString(t *testing.T, res *http.Response, expected string) {
	t.Helper()
	assert.Equal(t, expected, ReadBody(t, res))
}

func ReadBody(t *testing.T, res *http.Response) string {
	t.Helper()
	buf, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	_ = res.Body.Close()
	return string(buf)
}

// GetFreePort asks the kernel for a free open port that is ready to use.
// From: https://gist.github.com/sevkin/96bdae9274465b2d09191384f86ef39d
func GetFreePort() (port int, err error) {
	var a *net.TCPAddr
	if a, err = net.ResolveTCPAddr("tcp", "localhost:0"); err == nil {
		var l *net.TCPListener
		if l, err = net.ListenTCP("tcp", a); err == nil {
			defer func(l *net.TCPListener) {
				err := l.Close()
				if err != nil {
					log.WithError(err).Error("Failed to close listener")
				}
			}(l)
			return l.Addr().(*net.TCPAddr).Port, nil
		}
	}
	return
}

// RSAKey creates a fresh 2048 bit RSA key for signing test tokens.
func RSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return privateKey
}

// RSAKeyPairPEM creates a fresh RSA key pair and returns it PEM encoded
// (PKCS1 private key, PKIX public key).
func RSAKeyPairPEM(t *testing.T) (string, string) {
	t.Helper()
	privateKey := RSAKey(t)

	privatePEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	})
	publicDER, err := x509.MarshalPKIXPublicKey(&privateKey.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	return string(privatePEM), string(publicPEM)
}
