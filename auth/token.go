package auth

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/goerr/v2"

	"github.com/hugr-lab/firebridge/fserr"
)

// signJWT builds and signs the OAuth2 assertion:
// iss=client_email, scope=datastore, aud=token endpoint, exp=iat+1h.
func (c *Credentials) signJWT(tokenURL string, now time.Time) (string, error) {
	key, err := jwk.ParseKey([]byte(c.PrivateKey), jwk.WithPEM(true))
	if err != nil {
		return "", fserr.Wrap(fserr.CodeAuthPrivateKeyInvalid, err,
			"cannot parse private key")
	}
	if c.PrivateKeyID != "" {
		if err := key.Set(jwk.KeyIDKey, c.PrivateKeyID); err != nil {
			return "", fserr.Wrap(fserr.CodeAuthPrivateKeyInvalid, err,
				"cannot set key id")
		}
	}

	tok, err := jwt.NewBuilder().
		Issuer(c.ClientEmail).
		Audience([]string{tokenURL}).
		IssuedAt(now).
		Expiration(now.Add(tokenLifetime)).
		Claim("scope", DatastoreScope).
		Build()
	if err != nil {
		return "", fserr.Wrap(fserr.CodeAuthJWTCreationFailed, err,
			"cannot build JWT claims")
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, key))
	if err != nil {
		return "", fserr.Wrap(fserr.CodeAuthSigningFailed, err, "RS256 signing failed")
	}
	return string(signed), nil
}

// exchange performs the JWT-bearer grant against the token endpoint.
// Caller holds c.mu.
func (c *Credentials) exchange(ctx context.Context) (string, error) {
	endpoint := c.TokenURL
	if endpoint == "" {
		endpoint = GoogleTokenURL
	}

	assertion, err := c.signJWT(endpoint, time.Now())
	if err != nil {
		return "", err
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fserr.Wrap(fserr.CodeAuthTokenExchangeFailed, err,
			"cannot build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fserr.Wrap(fserr.CodeAuthTokenExchangeFailed, err,
			"token exchange request failed", fserr.URL(endpoint))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fserr.Wrap(fserr.CodeAuthTokenExchangeFailed, err,
			"cannot read token response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", fserr.New(fserr.CodeAuthTokenExchangeFailed,
			"token exchange rejected",
			fserr.Status(resp.StatusCode), fserr.Body(string(body)),
			goerr.V("client_email", c.ClientEmail))
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fserr.Wrap(fserr.CodeAuthTokenParseFailed, err,
			"cannot parse token response", fserr.Body(string(body)))
	}
	if parsed.AccessToken == "" {
		return "", fserr.New(fserr.CodeAuthTokenMissing,
			"token response missing access_token", fserr.Body(string(body)))
	}
	return parsed.AccessToken, nil
}
