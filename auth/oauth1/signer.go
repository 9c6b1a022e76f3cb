package oauth1

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Installed applications cannot keep a secret, so the anonymous consumer
// credentials are used and the user is shown the application's display
// name on the authorization page instead.
const (
	consumerKey     = "anonymous"
	consumerSecret  = "anonymous"
	signatureMethod = "HMAC-SHA1"
	oauthVersion    = "1.0"
)

// signer produces RFC 5849 HMAC-SHA1 Authorization headers. nonce and now
// are injectable so signatures are reproducible in tests.
type signer struct {
	nonce func() string
	now   func() time.Time
}

func newSigner() *signer {
	return &signer{
		nonce: uuid.NewString,
		now:   time.Now,
	}
}

// authorizationHeader signs a request and returns the value of its
// Authorization header. token and tokenSecret are empty for the initial
// temporary-credentials request. extra holds additional form parameters
// that must be covered by the signature (the request body parameters);
// they are signed but not listed in the header.
func (s *signer) authorizationHeader(method string, target *url.URL, token, tokenSecret string, extra url.Values) string {
	nonce := s.nonce()
	timestamp := strconv.FormatInt(s.now().Unix(), 10)

	params := url.Values{}
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	params.Set("oauth_consumer_key", consumerKey)
	params.Set("oauth_signature_method", signatureMethod)
	params.Set("oauth_nonce", nonce)
	params.Set("oauth_timestamp", timestamp)
	params.Set("oauth_version", oauthVersion)
	if token != "" {
		params.Set("oauth_token", token)
	}

	signature := sign(method, target, params, tokenSecret)

	var b strings.Builder
	b.WriteString(`OAuth oauth_consumer_key="`)
	b.WriteString(percentEncode(consumerKey))
	if token != "" {
		b.WriteString(`",oauth_token="`)
		b.WriteString(percentEncode(token))
	}
	b.WriteString(`",oauth_signature_method="`)
	b.WriteString(percentEncode(signatureMethod))
	b.WriteString(`",oauth_signature="`)
	b.WriteString(percentEncode(signature))
	b.WriteString(`",oauth_timestamp="`)
	b.WriteString(percentEncode(timestamp))
	b.WriteString(`",oauth_nonce="`)
	b.WriteString(percentEncode(nonce))
	b.WriteString(`",oauth_version="1.0"`)
	return b.String()
}

// sign computes the base64 HMAC-SHA1 signature over the signature base
// string defined in RFC 5849 section 3.4.1.
func sign(method string, target *url.URL, params url.Values, tokenSecret string) string {
	// Percent-encode each pair, sort the encoded pairs, join with '&'
	// (RFC 5849 section 3.4.1.3.2).
	pairs := make([]string, 0, len(params))
	for k, vs := range params {
		for _, v := range vs {
			pairs = append(pairs, percentEncode(k)+"="+percentEncode(v))
		}
	}
	sort.Strings(pairs)
	paramString := strings.Join(pairs, "&")

	base := percentEncode(method) + "&" + percentEncode(baseURI(target)) + "&" + percentEncode(paramString)

	key := []byte(percentEncode(consumerSecret) + "&" + percentEncode(tokenSecret))
	mac := hmac.New(sha1.New, key)
	mac.Write([]byte(base))
	digest := mac.Sum(nil)
	for i := range key {
		key[i] = 0
	}
	return base64.StdEncoding.EncodeToString(digest)
}

// baseURI normalises target per RFC 5849 section 3.4.1.2: scheme, host
// and path only, with default ports elided.
func baseURI(target *url.URL) string {
	scheme := strings.ToLower(target.Scheme)
	host := strings.ToLower(target.Host)
	if h, p, ok := strings.Cut(host, ":"); ok {
		if (scheme == "http" && p == "80") || (scheme == "https" && p == "443") {
			host = h
		}
	}
	return scheme + "://" + host + target.EscapedPath()
}

// percentEncode implements the RFC 3986 encoding required by RFC 5849
// section 3.6: everything but unreserved characters is escaped, using
// uppercase hex digits.
func percentEncode(s string) string {
	const upperhex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0x0f])
		}
	}
	return b.String()
}
