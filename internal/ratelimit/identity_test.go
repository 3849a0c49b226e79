package ratelimit

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/evalgo/memstore/internal/security"
)

func TestClientIdentity(t *testing.T) {
	claims := &security.Claims{Subject: "u1", TenantID: "t1", Role: security.RoleUser}

	cases := []struct {
		name    string
		claims  *security.Claims
		headers map[string]string
		remote  string
		want    string
	}{
		{"authenticated subject wins", claims, map[string]string{"X-API-Key": "k1", "X-Forwarded-For": "1.2.3.4"}, "9.9.9.9:1234", "sub:u1"},
		{"api key before forwarded-for", nil, map[string]string{"X-API-Key": "k1", "X-Forwarded-For": "1.2.3.4"}, "9.9.9.9:1234", "key:k1"},
		{"first forwarded-for hop", nil, map[string]string{"X-Forwarded-For": "1.2.3.4, 5.6.7.8"}, "9.9.9.9:1234", "ip:1.2.3.4"},
		{"x-real-ip", nil, map[string]string{"X-Real-IP": "5.6.7.8"}, "9.9.9.9:1234", "ip:5.6.7.8"},
		{"peer socket", nil, nil, "9.9.9.9:1234", "ip:9.9.9.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/memories", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, ClientIdentity(r, tc.claims))
		})
	}
}

func TestClientIdentity_FallbackIsUniquePerRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/memories", nil)
	r.RemoteAddr = "bogus"
	a := ClientIdentity(r, nil)
	b := ClientIdentity(r, nil)
	assert.True(t, strings.HasPrefix(a, "anon:"))
	assert.NotEqual(t, a, b)
}
