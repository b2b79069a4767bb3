package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		xff    string
		xri    string
		remote string
		want   string
	}{
		{"forwarded-for single hop", "203.0.113.7", "", "10.0.0.1:1234", "203.0.113.7"},
		{"forwarded-for chain takes first hop", " 203.0.113.7 , 70.41.3.18", "", "10.0.0.1:1234", "203.0.113.7"},
		{"real-ip fallback", "", "198.51.100.2", "10.0.0.1:1234", "198.51.100.2"},
		{"remote addr strips port", "", "", "192.0.2.9:5555", "192.0.2.9"},
		{"remote addr without port", "", "", "192.0.2.9", "192.0.2.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Request.RemoteAddr = tc.remote
			if tc.xff != "" {
				c.Request.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.xri != "" {
				c.Request.Header.Set("X-Real-IP", tc.xri)
			}
			assert.Equal(t, tc.want, clientIP(c))
		})
	}
}
