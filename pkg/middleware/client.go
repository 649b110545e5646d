package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID = "X-User-ID"
	HeaderAPIKey = "X-API-Key"
)

type userKey struct{}
type clientKey struct{}

// ClientInfo is the request metadata recorded alongside redemptions.
type ClientInfo struct {
	IPAddress   string
	UserAgent   string
	Referrer    string
	UTMSource   string
	UTMMedium   string
	UTMCampaign string
	Channel     string
}

// deriveChannelFromAPIKey guesses the calling surface from the API key prefix.
func deriveChannelFromAPIKey(key string) string {
	switch {
	case strings.HasPrefix(key, "web_"):
		return "web"
	case strings.HasPrefix(key, "app_"):
		return "app"
	case strings.HasPrefix(key, "partner_"):
		return "partner"
	default:
		return "api"
	}
}

// Identity copies the gateway-authenticated user id into the request context.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(HeaderUserID)); id != "" {
			ctx := context.WithValue(c.Request.Context(), userKey{}, id)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// ClientMetadata captures IP, user agent, referrer and UTM parameters.
func ClientMetadata() gin.HandlerFunc {
	return func(c *gin.Context) {
		info := ClientInfo{
			IPAddress:   c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			Referrer:    c.Request.Referer(),
			UTMSource:   c.Query("utm_source"),
			UTMMedium:   c.Query("utm_medium"),
			UTMCampaign: c.Query("utm_campaign"),
			Channel:     deriveChannelFromAPIKey(c.GetHeader(HeaderAPIKey)),
		}
		ctx := context.WithValue(c.Request.Context(), clientKey{}, info)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userKey{}).(string)
	return id
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

func Client(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientKey{}).(ClientInfo)
	return info
}
