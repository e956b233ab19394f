package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig holds configuration for CORS middleware.
type CORSConfig struct {
	// AllowedOrigins lists the browser origins that may call the API.
	// ["*"] allows every origin and is only accepted without credentials.
	AllowedOrigins []string

	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string

	AllowCredentials bool

	// MaxAge is how long preflight results may be cached.
	MaxAge time.Duration

	// AllowWildcard enables patterns such as https://*.example.com.
	AllowWildcard bool
}

// DefaultCORSConfig returns the configuration used by the API server.  The
// origin list is filled from server.allowed_origins.
func DefaultCORSConfig(origins ...string) CORSConfig {
	return CORSConfig{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Content-Type", HeaderRequestID},
		ExposedHeaders: []string{HeaderRequestID, "Content-Disposition"},
		MaxAge:         24 * time.Hour,
		AllowWildcard:  true,
	}
}

// CORS returns a gin middleware enforcing config.  An invalid combination,
// such as "*" together with credentials, is reported instead of panicking.
func CORS(config CORSConfig) (gin.HandlerFunc, error) {
	cc := cors.Config{
		AllowMethods:     config.AllowedMethods,
		AllowHeaders:     config.AllowedHeaders,
		ExposeHeaders:    config.ExposedHeaders,
		AllowCredentials: config.AllowCredentials,
		MaxAge:           config.MaxAge,
		AllowWildcard:    config.AllowWildcard,
	}
	for _, o := range config.AllowedOrigins {
		if o == "*" {
			cc.AllowAllOrigins = true
			continue
		}
		cc.AllowOrigins = append(cc.AllowOrigins, o)
	}
	if cc.AllowAllOrigins {
		if config.AllowCredentials {
			return nil, fmt.Errorf("cors: wildcard origin cannot be combined with credentials")
		}
		cc.AllowOrigins = nil
	}
	if err := cc.Validate(); err != nil {
		return nil, fmt.Errorf("cors: %w", err)
	}
	return cors.New(cc), nil
}
