package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestLogger logs one line per request. The event stream is left out,
// it stays open for the whole session.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return ginzap.GinzapWithConfig(logger, &ginzap.Config{
		TimeFormat:   time.RFC3339,
		UTC:          true,
		SkipPaths:    []string{"/api/events"},
		DefaultLevel: zapcore.InfoLevel,
	})
}

// Recovery turns a panicking handler into a 500 and logs the stack
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return ginzap.RecoveryWithZap(logger, true)
}

// CORS allows the comma-separated origins; "*" allows any. Cross-origin
// requests from anywhere else are refused with 403.
func CORS(origins string) (gin.HandlerFunc, error) {
	conf := cors.DefaultConfig()
	conf.AllowMethods = []string{"GET", "HEAD", "POST", "DELETE", "OPTIONS"}
	conf.AllowHeaders = []string{"Origin", "Content-Type"}

	for _, o := range strings.Split(origins, ",") {
		o = strings.TrimSpace(o)
		switch {
		case o == "*":
			conf.AllowAllOrigins = true
		case o != "":
			conf.AllowOrigins = append(conf.AllowOrigins, o)
		}
	}
	if conf.AllowAllOrigins {
		conf.AllowOrigins = nil
	} else if len(conf.AllowOrigins) == 0 {
		conf.AllowOriginFunc = func(string) bool { return false }
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid CORS origins %q: %w", origins, err)
	}
	return cors.New(conf), nil
}
