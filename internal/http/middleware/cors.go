package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
	"github.com/offerflow/offerflow-api/internal/config"
	"go.uber.org/zap"
)

func isDevEnvironment(env string) bool {
	return env == "" || env == "development" || env == "local"
}

func anyOrigin(_ *http.Request, origin string) bool { return origin != "" }

// CORS builds the go-chi/cors handler. A "*" origin or an empty list in a dev environment reflects
// any origin; an empty list elsewhere denies every cross-origin request.
func CORS(cfg *config.CORSConfig, environment string, logger *zap.Logger) func(http.Handler) http.Handler {
	options := cors.Options{
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   cfg.ExposedHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}

	wildcard := false
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			wildcard = true
			break
		}
	}

	switch {
	case wildcard:
		if !isDevEnvironment(environment) {
			logger.Warn("CORS allows every origin outside development", zap.String("environment", environment))
		}
		options.AllowOriginFunc = anyOrigin
	case len(cfg.AllowedOrigins) > 0:
		options.AllowedOrigins = cfg.AllowedOrigins
		logger.Info("CORS configured with explicit origins", zap.Strings("origins", cfg.AllowedOrigins))
	case isDevEnvironment(environment):
		options.AllowOriginFunc = anyOrigin
		logger.Info("CORS allows all origins in development mode")
	default:
		// an empty AllowedOrigins means "*" to go-chi/cors
		options.AllowOriginFunc = func(_ *http.Request, _ string) bool { return false }
		logger.Warn("CORS has no allowed origins; cross-origin requests are denied", zap.String("environment", environment))
	}

	return cors.Handler(options)
}
