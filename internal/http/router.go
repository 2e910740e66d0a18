package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/oficios-registry/internal/logging"
)

// Pinger reports whether the backing stores answer.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Auth     *AuthHandler
	Years    *YearHandler
	Slots    *SlotHandler
	Realtime *RealtimeHandler
	Health   Pinger

	// Sessions validates bearer tokens on /rest and /realtime.
	Sessions SessionValidator
	// APIKey is required in the apikey header of every route but /healthz.
	APIKey string
	// AuthLimiter throttles sign up and sign in per client IP. Nil disables it.
	AuthLimiter    *LimiterStore
	TrustForwarded bool

	Logger     *slog.Logger
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := logging.Or(cfg.Logger)
	requireKey := RequireAPIKey(cfg.APIKey, logger)
	throttle := RateLimit(cfg.AuthLimiter, cfg.TrustForwarded, logger)

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		healthz(cfg.Health, newResponder(logger), w, r)
	})

	if cfg.Auth != nil {
		auth := http.NewServeMux()
		auth.Handle("/auth/signup", throttle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.SignUp(w, r)
		})))
		auth.Handle("/auth/token", throttle(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.Token(w, r)
		})))
		auth.HandleFunc("/auth/user", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Auth.User(w, r)
		})
		auth.HandleFunc("/auth/logout", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Auth.Logout(w, r)
		})
		mux.Handle("/auth/", requireKey(auth))
	}

	protected := http.NewServeMux()

	if cfg.Years != nil {
		protected.HandleFunc("/rest/{kind}/years", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Years.List(w, r)
			case http.MethodPost:
				cfg.Years.Create(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPost)
			}
		})
	}

	if cfg.Slots != nil {
		protected.HandleFunc("/rest/{kind}/years/{id}/slots", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Slots.List(w, r)
		})
		protected.HandleFunc("/rest/{kind}/years/{id}/export", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Slots.Export(w, r)
		})
		protected.HandleFunc("/rest/{kind}/slots/{id}", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPatch {
				methodNotAllowed(w, http.MethodPatch)
				return
			}
			cfg.Slots.Update(w, r)
		})
	}

	if cfg.Realtime != nil {
		protected.HandleFunc("/realtime/{kind}", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Realtime.Stream(w, r)
		})
	}

	if cfg.Sessions != nil {
		guarded := requireKey(RequireSession(cfg.Sessions, logger)(protected))
		mux.Handle("/rest/", guarded)
		mux.Handle("/realtime/", guarded)
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func healthz(pinger Pinger, responder responder, w http.ResponseWriter, r *http.Request) {
	if pinger != nil {
		if err := pinger.Ping(r.Context()); err != nil {
			responder.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
			responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	responder.writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
