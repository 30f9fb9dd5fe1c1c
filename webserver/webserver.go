package webserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/boj/redistore"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/sessions"
	"github.com/labstack/echo-contrib/session"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/random"

	"recipe-api/auth"
	"recipe-api/config"
	authMiddleware "recipe-api/middleware"
	"recipe-api/oidc"
	"recipe-api/store"

	log "github.com/sirupsen/logrus"
)

type Webserver struct {
	e       *echo.Echo
	cfg     *config.Config
	repo    store.Repository
	codec   *auth.Codec
	address string

	store      sessions.Store
	redisStore *redistore.RediStore
}

// NewWebserver creates the Echo instance and the session store and registers
// all middleware and routes.
func NewWebserver(cfg *config.Config, repo store.Repository, hook oidc.LoginCallback) (*Webserver, error) {
	ws := &Webserver{
		e:       echo.New(),
		cfg:     cfg,
		repo:    repo,
		codec:   cfg.NewCodec(),
		address: cfg.Settings.GetWSAddress(),
	}
	err := ws.createSessionStore()
	if err != nil {
		log.WithError(err).Error("Error creating session store")
		return nil, err
	}
	log.WithField("driver", cfg.Settings.Session.StoreDriver).Info("Session-Store initialized")

	providers, err := cfg.Content.OIDC.ProviderMap()
	if err != nil {
		return nil, err
	}
	flow, err := oidc.NewLoginFlow(
		oidc.NewClientFactory(providers),
		ws.codec,
		oidc.TokenCookie{
			Name:   cfg.Content.Auth.JWTCookieName,
			Secure: cfg.Content.SecureCookies(),
		},
		hook,
	)
	if err != nil {
		return nil, err
	}

	ws.e.Validator = &requestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
	ws.e.Use(middleware.Recover())
	ws.e.Use(session.Middleware(ws.store))
	ws.e.Use(authMiddleware.Authenticate(ws.codec, cfg.Content.Auth.JWTHeaderName, cfg.Content.Auth.JWTCookieName))

	ws.registerRoutes(flow)

	// hide some stuff
	ws.e.HideBanner = true
	ws.e.HidePort = true

	return ws, nil
}

func (w *Webserver) registerRoutes(flow *oidc.LoginFlow) {
	a := w.cfg.Content.Auth
	requireAuth := authMiddleware.RequireAuth(a.LoginPath)
	g := w.e.Group(a.PathPrefix)

	root := a.PathPrefix
	if root == "" {
		root = "/"
	}
	w.e.GET(root, greet)

	g.GET("/auth/self", self)
	g.GET("/auth/oidc_login/:provider_name", flow.Initiate)
	g.GET("/auth/oidc_login_cb/:provider_name", flow.Callback)
	log.Debug("OIDC login handlers registered")

	h := &handler{repo: w.repo}
	g.GET("/tags", h.listTags, requireAuth)
	g.POST("/tags", h.createTag, requireAuth)
	g.GET("/tags/:id", h.getTag, requireAuth)
	g.GET("/ingredients", h.listIngredients, requireAuth)
	g.POST("/ingredients", h.createIngredient, requireAuth)
	g.GET("/ingredients/:id", h.getIngredient, requireAuth)
	g.GET("/recipes", h.listRecipes, requireAuth)
	g.POST("/recipes", h.createRecipe, requireAuth)
	g.GET("/recipes/:id", h.getRecipe, requireAuth)
}

// Handler returns the http handler of the webserver, e.g. for httptest.
func (w *Webserver) Handler() http.Handler {
	return w.e
}

// Start the webserver with the Address and Port specified in the config.
func (w *Webserver) Start() error {
	log.Infof("Listening on %s", w.address)
	return w.e.Start(w.address)
}

// StartAsync opens the listener and serves in the background. The returned
// address is the one actually listened on.
func (w *Webserver) StartAsync() (string, error) {
	l, err := net.Listen("tcp", w.address)
	if err != nil {
		return "", err
	}
	w.e.Listener = l
	go func() {
		err := w.e.Start(w.address)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Webserver stopped")
		}
	}()
	log.Infof("Listening on %s", l.Addr().String())
	return l.Addr().String(), nil
}

// Close stops the server and releases the session store.
func (w *Webserver) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := w.e.Shutdown(ctx)
	if w.redisStore != nil {
		err = errors.Join(err, w.redisStore.Close())
	}
	return err
}

// createSessionStore builds the session store from config. The session only
// carries state and nonce of running logins.
func (w *Webserver) createSessionStore() error {
	cfg := w.cfg.Settings.Session
	key := []byte(cfg.Key)
	if len(key) == 0 {
		log.Warn("SESSION_KEY not set, using a random key. Logins do not survive a restart.")
		key = []byte(random.String(32))
	}
	options := sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAge,
		HttpOnly: true,
		Secure:   w.cfg.Content.SecureCookies(),
		// the callback is a cross site top level navigation
		SameSite: http.SameSiteLaxMode,
	}

	switch cfg.StoreDriver {
	case "redis":
		store, err := redistore.NewRediStore(
			cfg.Redis.PoolSize, "tcp",
			fmt.Sprintf("%s:%d", cfg.Redis.Address, cfg.Redis.Port),
			cfg.Redis.Username, cfg.Redis.Password,
			key,
		)
		if err != nil || store == nil {
			log.WithError(err).Error("Error creating redis session store")
			return err
		}
		store.Options = &options
		store.SetMaxAge(cfg.MaxAge)
		w.redisStore = store
		w.store = store
	case "filesystem":
		if cfg.StoreDirectory != "" {
			err := os.MkdirAll(cfg.StoreDirectory, 0700)
			if err != nil {
				log.WithError(err).Error("Error creating Filesystem session store")
				return err
			}
		}
		store := sessions.NewFilesystemStore(cfg.StoreDirectory, key)
		store.Options = &options
		store.MaxAge(cfg.MaxAge)
		w.store = store
	case "cookie", "":
		store := sessions.NewCookieStore(key)
		store.Options = &options
		store.MaxAge(cfg.MaxAge)
		w.store = store
	default:
		log.WithField("driver", cfg.StoreDriver).Error("Invalid session store driver")
		return fmt.Errorf("invalid session store driver %q", cfg.StoreDriver)
	}
	return nil
}
