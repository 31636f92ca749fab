package handler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/wadjakorntonsri/go-safelink/pkg/config"
	"github.com/wadjakorntonsri/go-safelink/pkg/logging"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

	sessionCookie = "auth_token"
	stateCookie   = "oauthstate"
	sessionTTL    = 24 * time.Hour
	stateTTL      = 20 * time.Minute
)

// AuthHandler signs operators in with Google and issues the session cookie
// checked by Middleware.AuthMiddleware.
type AuthHandler struct {
	oauthConfig  *oauth2.Config
	userInfoURL  string
	jwtSecret    []byte
	frontendURL  string
	allowlist    []string
	secureCookie bool
	logger       *slog.Logger
}

type GoogleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

func NewAuthHandler(cfg *config.Config, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AuthHandler{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes:       []string{"https://www.googleapis.com/auth/userinfo.email"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL:  googleUserInfoURL,
		jwtSecret:    []byte(cfg.JWTSecret),
		frontendURL:  cfg.FrontendURL,
		allowlist:    cfg.AllowedEmails,
		secureCookie: cfg.IsProduction(),
		logger:       logger,
	}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		h.logger.Error("generate oauth state", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.setCookie(w, stateCookie, state, time.Now().Add(stateTTL))
	http.Redirect(w, r, h.oauthConfig.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)

	state, err := r.Cookie(stateCookie)
	if err != nil {
		log.Warn("oauth callback without state cookie")
		http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
		return
	}
	if r.FormValue("state") != state.Value {
		log.Warn("oauth callback with mismatched state")
		http.Error(w, "invalid oauth google state", http.StatusBadRequest)
		return
	}
	h.setCookie(w, stateCookie, "", time.Now().Add(-time.Hour))

	user, err := h.exchange(r.Context(), r.FormValue("code"))
	if err != nil {
		log.Error("google sign-in failed", "error", err)
		http.Error(w, "sign-in failed", http.StatusInternalServerError)
		return
	}

	if !h.allowed(user.Email) {
		log.Warn("operator not in allowlist", "email", user.Email)
		http.Error(w, "Access denied: your email is not in the allowlist", http.StatusForbidden)
		return
	}

	expires := time.Now().Add(sessionTTL)
	session, err := h.signSession(user.Email, expires)
	if err != nil {
		log.Error("sign session", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	h.setCookie(w, sessionCookie, session, expires)

	log.Info("operator signed in", "email", user.Email)
	http.Redirect(w, r, h.frontendURL, http.StatusTemporaryRedirect)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.setCookie(w, sessionCookie, "", time.Now().Add(-time.Hour))
	http.Redirect(w, r, h.frontendURL, http.StatusTemporaryRedirect)
}

// exchange trades the authorization code for the signed-in Google account.
func (h *AuthHandler) exchange(ctx context.Context, code string) (*GoogleUser, error) {
	token, err := h.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}

	resp, err := h.oauthConfig.Client(ctx, token).Get(h.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("user info: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info: unexpected status %d", resp.StatusCode)
	}

	var user GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user info: %w", err)
	}
	return &user, nil
}

// allowed admits everyone when no allowlist is configured.
func (h *AuthHandler) allowed(email string) bool {
	return len(h.allowlist) == 0 || slices.Contains(h.allowlist, email)
}

func (h *AuthHandler) signSession(email string, expires time.Time) (string, error) {
	claims := &jwt.RegisteredClaims{
		Subject:   email,
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.jwtSecret)
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Expires:  expires,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
