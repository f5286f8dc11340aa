package login

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/coursecert/internal/auth"
	httpmiddleware "github.com/wolfeidau/coursecert/internal/http"
	"github.com/wolfeidau/coursecert/internal/models"
	"github.com/wolfeidau/coursecert/internal/store"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

var (
	ErrInvalidSession = errors.New("invalid session")
	ErrExpiredSession = errors.New("session expired")
)

const (
	sessionCookieName = "_session"
	stateCookieName   = "state"

	defaultAPIBaseURL = "https://api.github.com"
)

// Stores holds the account and session persistence used by the login flow.
type Stores struct {
	Sessions   store.SessionStore
	Principals store.PrincipalStore
}

// Github implements GitHub OAuth login with server-side sessions. The session
// cookie only carries the session ID.
type Github struct {
	config     *oauth2.Config
	stores     Stores
	sessionTTL time.Duration
	apiBaseURL string
	afterLogin string
}

func NewGithub(clientID, clientSecret, callbackURL string, stores Stores, sessionTTL time.Duration) (*Github, error) {
	if stores.Sessions == nil || stores.Principals == nil {
		return nil, fmt.Errorf("all stores are required")
	}

	if clientID == "" || clientSecret == "" || callbackURL == "" {
		return nil, fmt.Errorf("client ID, client secret, and callback URL are required")
	}

	if sessionTTL <= 0 {
		return nil, fmt.Errorf("session TTL must be greater than 0")
	}

	return &Github{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"user:email"},
			Endpoint:     github.Endpoint,
		},
		stores:     stores,
		sessionTTL: sessionTTL,
		apiBaseURL: defaultAPIBaseURL,
		afterLogin: "/",
	}, nil
}

// SessionData is the resolved session of a request.
type SessionData struct {
	SessionID   uuid.UUID
	PrincipalID uuid.UUID
	Name        string
	Email       string
	ExpiresAt   time.Time
}

// GetSession loads the session referenced by the request cookie together with
// the owning account.
func (g *Github) GetSession(r *http.Request) (*SessionData, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return nil, ErrInvalidSession
	}

	sessionID, err := uuid.Parse(cookie.Value)
	if err != nil {
		log.Debug().Msg("Malformed session cookie")
		return nil, ErrInvalidSession
	}

	ctx := r.Context()

	session, err := g.stores.Sessions.Get(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrSessionExpired):
		log.Debug().Str("session_id", sessionID.String()).Msg("Session expired")
		return nil, ErrExpiredSession
	case err != nil:
		log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("Session lookup failed")
		return nil, ErrInvalidSession
	}

	principal, err := g.stores.Principals.Get(ctx, session.PrincipalID)
	if err != nil {
		log.Warn().Err(err).Str("principal_id", session.PrincipalID.String()).Msg("Session references unknown principal")
		return nil, ErrInvalidSession
	}

	data := &SessionData{
		SessionID:   session.SessionID,
		PrincipalID: principal.PrincipalID,
		Name:        principal.Name,
		ExpiresAt:   session.ExpiresAt,
	}
	if principal.Email != nil {
		data.Email = *principal.Email
	}

	return data, nil
}

// SessionIdentity implements auth.SessionProvider.
func (g *Github) SessionIdentity(r *http.Request) (*auth.Identity, error) {
	session, err := g.GetSession(r)
	if err != nil {
		return nil, err
	}

	return &auth.Identity{
		AccountID: session.PrincipalID,
		Name:      session.Name,
		Email:     session.Email,
		Method:    auth.MethodSession,
	}, nil
}

func (g *Github) saveState(w http.ResponseWriter, r *http.Request) string {
	state := rand.Text()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300, // 5 minutes - enough time for OAuth flow
	})

	return state
}

func (g *Github) LoginHandler(w http.ResponseWriter, r *http.Request) {
	log.Debug().Msg("Initiating GitHub OAuth flow")

	state := g.saveState(w, r)

	http.Redirect(w, r, g.config.AuthCodeURL(state), http.StatusFound)
}

func (g *Github) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	log.Debug().Msg("OAuth callback received")

	state := r.FormValue("state")
	code := r.FormValue("code")

	if state == "" || code == "" {
		log.Warn().Msg("OAuth callback missing state or code")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil {
		log.Warn().Err(err).Msg("OAuth callback missing state cookie")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	if state != cookie.Value {
		log.Warn().Msg("OAuth callback state mismatch")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	ctx := r.Context()

	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to exchange OAuth code for token")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	userInfo, err := g.getUserInfo(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch user info from GitHub")
		http.Error(w, "Authentication failed", http.StatusBadRequest)
		return
	}

	principal, err := g.upsertPrincipal(ctx, userInfo)
	if err != nil {
		log.Error().Err(err).Msg("Failed to save account")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	session, err := g.createSession(ctx, principal, r)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session")
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("principal_id", principal.PrincipalID.String()).
		Str("github_login", userInfo.Login).
		Msg("User authenticated successfully")

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.SessionID.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(g.sessionTTL.Seconds()),
	})

	http.Redirect(w, r, g.afterLogin, http.StatusFound)
}

// LogoutHandler deletes the server-side session and clears the cookie.
func (g *Github) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		if sessionID, err := uuid.Parse(cookie.Value); err == nil {
			if err := g.stores.Sessions.Delete(r.Context(), sessionID); err != nil && !errors.Is(err, store.ErrSessionNotFound) {
				log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("Failed to delete session")
			}
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, "/", http.StatusFound)
}

func (g *Github) createSession(ctx context.Context, principal *models.Principal, r *http.Request) (*models.Session, error) {
	sessionID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &models.Session{
		SessionID:   sessionID,
		PrincipalID: principal.PrincipalID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(g.sessionTTL),
		LastUsedAt:  now,
		UserAgent:   r.UserAgent(),
		IPAddress:   httpmiddleware.ClientIPFromContext(ctx),
	}

	if err := g.stores.Sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// upsertPrincipal finds the account linked to the GitHub user, creating it on
// first login and refreshing the profile fields otherwise.
func (g *Github) upsertPrincipal(ctx context.Context, userInfo *UserInfo) (*models.Principal, error) {
	githubID := strconv.FormatInt(userInfo.ID, 10)

	name := userInfo.Name
	if name == "" {
		name = userInfo.Login
	}

	existing, err := g.stores.Principals.GetByGitHubID(ctx, githubID)
	switch {
	case errors.Is(err, store.ErrPrincipalNotFound):
		principalID, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate principal ID: %w", err)
		}

		now := time.Now()
		principal := &models.Principal{
			PrincipalID: principalID,
			Name:        name,
			GitHubID:    &githubID,
			GitHubLogin: optional(userInfo.Login),
			Email:       optional(userInfo.Email),
			AvatarURL:   optional(userInfo.AvatarURL),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := g.stores.Principals.Create(ctx, principal); err != nil {
			return nil, err
		}

		log.Info().Str("principal_id", principalID.String()).Msg("Created account")
		return principal, nil

	case err != nil:
		return nil, err
	}

	existing.Name = name
	existing.GitHubLogin = optional(userInfo.Login)
	existing.Email = optional(userInfo.Email)
	existing.AvatarURL = optional(userInfo.AvatarURL)

	if err := g.stores.Principals.Update(ctx, existing); err != nil {
		return nil, err
	}

	return existing, nil
}

func (g *Github) getUserInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	// Add timeout to prevent hanging on slow GitHub API
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var userInfo UserInfo
	if err := g.getJSON(ctx, token, "/user", &userInfo); err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	if userInfo.ID == 0 {
		return nil, errors.New("GitHub user info missing id")
	}

	// private emails are only listed by /user/emails
	if userInfo.Email == "" {
		var emails []githubEmail
		if err := g.getJSON(ctx, token, "/user/emails", &emails); err != nil {
			return nil, fmt.Errorf("failed to fetch user emails: %w", err)
		}
		for _, email := range emails {
			if email.Primary && email.Verified {
				userInfo.Email = email.Email
				break
			}
		}
	}

	return &userInfo, nil
}

func (g *Github) getJSON(ctx context.Context, token *oauth2.Token, path string, v any) error {
	client := g.config.Client(ctx, token)

	resp, err := client.Get(g.apiBaseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GitHub API returned HTTP %d for %s", resp.StatusCode, path)
	}

	return json.NewDecoder(resp.Body).Decode(v)
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type UserInfo struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
