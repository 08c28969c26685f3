// Package google implements the calendar and mail services on top of the
// Google Calendar and Gmail APIs.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/fwojciec/aide"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// SecretFileEnv names the environment variable holding the OAuth client
// secret path.
const SecretFileEnv = "GOOGLE_API_CLIENT_SECRET_FILE"

// Authenticator produces authorized HTTP clients for Google APIs using the
// installed-app OAuth flow. Tokens are cached per API in TokenDir as
// token_<api>_<version>.json and refreshed transparently.
type Authenticator struct {
	SecretFile string
	TokenDir   string

	// Prompt receives the consent URL when no cached token exists.
	Prompt io.Writer
	Logger zerolog.Logger
}

// NewAuthenticator returns an Authenticator. An empty tokenDir resolves to
// the user config directory.
func NewAuthenticator(secretFile, tokenDir string) *Authenticator {
	if tokenDir == "" {
		if dir, err := os.UserConfigDir(); err == nil {
			tokenDir = filepath.Join(dir, "aide", "tokens")
		}
	}
	return &Authenticator{
		SecretFile: secretFile,
		TokenDir:   tokenDir,
		Prompt:     os.Stderr,
		Logger:     zerolog.Nop(),
	}
}

// Validate reports ErrNotConfigured when the client secret is missing.
func (a *Authenticator) Validate() error {
	if a.SecretFile == "" {
		return fmt.Errorf("%s not set: %w", SecretFileEnv, aide.ErrNotConfigured)
	}
	if _, err := os.Stat(a.SecretFile); err != nil {
		return fmt.Errorf("client secret file not found at %s: %w", a.SecretFile, aide.ErrNotConfigured)
	}
	return nil
}

// HTTPClient returns a client authorized for the given API and scopes,
// running the consent flow when no usable token is cached.
func (a *Authenticator) HTTPClient(ctx context.Context, api, version string, scopes ...string) (*http.Client, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	secret, err := os.ReadFile(a.SecretFile)
	if err != nil {
		return nil, fmt.Errorf("read client secret: %w", err)
	}
	cfg, err := google.ConfigFromJSON(secret, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse client secret: %w", err)
	}

	path := a.tokenPath(api, version)
	tok, err := loadToken(path)
	if err != nil || (!tok.Valid() && tok.RefreshToken == "") {
		a.Logger.Info().Str("api", api).Msg("no usable cached token, starting consent flow")
		if tok, err = a.consent(ctx, cfg); err != nil {
			return nil, err
		}
		if err := saveToken(path, tok); err != nil {
			return nil, err
		}
	}

	// The client outlives the call that created it.
	base := context.WithoutCancel(ctx)
	src := &cachingSource{
		src:  oauth2.ReuseTokenSource(tok, cfg.TokenSource(base, tok)),
		path: path,
		last: tok.AccessToken,
		log:  a.Logger,
	}
	return oauth2.NewClient(base, src), nil
}

func (a *Authenticator) tokenPath(api, version string) string {
	return filepath.Join(a.TokenDir, fmt.Sprintf("token_%s_%s.json", api, version))
}

// consent runs the loopback redirect flow and exchanges the returned code.
func (a *Authenticator) consent(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen for oauth redirect: %w", err)
	}
	defer ln.Close()

	cfg.RedirectURL = "http://" + ln.Addr().String() + "/"
	state := uuid.NewString()

	codes := make(chan string, 1)
	errs := make(chan error, 1)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		case q.Get("error") != "":
			http.Error(w, "authorization denied", http.StatusForbidden)
			select {
			case errs <- fmt.Errorf("authorization denied: %s", q.Get("error")):
			default:
			}
			return
		}
		_, _ = io.WriteString(w, "Authorization complete. You can close this window.\n")
		select {
		case codes <- q.Get("code"):
		default:
		}
	})}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	url := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(a.Prompt, "Open this URL in your browser to authorize access:\n%s\n", url)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-errs:
		return nil, err
	case code := <-codes:
		tok, err := cfg.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchange authorization code: %w", err)
		}
		return tok, nil
	}
}

// cachingSource persists refreshed tokens.
type cachingSource struct {
	mu   sync.Mutex
	src  oauth2.TokenSource
	path string
	last string
	log  zerolog.Logger
}

func (s *cachingSource) Token() (*oauth2.Token, error) {
	tok, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := saveToken(s.path, tok); err != nil {
			s.log.Warn().Err(err).Str("path", s.path).Msg("cache refreshed token")
		}
	}
	return tok, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("empty token")
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return os.Rename(tmp, path)
}
