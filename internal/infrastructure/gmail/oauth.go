package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"autoreply/internal/logging"
)

const credentialType = "authorized_user"

// Credential is the persisted token pair. The on-disk format is the
// "authorized_user" JSON understood by google.CredentialsFromJSON.
type Credential struct {
	Type         string `json:"type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`

	// token holds the access token obtained during an interactive grant.
	token *oauth2.Token
}

// AuthorizationError is returned when no usable credential can be obtained.
type AuthorizationError struct {
	Reason string
	Err    error
}

func (e *AuthorizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authorization failed: %s: %v", e.Reason, e.Err)
	}
	return "authorization failed: " + e.Reason
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// CredentialPersistError is returned when the token file cannot be written.
type CredentialPersistError struct {
	Path string
	Err  error
}

func (e *CredentialPersistError) Error() string {
	return fmt.Sprintf("cannot save credential to %s: %v", e.Path, e.Err)
}

func (e *CredentialPersistError) Unwrap() error { return e.Err }

// CredentialManager loads, obtains and stores the OAuth credential.
type CredentialManager struct {
	TokenPath  string
	SecretPath string
	Scopes     []string

	// TokenURL overrides the Google token endpoint used for refreshes.
	TokenURL string

	In     io.Reader
	Out    io.Writer
	Logger *slog.Logger
}

func NewCredentialManager(tokenPath, secretPath string, scopes []string, logger *slog.Logger) *CredentialManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialManager{
		TokenPath:  tokenPath,
		SecretPath: secretPath,
		Scopes:     scopes,
		In:         os.Stdin,
		Out:        os.Stdout,
		Logger:     logger,
	}
}

// Authorize returns the cached credential, or runs the interactive flow and
// stores its result. A failed store is logged; the credential is still returned.
func (m *CredentialManager) Authorize(ctx context.Context) (*Credential, error) {
	if cred, ok := m.LoadCredential(); ok {
		m.Logger.Debug("using cached credential", slog.String("path", m.TokenPath))
		return cred, nil
	}

	m.Logger.Info("no cached credential, starting OAuth flow", slog.String("path", m.TokenPath))

	cred, err := m.AuthorizeInteractively(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.PersistCredential(cred); err != nil {
		m.Logger.Warn("credential not saved, continuing with in-memory session", logging.Err(err))
	}

	return cred, nil
}

// LoadCredential reads the token file. It reports false for a missing,
// unreadable or malformed file.
func (m *CredentialManager) LoadCredential() (*Credential, bool) {
	b, err := os.ReadFile(m.TokenPath)
	if err != nil {
		return nil, false
	}

	var cred Credential
	if err := json.Unmarshal(b, &cred); err != nil {
		m.Logger.Warn("ignoring malformed token file", slog.String("path", m.TokenPath), logging.Err(err))
		return nil, false
	}

	if cred.Type != credentialType || cred.ClientID == "" || cred.RefreshToken == "" {
		m.Logger.Warn("ignoring incomplete token file", slog.String("path", m.TokenPath))
		return nil, false
	}

	return &cred, true
}

// AuthorizeInteractively runs the consent flow: it prints the consent URL,
// reads the pasted authorization code and exchanges it for a token.
func (m *CredentialManager) AuthorizeInteractively(ctx context.Context) (*Credential, error) {
	b, err := os.ReadFile(m.SecretPath)
	if err != nil {
		return nil, &AuthorizationError{Reason: "cannot read client secret file", Err: err}
	}

	config, err := google.ConfigFromJSON(b, m.Scopes...)
	if err != nil {
		return nil, &AuthorizationError{Reason: "cannot parse client secret file", Err: err}
	}

	verifier := oauth2.GenerateVerifier()
	authURL := config.AuthCodeURL("state-token",
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	fmt.Fprintln(m.Out, "1) Copy this URL and open it in your browser:")
	fmt.Fprintln(m.Out, authURL)
	fmt.Fprintln(m.Out, "\n2) Sign in and accept the permissions.")
	fmt.Fprint(m.Out, "3) Paste the authorization code (or the full redirect URL) here: ")

	var input string
	if _, err := fmt.Fscan(m.In, &input); err != nil {
		return nil, &AuthorizationError{Reason: "authorization cancelled", Err: err}
	}

	code, err := parseAuthCode(input)
	if err != nil {
		return nil, &AuthorizationError{Reason: "authorization denied", Err: err}
	}

	tok, err := config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, &AuthorizationError{Reason: "cannot exchange code for token", Err: err}
	}

	m.Logger.Info("authorization granted", slog.String("access_token", logging.SanitizeToken(tok.AccessToken)))

	return &Credential{
		Type:         credentialType,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		RefreshToken: tok.RefreshToken,
		token:        tok,
	}, nil
}

// PersistCredential writes the fields needed to resume a session,
// overwriting any existing file.
func (m *CredentialManager) PersistCredential(cred *Credential) error {
	if cred.RefreshToken == "" {
		return &CredentialPersistError{Path: m.TokenPath, Err: errors.New("grant returned no refresh token")}
	}

	payload, err := json.Marshal(Credential{
		Type:         credentialType,
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		RefreshToken: cred.RefreshToken,
	})
	if err != nil {
		return &CredentialPersistError{Path: m.TokenPath, Err: err}
	}

	if err := os.WriteFile(m.TokenPath, payload, 0o600); err != nil {
		return &CredentialPersistError{Path: m.TokenPath, Err: err}
	}

	m.Logger.Info("credential saved", slog.String("path", m.TokenPath))
	return nil
}

// TokenSource returns a refreshing token source for cred.
func (m *CredentialManager) TokenSource(ctx context.Context, cred *Credential) oauth2.TokenSource {
	endpoint := google.Endpoint
	if m.TokenURL != "" {
		endpoint.TokenURL = m.TokenURL
	}

	config := &oauth2.Config{
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       m.Scopes,
	}

	tok := cred.token
	if tok == nil {
		tok = &oauth2.Token{RefreshToken: cred.RefreshToken}
	}

	return config.TokenSource(ctx, tok)
}

func parseAuthCode(input string) (string, error) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		if input == "" {
			return "", errors.New("empty authorization code")
		}
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("cannot parse redirect URL: %w", err)
	}

	q := u.Query()
	if e := q.Get("error"); e != "" {
		return "", fmt.Errorf("consent screen returned %q", e)
	}
	code := q.Get("code")
	if code == "" {
		return "", errors.New("redirect URL carries no code")
	}
	return code, nil
}
