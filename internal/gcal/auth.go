package gcal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// tokenState classifies the cached token before any network call.
type tokenState int

const (
	// stateMissing: no token file; only the interactive consent flow helps.
	stateMissing tokenState = iota
	// stateValid: cached token still usable as-is, no network needed.
	stateValid
	// stateRefreshable: expired, but a refresh token allows a silent renewal.
	stateRefreshable
	// stateConsent: expired without a refresh token; back to consent.
	stateConsent
)

// classifyToken decides which authentication path a cached token requires.
func classifyToken(tok *oauth2.Token) tokenState {
	switch {
	case tok == nil:
		return stateMissing
	case tok.Valid():
		return stateValid
	case tok.RefreshToken != "":
		return stateRefreshable
	default:
		return stateConsent
	}
}

// loadToken reads the cached token file. A missing file is not an error;
// it returns (nil, nil) so the caller falls through to the consent flow.
func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("gcal: read token cache: %w", err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("gcal: decode token cache: %w", err)
	}
	return &tok, nil
}

// saveToken overwrites the token cache. The file holds a bearer token, so
// it gets the same 0600 treatment as the config file.
func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("gcal: create token dir: %w", err)
	}

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("gcal: encode token: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("gcal: write token cache: %w", err)
	}
	return nil
}

// consent runs the installed-app authorization flow: print the consent URL,
// read the verification code back, exchange it for a token. in/out are
// injectable so the flow is testable; the entry point wires stdin/stdout.
func consent(ctx context.Context, conf *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	url := conf.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Open the following link in your browser, authorize the app,\nthen paste the code here:\n%s\n> ", url)

	var code string
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("gcal: read authorization code: %w", err)
		}
		return nil, errors.New("gcal: no authorization code entered")
	}
	code = scanner.Text()

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("gcal: exchange authorization code: %w", err)
	}
	return tok, nil
}

// resolveToken walks the cached token through the state machine until an
// Authenticated token is in hand, persisting it whenever it changed.
func resolveToken(ctx context.Context, conf *oauth2.Config, tokenFile string, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	tok, err := loadToken(tokenFile)
	if err != nil {
		return nil, err
	}

	switch classifyToken(tok) {
	case stateValid:
		return tok, nil

	case stateRefreshable:
		fresh, err := conf.TokenSource(ctx, tok).Token()
		if err != nil {
			return nil, &RemoteError{Op: "oauth2.refresh", Err: err}
		}
		if err := saveToken(tokenFile, fresh); err != nil {
			return nil, err
		}
		return fresh, nil

	default: // stateMissing, stateConsent
		fresh, err := consent(ctx, conf, in, out)
		if err != nil {
			return nil, err
		}
		if err := saveToken(tokenFile, fresh); err != nil {
			return nil, err
		}
		return fresh, nil
	}
}
