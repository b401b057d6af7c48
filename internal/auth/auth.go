package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/justinpbarnett/devcompanion/internal/config"
)

// ErrNoCredential is returned when no source can supply a bearer token.
var ErrNoCredential = errors.New("no credential available")

// TokenSource supplies the bearer credential for the reporting API and the
// remote execution endpoint.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

type Static string

func (s Static) Token(context.Context) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return "", ErrNoCredential
	}
	return strings.TrimSpace(string(s)), nil
}

// Env reads the token from an environment variable on every call.
type Env string

func (e Env) Token(context.Context) (string, error) {
	if e == "" {
		return "", ErrNoCredential
	}
	v := strings.TrimSpace(os.Getenv(string(e)))
	if v == "" {
		return "", fmt.Errorf("env %s: %w", string(e), ErrNoCredential)
	}
	return v, nil
}

// File reads the token from the first line of a file on every call, so a
// rotated token is picked up without a restart.
type File string

func (f File) Token(context.Context) (string, error) {
	if f == "" {
		return "", ErrNoCredential
	}
	path, err := config.ExpandHome(string(f))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("token file %s: %w", path, ErrNoCredential)
		}
		return "", fmt.Errorf("token file %s: %w", path, err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	if line = strings.TrimSpace(line); line == "" {
		return "", fmt.Errorf("token file %s is empty: %w", path, ErrNoCredential)
	}
	return line, nil
}

// Chain returns the first token any source yields. Errors other than
// ErrNoCredential stop the chain.
type Chain []TokenSource

func (c Chain) Token(ctx context.Context) (string, error) {
	for _, src := range c {
		tok, err := src.Token(ctx)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, ErrNoCredential) {
			return "", err
		}
	}
	return "", ErrNoCredential
}

// FromConfig builds the lookup order: explicit token, token file, then the
// environment variable.
func FromConfig(cfg config.APIConfig) TokenSource {
	return Chain{Static(cfg.Token), File(cfg.TokenFile), Env(cfg.TokenEnv)}
}
