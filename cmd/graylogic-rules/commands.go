package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/nerrad567/gray-logic-rules/internal/auth"
	"github.com/nerrad567/gray-logic-rules/internal/infrastructure/config"
)

// runCommand dispatches a one-shot subcommand and writes its result to out.
func runCommand(name string, args []string, out io.Writer) error {
	switch name {
	case "version", "-version", "--version":
		fmt.Fprintf(out, "graylogic-rules %s (commit %s, built %s)\n", version, commit, date)
		return nil
	case "token":
		return issueToken(args, out)
	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, name)
	}
}

// issueToken mints an access token signed with the configured JWT secret.
// The lifetime defaults to security.jwt.access_token_ttl minutes.
func issueToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	subject := fs.String("subject", "", "token subject (required)")
	role := fs.String("role", string(auth.RoleViewer), "viewer, operator or admin")
	ttl := fs.Duration("ttl", 0, "token lifetime (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("token: -subject is required")
	}
	if !auth.IsValidRole(auth.Role(*role)) {
		return fmt.Errorf("token: unknown role %q", *role)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
	}

	token, err := auth.GenerateToken(*subject, auth.Role(*role), auth.TokenConfig{
		Secret: cfg.Security.JWT.Secret,
		Issuer: cfg.Security.JWT.Issuer,
		TTL:    lifetime,
	})
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}
