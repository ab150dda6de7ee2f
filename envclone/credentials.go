// Copyright 2025 Loft Manager Authors
// SPDX-License-Identifier: Apache-2.0

package envclone

import (
	"fmt"
	"log/slog"
	"net"
	"regexp"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials identifies one database target. Treated as secret material:
// never persisted, never logged (see LogValue).
type Credentials struct {
	URL        string `yaml:"url"`
	AnonKey    string `yaml:"anon_key"`
	ServiceKey string `yaml:"service_key"`
	Password   string `yaml:"password,omitempty"`
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
}

// LogValue redacts everything but the project URL.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("url", c.URL),
		slog.String("service_key", "[redacted]"),
		slog.String("password", "[redacted]"),
	)
}

// Environment is a logical database environment (dev, staging, prod clone...).
type Environment struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Type        string      `yaml:"type"`
	Credentials Credentials `yaml:"credentials"`
	Description string      `yaml:"description,omitempty"`
}

// PostgresConnection is the concrete connection derived from credentials.
// IsIPResolved tracks whether the DNS-retry substitution already happened,
// which bounds the retry to exactly one attempt.
type PostgresConnection struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	IsIPResolved bool
}

// DSN renders a pgx-compatible connection string.
func (pc *PostgresConnection) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=require",
		pc.User, pc.Password, pc.Host, pc.Port, pc.Database)
}

// WithResolvedIP returns a copy of the connection pointing at ip with the
// resolved flag set, or nil when the connection was already IP-substituted.
func (pc *PostgresConnection) WithResolvedIP(ip string) *PostgresConnection {
	if pc.IsIPResolved {
		return nil
	}
	out := *pc
	out.Host = ip
	out.IsIPResolved = true
	return &out
}

var projectRefPattern = regexp.MustCompile(`^https://([a-z0-9]{16,})\.supabase\.(?:co|in|net)`)

// ResolveConnection turns credentials into a concrete Postgres connection.
// The project ref is parsed out of the service URL; when the URL does not
// match, the ref claim of the service-key JWT is used instead (parsed without
// signature verification, the claim is informational only). A missing
// password is a ConfigurationError: it is never derivable from the keys.
func ResolveConnection(creds Credentials) (*PostgresConnection, error) {
	if creds.Password == "" {
		return nil, &ConfigurationError{Field: "password", Reason: "database password is required and cannot be derived from API keys"}
	}

	ref, err := projectRef(creds)
	if err != nil {
		return nil, err
	}

	conn := &PostgresConnection{
		Host:     fmt.Sprintf("db.%s.supabase.co", ref),
		Port:     5432,
		Database: "postgres",
		User:     "postgres",
		Password: creds.Password,
	}
	if creds.Host != "" {
		conn.Host = creds.Host
	}
	if creds.Port != 0 {
		conn.Port = creds.Port
	}
	return conn, nil
}

func projectRef(creds Credentials) (string, error) {
	if m := projectRefPattern.FindStringSubmatch(creds.URL); m != nil {
		return m[1], nil
	}
	if ref := refFromServiceKey(creds.ServiceKey); ref != "" {
		return ref, nil
	}
	return "", &ConfigurationError{Field: "url", Reason: fmt.Sprintf("service URL %q does not match the expected project pattern", creds.URL)}
}

// refFromServiceKey extracts the project ref claim from a Supabase service
// key. Service keys are JWTs; the signature is not checked because only the
// claim value is needed, not trust in it.
func refFromServiceKey(serviceKey string) string {
	if serviceKey == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(serviceKey, claims); err != nil {
		return ""
	}
	ref, _ := claims["ref"].(string)
	return ref
}

// ResolveHostToIP attempts IPv4 resolution first, then IPv6, returning the
// first success. The second return is false when both families fail. Used to
// recover exactly once from transient DNS failures during long dump/restore
// runs.
func ResolveHostToIP(hostname string) (string, bool) {
	ips, err := net.LookupIP(hostname)
	if err != nil || len(ips) == 0 {
		return "", false
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), true
		}
	}
	return ips[0].String(), true
}
