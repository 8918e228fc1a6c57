/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestParse_ValidHS256(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{
		Operator: "diver-1",
		Camera:   "reef-01",
		Scopes:   []string{ScopeScheduleWrite},
	}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Operator != "diver-1" || claims.Subject != "diver-1" {
		t.Fatalf("expected operator diver-1, got %q/%q", claims.Operator, claims.Subject)
	}
	if !claims.HasScope(ScopeScheduleWrite) || claims.HasScope(ScopePower) {
		t.Fatalf("unexpected scopes %v", claims.Scopes)
	}
}

func TestParse_RejectsUnexpectedAlgorithm(t *testing.T) {
	secret := []byte("test-secret")
	now := time.Now()
	claims := Claims{
		Operator: "diver-1",
		Scopes:   AllScopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "oceancam",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			Subject:   "diver-1",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS384, claims)
	tokenStr, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}

	if _, err := Parse(secret, tokenStr); err == nil {
		t.Fatalf("expected parse to reject non-HS256 token")
	}
}

func TestParse_RejectsExpiredAndWrongKey(t *testing.T) {
	secret := []byte("test-secret")
	expired, err := Issue(secret, Claims{Operator: "diver-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := Parse(secret, expired); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}

	valid, _ := Issue(secret, Claims{Operator: "diver-1"}, time.Hour)
	if _, err := Parse([]byte("other"), valid); err == nil {
		t.Error("expected signature failure with wrong key")
	}
}

func TestIssue_RequiresSecret(t *testing.T) {
	if _, err := Issue(nil, Claims{Operator: "x"}, time.Hour); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("expected ErrNoSecret, got %v", err)
	}
}
