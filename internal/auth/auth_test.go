package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"coaching-schedule-api/internal/model"
)

const secret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	in := model.Actor{ProfileID: "coach-1", Role: model.RoleCoach, Name: "Dana"}
	raw, err := MakeToken(in, secret, time.Minute)
	if err != nil {
		t.Fatalf("make: %v", err)
	}
	c, err := ParseToken(raw, secret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := c.Actor(); got != in {
		t.Errorf("actor: got %+v, want %+v", got, in)
	}
}

func TestParseRejects(t *testing.T) {
	good := model.Actor{ProfileID: "k1", Role: model.RoleClient}

	expired, _ := MakeToken(good, secret, -time.Minute)
	wrongKey, _ := MakeToken(good, "other", time.Minute)
	noRole, _ := MakeToken(model.Actor{ProfileID: "k1", Role: "ADMIN"}, secret, time.Minute)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ProfileID: "k1", Role: model.RoleClient}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"expired":   expired,
		"wrong key": wrongKey,
		"bad role":  noRole,
		"alg none":  none,
		"garbage":   "not.a.token",
	}
	for name, raw := range tests {
		if _, err := ParseToken(raw, secret); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
