package infra

import (
	"context"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFirebaseVerifier_RequiresProject(t *testing.T) {
	_, err := NewFirebaseVerifier(context.Background(), FirebaseConfig{CredentialsFile: "/tmp/sa.json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project id")
}

func TestTokenFromAuth(t *testing.T) {
	tests := []struct {
		name   string
		claims map[string]interface{}
		want   string
	}{
		{"name claim", map[string]interface{}{"name": "Ada", "email": "ada@example.com"}, "Ada"},
		{"email fallback", map[string]interface{}{"email": "ada@example.com"}, "ada@example.com"},
		{"anonymous", map[string]interface{}{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenFromAuth(&auth.Token{UID: "uid-1", Claims: tt.claims})
			assert.Equal(t, "uid-1", got.UID)
			assert.Equal(t, tt.want, got.Name)
			assert.Equal(t, tt.claims, got.Claims)
		})
	}
}
