package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// represents credential claims for a collaborator
type Claims struct {
	CollaboratorID string `json:"collaborator_id"`
	DisplayName    string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}
