package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"ms-escrow/internal/keys"
)

// ExtractTokenFromRequest extracts a JWT token from an HTTP request's
// Authorization header.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}

// ExtractSignerFromJWT extracts the signer address from a JWT's 'sub' claim.
// Signature verification happens at the gateway; here the token is only
// parsed.
func ExtractSignerFromJWT(tokenString string) (keys.Address, error) {
	if tokenString == "" {
		return keys.Address{}, errors.New("empty token")
	}

	token, _, err := new(jwt.Parser).ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return keys.Address{}, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return keys.Address{}, errors.New("invalid token claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return keys.Address{}, errors.New("subject claim not found in token")
	}

	return keys.Parse(sub)
}

// SignerFromRequest resolves the signer address for a request.
func SignerFromRequest(r *http.Request) (keys.Address, error) {
	tokenString, err := ExtractTokenFromRequest(r)
	if err != nil {
		return keys.Address{}, err
	}
	return ExtractSignerFromJWT(tokenString)
}
