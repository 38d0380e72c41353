package roomchat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SenderIDFromToken reads the numeric userId claim from a JWT without verifying
// its signature. Verification belongs to the server; the client only needs to
// know who it speaks as.
func SenderIDFromToken(token string) (int64, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return 0, NewError(ErrorInvalidConfig, "empty token")
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return 0, WrapError(ErrorInvalidConfig, "parse token", err)
	}

	for _, key := range []string{"userId", "user_id", "sub"} {
		v, ok := claims[key]
		if !ok {
			continue
		}
		switch id := v.(type) {
		case float64:
			return int64(id), nil
		case string:
			n, err := strconv.ParseInt(id, 10, 64)
			if err != nil {
				return 0, WrapError(ErrorInvalidConfig, fmt.Sprintf("claim %s is not numeric", key), err)
			}
			return n, nil
		}
	}
	return 0, NewError(ErrorInvalidConfig, "token has no user id claim")
}
