package jwt

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenInvalid is the parent of every verification failure.
	ErrTokenInvalid = errors.New("jwt: invalid access token")

	ErrMalformed               = fmt.Errorf("%w: malformed", ErrTokenInvalid)
	ErrInvalidSignature        = fmt.Errorf("%w: signature verification failed", ErrTokenInvalid)
	ErrInvalidIssuerOrAudience = fmt.Errorf("%w: issuer or audience mismatch", ErrTokenInvalid)
	ErrExpired                 = fmt.Errorf("%w: expired", ErrTokenInvalid)
)
