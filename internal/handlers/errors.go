package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mossy-p/lifecounter/internal/apperr"
	"github.com/mossy-p/lifecounter/internal/lobby"
	"github.com/mossy-p/lifecounter/internal/middleware"
	"github.com/mossy-p/lifecounter/internal/store"
	"google.golang.org/grpc/codes"
)

// translate maps domain errors onto the failures callers see.
func translate(err error) error {
	var ae *apperr.Error
	switch {
	case errors.As(err, &ae):
		return err
	case errors.Is(err, store.ErrNotFound):
		return apperr.Wrap(err, codes.NotFound, "lobby or player not found")
	case errors.Is(err, store.ErrInvalid):
		return apperr.Wrap(err, codes.InvalidArgument, invalidMessage(err))
	case errors.Is(err, store.ErrCorrupt):
		return apperr.Internal(err, "player record is corrupt")
	case errors.Is(err, store.ErrUnavailable):
		return apperr.Internal(err, "server busy, please try again")
	case errors.Is(err, lobby.ErrCodeSpaceExhausted):
		return apperr.Internal(err, "could not allocate a lobby code, please try again")
	}
	return err
}

// invalidMessage strips the sentinel prefix so the caller sees which field
// was rejected.
func invalidMessage(err error) string {
	msg := err.Error()
	prefix := store.ErrInvalid.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}

func fail(c *gin.Context, err error) {
	middleware.AbortWithError(c, translate(err))
}

// bindError turns a binding failure into an invalid-argument failure naming
// the first offending field.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.Wrap(err, codes.InvalidArgument, "invalid "+fe.Field()+": failed "+fe.Tag()+" check")
	}
	return apperr.Wrap(err, codes.InvalidArgument, "invalid request body")
}
