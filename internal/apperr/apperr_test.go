package apperr_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rcarvalho-pb/checkout_gateway-go/internal/apperr"
)

func TestHTTPStatus_MapsKinds(t *testing.T) {
	cases := map[*apperr.AppError]int{
		apperr.ValidationErr("bad", nil):            http.StatusBadRequest,
		apperr.NotFoundErr("missing"):               http.StatusNotFound,
		apperr.UnauthorizedErr("sig"):               http.StatusUnauthorized,
		apperr.ConflictErr("race"):                  http.StatusInternalServerError,
		apperr.RejectedErr("merchant", nil):         http.StatusBadGateway,
		apperr.UnavailableErr(errors.New("down")):   http.StatusServiceUnavailable,
		apperr.PersistenceErr(errors.New("disk")):   http.StatusInternalServerError,
		apperr.TransientErr("5xx", errors.New("x")): http.StatusServiceUnavailable,
	}

	for err, want := range cases {
		require.Equal(t, want, apperr.HTTPStatus(err), err.Error())
	}

	require.Equal(t, http.StatusInternalServerError, apperr.HTTPStatus(errors.New("plain")))
}

func TestAppError_SurvivesWrapping(t *testing.T) {
	base := errors.New("connection reset")
	err := fmt.Errorf("create checkout: %w", apperr.TransientErr("transport", base))

	ae, ok := apperr.As(err)
	require.True(t, ok)
	require.True(t, ae.Retryable())
	require.ErrorIs(t, err, base)
	require.True(t, apperr.Is(err, apperr.GatewayTransient))
	require.False(t, apperr.RejectedErr("no", nil).Retryable())
}

func TestPersistenceErr_NilPassthrough(t *testing.T) {
	require.Nil(t, apperr.PersistenceErr(nil))
}
