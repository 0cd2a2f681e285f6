package controllers

import (
	"errors"
	"net/http"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	svc "BranchChat/pkg/services"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&svc.NotFoundError{Resource: "conversation", ID: "x"}, http.StatusNotFound},
		{&svc.ValidationError{Field: "title", Message: "title is required"}, http.StatusBadRequest},
		{svc.ErrInvalidBranchPoint, http.StatusBadRequest},
		{pkgerrors.Wrap(svc.ErrConflict, "no active version"), http.StatusConflict},
		{&svc.StorageError{Err: errors.New("disk full")}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
