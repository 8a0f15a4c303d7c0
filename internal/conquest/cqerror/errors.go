// Package cqerror defines the sentinel errors shared by the catalog
// packages.
package cqerror

import (
	"net/http"

	"github.com/dicomtk/conquestdb/internal/common/apperrors"
)

var (
	ErrDatabase       apperrors.Error = apperrors.New("db error").SetStatusCode(http.StatusInternalServerError)
	ErrAlreadyExists  apperrors.Error = ErrDatabase.New("already exists").SetStatusCode(http.StatusConflict)
	ErrNotFound       apperrors.Error = ErrDatabase.New("not found").SetStatusCode(http.StatusNotFound)
	ErrInvalidInput   apperrors.Error = ErrDatabase.New("invalid input").SetStatusCode(http.StatusBadRequest)
	ErrSchema         apperrors.Error = apperrors.New("schema definition error").SetStatusCode(http.StatusInternalServerError)
	ErrRejectedObject apperrors.Error = apperrors.New("object rejected").SetStatusCode(http.StatusUnprocessableEntity)
	ErrBadSelection   apperrors.Error = apperrors.New("invalid selection").SetStatusCode(http.StatusBadRequest)
	ErrTransport      apperrors.Error = apperrors.New("dicom transport error").SetStatusCode(http.StatusBadGateway)
)
