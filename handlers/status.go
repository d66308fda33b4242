package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/distribution/archiver/api/errcode"
	v1 "github.com/distribution/archiver/api/v1"
	"github.com/distribution/archiver/archive"
	"github.com/distribution/archiver/internal/dcontext"
)

// checkStatusDispatcher takes the request context and builds the handler for
// pin status queries.
func checkStatusDispatcher(ctx *Context, r *http.Request) http.Handler {
	statusHandler := &statusHandler{
		Context: ctx,
	}

	return handlers.MethodHandler{
		http.MethodPost: http.HandlerFunc(statusHandler.CheckStatus),
	}
}

type statusHandler struct {
	*Context
}

// CheckStatus relays the pin status the cluster reports for the requested
// content identifier.
func (sh *statusHandler) CheckStatus(w http.ResponseWriter, r *http.Request) {
	var req v1.CheckStatusRequest
	if err := decodeJSON(w, r, sh.Config.HTTP.MaxBodySize, &req); err != nil {
		sh.Errors = append(sh.Errors, errcode.ErrorCodeBodyInvalid.WithDetail(err.Error()))
		return
	}

	status, err := sh.statuses.Status(sh, req.CID)
	if err != nil {
		var invalid *archive.InvalidCIDError
		if errors.As(err, &invalid) {
			sh.Errors = append(sh.Errors, errcode.ErrorCodeCIDInvalid.WithDetail(err.Error()))
		} else {
			sh.Errors = append(sh.Errors, errcode.ErrorCodePinStatus.WithDetail(err.Error()))
		}
		return
	}

	dcontext.GetLoggerWithField(sh, "cid", req.CID).Debugf("pin status %s", status.Summary())

	if err := serveJSON(w, v1.CheckStatusResponse{Status: status}); err != nil {
		dcontext.GetLogger(sh).Errorf("error serving pin status: %v", err)
	}
}
