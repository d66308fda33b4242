package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/handlers"

	"github.com/distribution/archiver/api/errcode"
	v1 "github.com/distribution/archiver/api/v1"
	"github.com/distribution/archiver/archive"
	"github.com/distribution/archiver/internal/dcontext"
)

// addDispatcher takes the request context and builds the appropriate handler
// for handling batch requests.
func addDispatcher(ctx *Context, r *http.Request) http.Handler {
	addHandler := &addHandler{
		Context: ctx,
	}

	return handlers.MethodHandler{
		http.MethodPost: http.HandlerFunc(addHandler.Add),
	}
}

// addHandler handles http operations on link batches.
type addHandler struct {
	*Context
}

// Add archives the links of the request body into a new directory, pins it
// and reports the outcome. Without the is_link query parameter the request
// is acknowledged and nothing is archived.
func (ah *addHandler) Add(w http.ResponseWriter, r *http.Request) {
	isLink, err := queryBool(r, "is_link")
	if err != nil {
		ah.Errors = append(ah.Errors, errcode.ErrorCodeLinksInvalid.WithDetail(err.Error()))
		return
	}
	if !isLink {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("1"))
		return
	}

	verbose, err := queryBool(r, "verbose")
	if err != nil {
		ah.Errors = append(ah.Errors, errcode.ErrorCodeLinksInvalid.WithDetail(err.Error()))
		return
	}

	var req v1.AddRequest
	if err := decodeJSON(w, r, ah.Config.HTTP.MaxBodySize, &req); err != nil {
		ah.Errors = append(ah.Errors, errcode.ErrorCodeBodyInvalid.WithDetail(err.Error()))
		return
	}

	result, err := ah.orchestrator.RunBatch(ah, req.Links)
	if err != nil {
		ah.Errors = append(ah.Errors, batchError(err))
		return
	}

	// Pinning is not canceled with the request.
	pinned := ah.orchestrator.PinDirectory(dcontext.DetachedContext(ah), result.DirectoryCID)

	resp := v1.AddResponse{
		Data: v1.AddResult{
			IpfsHash:     result.DirectoryCID.String(),
			Pin:          pinned,
			FailedLinks:  nonNil(result.FailedLinks),
			DroppedLinks: nonNil(result.DroppedLinks),
		},
	}
	if verbose {
		resp.Data.Items = result.Items
	}

	if err := serveJSON(w, resp); err != nil {
		dcontext.GetLogger(ah).Errorf("error serving batch result: %v", err)
	}
}

// batchError maps a RunBatch failure to its api error.
func batchError(err error) error {
	var (
		create   *archive.DirectoryCreateError
		finalize *archive.FinalizeError
	)

	switch {
	case errors.Is(err, archive.ErrNoLinks), errors.Is(err, archive.ErrTooManyLinks):
		return errcode.ErrorCodeLinksInvalid.WithDetail(err.Error())
	case errors.As(err, &create):
		return errcode.ErrorCodeDirectoryCreate.WithDetail(err.Error())
	case errors.As(err, &finalize):
		return errcode.ErrorCodeDirectoryFinalize.WithDetail(err.Error())
	default:
		return errcode.ErrorCodeUnknown.WithDetail(err.Error())
	}
}

// queryBool parses the named query parameter. Absent and empty values are
// false.
func queryBool(r *http.Request, name string) (bool, error) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return false, nil
	}
	return strconv.ParseBool(value)
}

func nonNil(links []string) []string {
	if links == nil {
		return []string{}
	}
	return links
}
