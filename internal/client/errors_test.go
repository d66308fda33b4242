package client

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/distribution/archiver/api/errcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopCloser struct {
	io.Reader
}

func (nopCloser) Close() error { return nil }

func response(status int, contentType, body string) *http.Response {
	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       nopCloser{strings.NewReader(body)},
	}
}

func TestHandleHTTPResponseErrorSuccess(t *testing.T) {
	assert.NoError(t, HandleHTTPResponseError(response(http.StatusOK, "", "")))
	assert.NoError(t, HandleHTTPResponseError(response(http.StatusAccepted, "application/json", "{}")))
}

func TestHandleHTTPResponseErrorStoreDocument(t *testing.T) {
	body := `{"Message":"file does not exist","Code":0,"Type":"error"}`
	err := HandleHTTPResponseError(response(http.StatusInternalServerError, "application/json", body))

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, "file does not exist", upstream.Message)
	assert.Equal(t, "error", upstream.Type)
	assert.Equal(t, http.StatusInternalServerError, upstream.StatusCode)
}

func TestHandleHTTPResponseErrorClusterDocument(t *testing.T) {
	body := `{"code":404,"message":"cid is not part of the global state"}`
	err := HandleHTTPResponseError(response(http.StatusNotFound, "application/json; charset=utf-8", body))

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, 404, upstream.Code)
	assert.Equal(t, "cid is not part of the global state", upstream.Message)
}

func TestHandleHTTPResponseErrorEnvelope(t *testing.T) {
	body := `{"errors":[{"code":"LINKS_INVALID","message":"invalid link batch","detail":"position 1"}]}`
	err := HandleHTTPResponseError(response(http.StatusBadRequest, "application/json", body))

	var errs errcode.Errors
	require.ErrorAs(t, err, &errs)
	require.Len(t, errs, 1)
	assert.Equal(t, errcode.ErrorCodeLinksInvalid, errs[0].(errcode.ErrorCoder).ErrorCode())
}

func TestHandleHTTPResponseErrorPlainText(t *testing.T) {
	err := HandleHTTPResponseError(response(http.StatusBadGateway, "text/plain", "bad gateway\n"))

	var unexpected *UnexpectedHTTPStatusError
	require.ErrorAs(t, err, &unexpected)
	assert.Equal(t, "bad gateway", unexpected.Body)
}

func TestHandleHTTPResponseErrorUnauthorized(t *testing.T) {
	err := HandleHTTPResponseError(response(http.StatusUnauthorized, "application/json", `{"errors": [`))

	var ecErr errcode.Error
	require.ErrorAs(t, err, &ecErr)
	assert.Equal(t, errcode.ErrorCodeUnauthorized, ecErr.Code)
}

func TestHandleHTTPResponseErrorEmptyBody(t *testing.T) {
	err := HandleHTTPResponseError(response(http.StatusServiceUnavailable, "application/json", ""))

	var unexpected *UnexpectedHTTPStatusError
	require.ErrorAs(t, err, &unexpected)
	assert.Empty(t, unexpected.Body)
}
