package errcode

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
)

var (
	errorCodeToDescriptors = map[ErrorCode]ErrorDescriptor{}
	idToDescriptors        = map[string]ErrorDescriptor{}
	groupToDescriptors     = map[string][]ErrorDescriptor{}
)

var (
	// ErrorCodeUnknown is a generic error that can be used as a last
	// resort if there is no situation-specific error message that can be used
	ErrorCodeUnknown = register("errcode", ErrorDescriptor{
		Value:   "UNKNOWN",
		Message: "unknown error",
		Description: `Generic error returned when the error does not have an
		API classification.`,
		HTTPStatusCode: http.StatusInternalServerError,
	})

	// ErrorCodeUnsupported is returned when an operation is not supported.
	ErrorCodeUnsupported = register("errcode", ErrorDescriptor{
		Value:   "UNSUPPORTED",
		Message: "The operation is unsupported.",
		Description: `The operation was unsupported due to a missing
		implementation or invalid set of parameters.`,
		HTTPStatusCode: http.StatusMethodNotAllowed,
	})

	// ErrorCodeUnauthorized is returned if a request requires
	// authentication.
	ErrorCodeUnauthorized = register("errcode", ErrorDescriptor{
		Value:   "UNAUTHORIZED",
		Message: "authentication required",
		Description: `The access controller was unable to authenticate
		the client. Often this will be accompanied by a
		Www-Authenticate HTTP response header indicating how to
		authenticate.`,
		HTTPStatusCode: http.StatusUnauthorized,
	})

	// ErrorCodeUnavailable provides a common error to report unavailability
	// of a service or endpoint.
	ErrorCodeUnavailable = register("errcode", ErrorDescriptor{
		Value:          "UNAVAILABLE",
		Message:        "service unavailable",
		Description:    "Returned when a service is not available",
		HTTPStatusCode: http.StatusServiceUnavailable,
	})

	// ErrorCodeTooManyRequests is returned if a client attempts too many
	// times to contact a service endpoint.
	ErrorCodeTooManyRequests = register("errcode", ErrorDescriptor{
		Value:   "TOOMANYREQUESTS",
		Message: "too many requests",
		Description: `Returned when a client attempts to contact a
		service too many times`,
		HTTPStatusCode: http.StatusTooManyRequests,
	})
)

const errGroup = "archiver.api.v1"

var (
	// ErrorCodeBodyInvalid is returned when the request body cannot be
	// decoded or exceeds the configured size limit.
	ErrorCodeBodyInvalid = register(errGroup, ErrorDescriptor{
		Value:          "BODY_INVALID",
		Message:        "invalid request body",
		Description:    `The request body could not be decoded as JSON or was too large.`,
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodeLinksInvalid is returned when a batch is empty or too large.
	ErrorCodeLinksInvalid = register(errGroup, ErrorDescriptor{
		Value:   "LINKS_INVALID",
		Message: "invalid link batch",
		Description: `Returned when the links list is empty or exceeds the
		configured maximum. Malformed links do not reject the batch, they
		are reported as failed links.`,
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodeDirectoryCreate is returned when the scratch directory for a
	// batch cannot be created in the store.
	ErrorCodeDirectoryCreate = register(errGroup, ErrorDescriptor{
		Value:   "DIRECTORY_CREATE_FAILED",
		Message: "failed to create batch directory",
		Description: `The store refused to create the scratch directory for
		the batch. No link was fetched.`,
		HTTPStatusCode: http.StatusNotAcceptable,
	})

	// ErrorCodeDirectoryFinalize is returned when the assembled directory
	// cannot be resolved to a content identifier.
	ErrorCodeDirectoryFinalize = register(errGroup, ErrorDescriptor{
		Value:   "DIRECTORY_FINALIZE_FAILED",
		Message: "failed to finalize batch directory",
		Description: `All links were processed but the store could not
		report the identifier of the assembled directory.`,
		HTTPStatusCode: http.StatusNotAcceptable,
	})

	// ErrorCodeCIDInvalid is returned when a status query carries a
	// malformed content identifier.
	ErrorCodeCIDInvalid = register(errGroup, ErrorDescriptor{
		Value:          "CID_INVALID",
		Message:        "invalid content identifier",
		Description:    `The cid field is missing or cannot be parsed.`,
		HTTPStatusCode: http.StatusBadRequest,
	})

	// ErrorCodePinStatus is returned when the cluster cannot report the pin
	// status of a content identifier.
	ErrorCodePinStatus = register(errGroup, ErrorDescriptor{
		Value:          "PIN_STATUS_FAILED",
		Message:        "failed to query pin status",
		Description:    `The cluster did not answer the pin status query.`,
		HTTPStatusCode: http.StatusInternalServerError,
	})
)

var (
	nextCode     = 1000
	registerLock sync.Mutex
)

// Register will make the passed-in error known to the environment and
// return a new ErrorCode
func Register(group string, descriptor ErrorDescriptor) ErrorCode {
	return register(group, descriptor)
}

// register will make the passed-in error known to the environment and
// return a new ErrorCode
func register(group string, descriptor ErrorDescriptor) ErrorCode {
	registerLock.Lock()
	defer registerLock.Unlock()

	descriptor.Code = ErrorCode(nextCode)

	if _, ok := idToDescriptors[descriptor.Value]; ok {
		panic(fmt.Sprintf("ErrorValue %q is already registered", descriptor.Value))
	}
	if _, ok := errorCodeToDescriptors[descriptor.Code]; ok {
		panic(fmt.Sprintf("ErrorCode %v is already registered", descriptor.Code))
	}

	groupToDescriptors[group] = append(groupToDescriptors[group], descriptor)
	errorCodeToDescriptors[descriptor.Code] = descriptor
	idToDescriptors[descriptor.Value] = descriptor

	nextCode++
	return descriptor.Code
}

type byValue []ErrorDescriptor

func (a byValue) Len() int           { return len(a) }
func (a byValue) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byValue) Less(i, j int) bool { return a[i].Value < a[j].Value }

// GetGroupNames returns the list of Error group names that are registered
func GetGroupNames() []string {
	keys := []string{}

	for k := range groupToDescriptors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetErrorCodeGroup returns the named group of error descriptors
func GetErrorCodeGroup(name string) []ErrorDescriptor {
	desc := groupToDescriptors[name]
	sort.Sort(byValue(desc))
	return desc
}

// GetErrorAllDescriptors returns a slice of all ErrorDescriptors that are
// registered, irrespective of what group they're in
func GetErrorAllDescriptors() []ErrorDescriptor {
	result := []ErrorDescriptor{}

	for _, group := range GetGroupNames() {
		result = append(result, GetErrorCodeGroup(group)...)
	}
	sort.Sort(byValue(result))
	return result
}
