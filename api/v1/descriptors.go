package v1

import (
	"net/http"

	"github.com/distribution/archiver/api/errcode"
)

// ParameterDescriptor describes the format of a request parameter, which
// may be a header, query parameter or body field.
type ParameterDescriptor struct {
	// Name is the name of the parameter, either of the path component or
	// query parameter.
	Name string

	// Type specifies the type of the parameter, such as string, integer, etc.
	Type string

	// Description provides a human-readable description of the parameter.
	Description string

	// Required means the field is required when set.
	Required bool

	// Format is a specifying the string format accepted by this parameter.
	Format string

	// Examples provides multiple examples for the values that might be valid
	// for this parameter.
	Examples []string
}

// BodyDescriptor describes a request or response body.
type BodyDescriptor struct {
	ContentType string
	Format      string
}

// ResponseDescriptor describes the components of an API response.
type ResponseDescriptor struct {
	// Name provides a short description of the response.
	Name string

	// Description should provide a brief overview of the role of the
	// response.
	Description string

	// StatusCode specifies the status received by this particular response.
	StatusCode int

	// Headers covers any headers that may be returned from the response.
	Headers []ParameterDescriptor

	// ErrorCodes enumerates the error codes that may be returned along with
	// the response.
	ErrorCodes []errcode.ErrorCode

	// Body describes the body of the response, if any.
	Body BodyDescriptor
}

// RequestDescriptor covers a particular set of headers and parameters that
// can be carried out with the parent method.
type RequestDescriptor struct {
	// Name provides a short identifier for the request, usable as a title or
	// to provide quick context for the particular request.
	Name string

	// Description should cover the requests purpose, covering any details for
	// this particular use case.
	Description string

	// Headers describes headers that must be used with the HTTP request.
	Headers []ParameterDescriptor

	// QueryParameters provides a list of query parameters for the given
	// request.
	QueryParameters []ParameterDescriptor

	// Body describes the format of the request body.
	Body BodyDescriptor

	// Successes enumerates the possible responses that are considered to be
	// the result of a successful request.
	Successes []ResponseDescriptor

	// Failures covers the possible failures from this particular request.
	Failures []ResponseDescriptor
}

// MethodDescriptor provides a description of the requests that may be
// conducted with the target method.
type MethodDescriptor struct {
	// Method is an HTTP method, such as GET, PUT or POST.
	Method string

	// Description should provide an overview of the functionality provided by
	// the covered method, suitable for use in documentation.
	Description string

	// Requests is a slice of request descriptors enumerating how this
	// endpoint may be used.
	Requests []RequestDescriptor
}

// RouteDescriptor describes a route specified by name.
type RouteDescriptor struct {
	// Name is the name of the route, as specified in RouteNameXXX exports.
	// These names a should be considered a unique reference for a route. If
	// the route is registered with gorilla, this is the name that will be
	// used.
	Name string

	// Path is a gorilla/mux-compatible regexp that can be used to match the
	// route. For any incoming method and path, only one route descriptor
	// should match.
	Path string

	// Entity should be a short, human-readable description of the object
	// targeted by the endpoint.
	Entity string

	// Description should provide an accurate overview of the functionality
	// provided by the route.
	Description string

	// Methods should describe the various HTTP methods that may be used on
	// this route, including request and response formats.
	Methods []MethodDescriptor
}

var (
	authHeader = ParameterDescriptor{
		Name:        "Authorization",
		Type:        "string",
		Description: "rfc7617 basic authorization header.",
		Format:      "Basic <credentials>",
		Examples:    []string{"Basic YWRtaW46c2VjcmV0"},
	}

	authChallengeHeader = ParameterDescriptor{
		Name:        "WWW-Authenticate",
		Type:        "string",
		Description: "An RFC7235 compliant authentication challenge header.",
		Format:      `Basic realm="<realm>"`,
	}

	isLinkParameter = ParameterDescriptor{
		Name:        "is_link",
		Type:        "boolean",
		Description: "Must be true for the body to be treated as a batch of links.",
		Format:      "true",
	}

	verboseParameter = ParameterDescriptor{
		Name:        "verbose",
		Type:        "boolean",
		Description: "Include the outcome of every link in the response.",
		Format:      "true",
	}

	unauthorizedResponseDescriptor = ResponseDescriptor{
		Name:        "Authentication Required",
		StatusCode:  http.StatusUnauthorized,
		Description: "The client is not authenticated.",
		Headers:     []ParameterDescriptor{authChallengeHeader},
		Body: BodyDescriptor{
			ContentType: "application/json",
			Format:      errorsBody,
		},
		ErrorCodes: []errcode.ErrorCode{
			errcode.ErrorCodeUnauthorized,
		},
	}
)

const (
	addBody = `{
    "links": [
        "https://example.com/1.png",
        ...
    ]
}`

	addResponseBody = `{
    "data": {
        "IpfsHash": "<directory cid>",
        "pin": <bool>,
        "failedLinks": ["<link>", ...],
        "droppedLinks": ["<link>", ...],
        "items": [...]
    }
}`

	checkStatusBody = `{
    "cid": "<cid>"
}`

	checkStatusResponseBody = `{
    "status": <cluster pin status>
}`

	errorsBody = `{
	"errors:" [
	    {
            "code": <error code>,
            "message": "<error message>",
            "detail": ...
        },
        ...
    ]
}`
)

var routeDescriptors = []RouteDescriptor{
	{
		Name:        RouteNameBase,
		Path:        "/",
		Entity:      "Base",
		Description: `Base route of the API. It answers without authentication and can be used as a liveness check.`,
		Methods: []MethodDescriptor{
			{
				Method:      http.MethodGet,
				Description: "Reports that the API is available.",
				Requests: []RequestDescriptor{
					{
						Successes: []ResponseDescriptor{
							{
								Description: "The API is available.",
								StatusCode:  http.StatusOK,
								Body: BodyDescriptor{
									ContentType: "text/plain; charset=utf-8",
									Format:      "API",
								},
							},
						},
					},
				},
			},
		},
	},
	{
		Name:        RouteNameAdd,
		Path:        "/add",
		Entity:      "Batch",
		Description: "Archive a batch of links into one directory and pin it on the cluster.",
		Methods: []MethodDescriptor{
			{
				Method:      http.MethodPost,
				Description: "Fetch every link, store it under its 1-based position and return the identifier of the directory.",
				Requests: []RequestDescriptor{
					{
						Name:            "Archive Links",
						Headers:         []ParameterDescriptor{authHeader},
						QueryParameters: []ParameterDescriptor{isLinkParameter, verboseParameter},
						Body: BodyDescriptor{
							ContentType: "application/json",
							Format:      addBody,
						},
						Successes: []ResponseDescriptor{
							{
								Description: "The directory was assembled. Links that could not be archived are listed.",
								StatusCode:  http.StatusOK,
								Body: BodyDescriptor{
									ContentType: "application/json",
									Format:      addResponseBody,
								},
							},
						},
						Failures: []ResponseDescriptor{
							{
								Name:        "Invalid Request",
								Description: "The body could not be decoded, or the links list is empty or too large.",
								StatusCode:  http.StatusBadRequest,
								ErrorCodes: []errcode.ErrorCode{
									errcode.ErrorCodeBodyInvalid,
									errcode.ErrorCodeLinksInvalid,
								},
								Body: BodyDescriptor{
									ContentType: "application/json",
									Format:      errorsBody,
								},
							},
							{
								Name:        "Directory Failure",
								Description: "The batch directory could not be created or finalized.",
								StatusCode:  http.StatusNotAcceptable,
								ErrorCodes: []errcode.ErrorCode{
									errcode.ErrorCodeDirectoryCreate,
									errcode.ErrorCodeDirectoryFinalize,
								},
								Body: BodyDescriptor{
									ContentType: "application/json",
									Format:      errorsBody,
								},
							},
							unauthorizedResponseDescriptor,
						},
					},
				},
			},
		},
	},
	{
		Name:        RouteNameCheckStatus,
		Path:        "/check-status",
		Entity:      "PinStatus",
		Description: "Query the pin status of content on the cluster.",
		Methods: []MethodDescriptor{
			{
				Method:      http.MethodPost,
				Description: "Relay the cluster pin status of the given cid.",
				Requests: []RequestDescriptor{
					{
						Headers: []ParameterDescriptor{authHeader},
						Body: BodyDescriptor{
							ContentType: "application/json",
							Format:      checkStatusBody,
						},
						Successes: []ResponseDescriptor{
							{
								StatusCode: http.StatusOK,
								Body: BodyDescriptor{
									ContentType: "application/json",
									Format:      checkStatusResponseBody,
								},
							},
						},
						Failures: []ResponseDescriptor{
							{
								Name:       "Invalid CID",
								StatusCode: http.StatusBadRequest,
								ErrorCodes: []errcode.ErrorCode{
									errcode.ErrorCodeBodyInvalid,
									errcode.ErrorCodeCIDInvalid,
								},
							},
							{
								Name:        "Status Failure",
								Description: "The cluster could not be queried.",
								StatusCode:  http.StatusInternalServerError,
								ErrorCodes: []errcode.ErrorCode{
									errcode.ErrorCodePinStatus,
								},
							},
							unauthorizedResponseDescriptor,
						},
					},
				},
			},
		},
	},
}

// APIDescriptor exports descriptions of the layout of the v1 archiver API.
var APIDescriptor = struct {
	// RouteDescriptors provides a list of the routes available in the API.
	RouteDescriptors []RouteDescriptor
}{
	RouteDescriptors: routeDescriptors,
}
