package v1

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
)

// URLBuilder creates archiver API urls from a single base endpoint. It can be
// used to create urls for use in an archiver client or server.
//
// All urls will be created from the given base, including any path prefix.
// For example, if a root of "/foo/" is provided, urls generated will fall
// under "/foo/add", etc.
type URLBuilder struct {
	root   *url.URL // url root (ie http://localhost/)
	router *mux.Router
}

// NewURLBuilder creates a URLBuilder with provided root url object.
func NewURLBuilder(root *url.URL) *URLBuilder {
	u := *root
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	return &URLBuilder{
		root:   &u,
		router: Router(),
	}
}

// NewURLBuilderFromString works identically to NewURLBuilder except it takes
// a string argument for the root, returning an error if it is not a valid
// url.
func NewURLBuilderFromString(root string) (*URLBuilder, error) {
	u, err := url.Parse(root)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("archiver url %q must be absolute", root)
	}

	return NewURLBuilder(u), nil
}

// NewURLBuilderFromRequest uses information from an *http.Request to
// construct the root url.
func NewURLBuilderFromRequest(r *http.Request) *URLBuilder {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); len(forwarded) > 0 {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(forwarded, ",")[0]))
	}

	u := &url.URL{
		Scheme: scheme,
		Host:   r.Host,
	}

	return NewURLBuilder(u)
}

// BuildBaseURL constructs a base url for the API, typically just "/".
func (ub *URLBuilder) BuildBaseURL() (string, error) {
	route := ub.cloneRoute(RouteNameBase)

	baseURL, err := route.URL()
	if err != nil {
		return "", err
	}

	return baseURL.String(), nil
}

// BuildAddURL constructs the url of the batch endpoint. When isLink is
// set, the body is treated as a batch of links.
func (ub *URLBuilder) BuildAddURL(isLink bool, verbose bool) (string, error) {
	route := ub.cloneRoute(RouteNameAdd)

	addURL, err := route.URL()
	if err != nil {
		return "", err
	}

	values := url.Values{}
	if isLink {
		values.Set("is_link", "true")
	}
	if verbose {
		values.Set("verbose", "true")
	}

	return appendValuesURL(addURL, values).String(), nil
}

// BuildCheckStatusURL constructs the url of the pin status endpoint.
func (ub *URLBuilder) BuildCheckStatusURL() (string, error) {
	route := ub.cloneRoute(RouteNameCheckStatus)

	statusURL, err := route.URL()
	if err != nil {
		return "", err
	}

	return statusURL.String(), nil
}

// cloneRoute returns a clone of the named route from the router. Routes
// must be cloned to avoid modifying them during url generation.
func (ub *URLBuilder) cloneRoute(name string) clonedRoute {
	route := new(mux.Route)
	root := new(url.URL)

	*route = *ub.router.GetRoute(name) // clone the route
	*root = *ub.root

	return clonedRoute{Route: route, root: root}
}

type clonedRoute struct {
	*mux.Route
	root *url.URL
}

func (cr clonedRoute) URL(pairs ...string) (*url.URL, error) {
	routeURL, err := cr.Route.URL(pairs...)
	if err != nil {
		return nil, err
	}

	if routeURL.Scheme == "" && routeURL.User == nil && routeURL.Host == "" {
		routeURL.Path = routeURL.Path[1:]
	}

	url := cr.root.ResolveReference(routeURL)
	url.Scheme = cr.root.Scheme
	return url, nil
}

// appendValuesURL appends the parameters to the url.
func appendValuesURL(u *url.URL, values url.Values) *url.URL {
	merged := u.Query()

	for k, vs := range values {
		for _, v := range vs {
			merged.Add(k, v)
		}
	}

	u.RawQuery = merged.Encode()
	return u
}
