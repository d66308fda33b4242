// Package basic provides HTTP basic authentication for the archiver API.
// Credentials come either from a single static user, whose password is set
// in the configuration, or from an htpasswd file with bcrypt entries.
//
// This authentication method MUST be used under TLS, as simple token-replay
// attack is possible.
package basic

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"

	"github.com/distribution/archiver/auth"
	"github.com/distribution/archiver/internal/dcontext"
)

const (
	defaultRealm    = "archiver"
	defaultUsername = "admin"
)

type accessController struct {
	realm    string
	username string
	password string
	htpasswd *htpasswd
}

var _ auth.AccessController = &accessController{}

func newAccessController(options map[string]interface{}) (auth.AccessController, error) {
	ac := &accessController{
		realm:    defaultRealm,
		username: defaultUsername,
	}

	for key, target := range map[string]*string{
		"realm":    &ac.realm,
		"username": &ac.username,
		"password": &ac.password,
	} {
		value, present := options[key]
		if !present || value == nil {
			continue
		}
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%q must be a string for basic access controller", key)
		}
		if s != "" {
			*target = s
		}
	}

	if path, present := options["path"]; present {
		p, ok := path.(string)
		if !ok || p == "" {
			return nil, fmt.Errorf(`"path" must be a non-empty string for basic access controller`)
		}

		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		h, err := newHTPasswd(f)
		if err != nil {
			return nil, err
		}
		ac.htpasswd = h
		return ac, nil
	}

	if ac.password == "" {
		return nil, fmt.Errorf(`"password" or "path" must be set for basic access controller`)
	}

	return ac, nil
}

func (ac *accessController) Authorized(ctx context.Context) (context.Context, error) {
	req, err := dcontext.GetRequest(ctx)
	if err != nil {
		return nil, err
	}

	username, password, ok := req.BasicAuth()
	if !ok {
		return nil, &challenge{
			realm: ac.realm,
			err:   auth.ErrInvalidCredential,
		}
	}

	if err := ac.authenticateUser(username, password); err != nil {
		dcontext.GetLogger(ctx).Errorf("error authenticating user %q: %v", username, err)
		return nil, &challenge{
			realm: ac.realm,
			err:   auth.ErrAuthenticationFailure,
		}
	}

	return auth.WithUser(ctx, auth.UserInfo{Name: username}), nil
}

func (ac *accessController) authenticateUser(username, password string) error {
	if ac.htpasswd != nil {
		return ac.htpasswd.authenticateUser(username, password)
	}

	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(ac.username))
	passwordMatch := subtle.ConstantTimeCompare([]byte(password), []byte(ac.password))
	if userMatch&passwordMatch != 1 {
		return auth.ErrAuthenticationFailure
	}
	return nil
}

// challenge implements the auth.Challenge interface.
type challenge struct {
	realm string
	err   error
}

var _ auth.Challenge = challenge{}

// SetHeaders sets the basic challenge header on the response.
func (ch challenge) SetHeaders(r *http.Request, w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", ch.realm))
}

func (ch challenge) Error() string {
	return fmt.Sprintf("basic authentication challenge for realm %q: %s", ch.realm, ch.err)
}

func init() {
	if err := auth.Register("basic", auth.InitFunc(newAccessController)); err != nil {
		panic(err)
	}
}
