package common

import (
	"encoding/base64"
)

// AuthenticationScheme names the kind of credentials carried by an Authentication
type AuthenticationScheme string

const (
	AuthSchemeNone  AuthenticationScheme = "none"
	AuthSchemeBasic AuthenticationScheme = "plain"
	AuthSchemeJWT   AuthenticationScheme = "jwt"
)

// Authentication holds the credential material applied to a connection.
// Over HTTP it becomes an Authorization header, over VST it is sent as the
// first in-band message after the protocol header.
type Authentication struct {
	Scheme   AuthenticationScheme
	User     string
	Password string
	Token    string
}

// NoAuthentication returns empty credentials
func NoAuthentication() Authentication {
	return Authentication{Scheme: AuthSchemeNone}
}

// BasicAuthentication returns user/password credentials. An empty password is allowed.
func BasicAuthentication(user, password string) Authentication {
	return Authentication{Scheme: AuthSchemeBasic, User: user, Password: password}
}

// JWTAuthentication returns bearer token credentials
func JWTAuthentication(token string) Authentication {
	return Authentication{Scheme: AuthSchemeJWT, Token: token}
}

// AuthenticationFromConfig derives credentials from the user/password of a config
func AuthenticationFromConfig(config ConnectionConfig) Authentication {
	if config.User == "" {
		return NoAuthentication()
	}
	return BasicAuthentication(config.User, config.Password)
}

// IsEmpty reports whether no credentials are configured
func (a Authentication) IsEmpty() bool {
	switch a.Scheme {
	case AuthSchemeBasic:
		return a.User == ""
	case AuthSchemeJWT:
		return a.Token == ""
	default:
		return true
	}
}

// HeaderValue returns the value of the HTTP Authorization header, or "" if no credentials are set
func (a Authentication) HeaderValue() string {
	if a.IsEmpty() {
		return ""
	}
	if a.Scheme == AuthSchemeJWT {
		return "bearer " + a.Token
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(a.User+":"+a.Password))
}
