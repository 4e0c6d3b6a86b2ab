package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mw "github.com/fatflowers/paysync/internal/app/api/middleware"
)

// AuthPolicy declares who may call a route.
type AuthPolicy int

const (
	AuthNone AuthPolicy = iota
	AuthUser
	AuthAdmin
)

// Route is one endpoint with its body and auth policy. The policies are
// resolved into middleware once, when the route is mounted.
type Route struct {
	Method  string
	Path    string
	Body    mw.BodyPolicy
	Auth    AuthPolicy
	Handler gin.HandlerFunc
}

type MountOptions struct {
	MaxBodyBytes int64
	JWTSecret    string
	Log          *zap.SugaredLogger
}

// Mount registers routes on r. Auth runs before body handling so an
// unauthenticated caller never has its body read.
func Mount(r gin.IRoutes, opts MountOptions, routes ...Route) {
	var userAuth gin.HandlerFunc
	if opts.JWTSecret != "" {
		userAuth = mw.JWTAuth(opts.JWTSecret, opts.Log)
	}
	for _, rt := range routes {
		var chain []gin.HandlerFunc
		switch rt.Auth {
		case AuthUser:
			chain = append(chain, authOrDeny(userAuth, opts.Log))
		case AuthAdmin:
			chain = append(chain, authOrDeny(userAuth, opts.Log), mw.RequireRole(adminRole))
		}
		chain = append(chain, mw.ForBody(rt.Body, opts.MaxBodyBytes)...)
		chain = append(chain, rt.Handler)
		r.Handle(rt.Method, rt.Path, chain...)
	}
}

const adminRole = "admin"

// authOrDeny falls back to a middleware that rejects everything when no
// secret is configured.
func authOrDeny(auth gin.HandlerFunc, log *zap.SugaredLogger) gin.HandlerFunc {
	if auth != nil {
		return auth
	}
	return mw.JWTAuth("", log)
}
