package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/dtroode/mdpublish/internal/logger"
	"github.com/dtroode/mdpublish/internal/model"
)

const (
	CSRFCookie    = "dropbox-csrf-token"
	csrfCookieTTL = 600
)

// Authenticator runs the OAuth handshake.
type Authenticator interface {
	Begin() (authURL string, nonce string, err error)
	Complete(ctx context.Context, code, state, nonce string) (model.UID, error)
}

// Syncer runs one user's sync to completion.
type Syncer interface {
	Sync(ctx context.Context, uid model.UID) (model.SyncResult, error)
}

type Auth struct {
	auth         Authenticator
	syncer       Syncer
	secureCookie bool
	logger       *logger.Logger
}

func NewAuth(auth Authenticator, syncer Syncer, secureCookie bool, logger *logger.Logger) *Auth {
	return &Auth{
		auth:         auth,
		syncer:       syncer,
		secureCookie: secureCookie,
		logger:       logger,
	}
}

// Index serves the landing page.
func (h *Auth) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexPage))
}

// Login sends the browser to the provider's consent page.
func (h *Auth) Login(c *gin.Context) {
	authURL, nonce, err := h.auth.Begin()
	if err != nil {
		_ = c.Error(err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(CSRFCookie, nonce, csrfCookieTTL, "/", "", h.secureCookie, true)
	c.Redirect(http.StatusFound, authURL)
}

// Callback finishes authorization and runs the user's first sync before
// redirecting to the done page.
func (h *Auth) Callback(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		h.logger.Info("Auth: user declined authorization", "reason", reason)
		redirectDone(c, "access_denied")
		return
	}

	nonce, _ := c.Cookie(CSRFCookie)
	c.SetCookie(CSRFCookie, "", -1, "/", "", h.secureCookie, true)

	uid, err := h.auth.Complete(c.Request.Context(), c.Query("code"), c.Query("state"), nonce)
	if errors.Is(err, model.ErrInvalidState) {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	if errors.Is(err, model.ErrStorageUnavailable) {
		redirectDone(c, "storage_unavailable")
		return
	}
	if err != nil {
		redirectDone(c, "authorization_failed")
		return
	}

	result, err := h.syncer.Sync(c.Request.Context(), uid)
	if errors.Is(err, model.ErrStorageUnavailable) {
		h.logger.Error("Auth: initial sync failed", "uid", string(uid), "run_id", result.RunID, "error", err.Error())
		redirectDone(c, "storage_unavailable")
		return
	}
	if err != nil {
		// the next webhook for this user retries from the stored cursor
		h.logger.Warn("Auth: initial sync failed", "uid", string(uid), "run_id", result.RunID, "error", err.Error())
	}

	redirectDone(c, "")
}

// Done reports the outcome of authorization.
func (h *Auth) Done(c *gin.Context) {
	if reason := c.Query("error"); reason != "" {
		c.String(http.StatusOK, "Authorization did not complete (%s). Please try again from the start page.", reason)
		return
	}
	c.String(http.StatusOK, "All set! Markdown files in your Dropbox will now be published as HTML.")
}

func redirectDone(c *gin.Context, reason string) {
	target := "/done"
	if reason != "" {
		target += "?" + url.Values{"error": {reason}}.Encode()
	}
	c.Redirect(http.StatusFound, target)
}

const indexPage = `<!doctype html>
<html>
<head><title>mdpublish</title></head>
<body>
<p>Publish the Markdown files in your Dropbox as HTML, next to their sources.</p>
<p><a href="/login">Connect your Dropbox</a></p>
</body>
</html>
`
