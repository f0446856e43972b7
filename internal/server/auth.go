package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Iron-Ham/shortkeys/internal/errors"
	"github.com/Iron-Ham/shortkeys/internal/store"
)

// SessionCookie is the name of the session cookie.
const SessionCookie = "sessionId"

// Response messages
const (
	msgInvalidCredentials = "Invalid username or password"
	msgMissingCredentials = "Missing credentials"
	msgNotLoggedIn        = "User is not logged in"
	msgSignedOut          = "Signed out"
)

// Signin outcomes for shortkeys_signin_total
const (
	outcomeSuccess = "success"
	outcomeInvalid = "invalid"
	outcomeError   = "error"
)

// Credentials is the signin request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type session struct {
	UserID  string `json:"uid"`
	Created int64  `json:"iat"`
}

func (s *Server) handleSignin(w http.ResponseWriter, r *http.Request) {
	user, err := s.authenticate(r.Context(), r.Body)
	switch {
	case errors.Is(err, errors.ErrInvalidInput):
		s.signins.WithLabelValues(outcomeInvalid).Inc()
		writeJSON(w, http.StatusBadRequest, message{Message: msgMissingCredentials})
		return
	case errors.Is(err, errors.ErrInvalidCredentials):
		s.signins.WithLabelValues(outcomeInvalid).Inc()
		writeJSON(w, http.StatusBadRequest, message{Message: msgInvalidCredentials})
		return
	case err != nil:
		s.signins.WithLabelValues(outcomeError).Inc()
		s.logger.Error("signin lookup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, message{Message: http.StatusText(http.StatusInternalServerError)})
		return
	}

	cookie, err := s.sessionCookie(user.ID)
	if err != nil {
		s.signins.WithLabelValues(outcomeError).Inc()
		s.logger.Error("failed to encode session", "user", user.ID.Hex(), "error", err)
		writeJSON(w, http.StatusInternalServerError, message{Message: http.StatusText(http.StatusInternalServerError)})
		return
	}
	http.SetCookie(w, cookie)
	s.signins.WithLabelValues(outcomeSuccess).Inc()
	s.logger.Info("user signed in", "user", user.ID.Hex())
	writeJSON(w, http.StatusOK, user)
}

// authenticate decodes a Credentials body and verifies it against the stored
// user. It returns ErrInvalidInput for a malformed or incomplete body and
// ErrInvalidCredentials for an unknown user or a wrong password.
func (s *Server) authenticate(ctx context.Context, body io.Reader) (*store.User, error) {
	var creds Credentials
	if err := json.NewDecoder(body).Decode(&creds); err != nil {
		return nil, errors.NewValidationError("malformed signin body").WithCause(err)
	}
	if creds.Username == "" || creds.Password == "" {
		return nil, errors.NewValidationError("missing credentials")
	}

	user, err := s.users.FindUserByUsername(ctx, creds.Username)
	if errors.Is(err, errors.ErrDocumentNotFound) {
		return nil, errors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to look up %q", creds.Username)
	}
	if !user.Authenticate(creds.Password) {
		return nil, errors.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Server) handleSignout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, message{Message: msgSignedOut})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.currentUser(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, message{Message: msgNotLoggedIn})
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) sessionCookie(id primitive.ObjectID) (*http.Cookie, error) {
	encoded, err := s.cookies.Encode(SessionCookie, session{UserID: id.Hex(), Created: s.now().Unix()})
	if err != nil {
		return nil, err
	}
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    encoded,
		Path:     "/",
		Expires:  s.now().Add(s.cfg.SessionTTL()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}, nil
}

// currentUser resolves the session cookie on r to a stored user.
func (s *Server) currentUser(r *http.Request) (*store.User, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil || c.Value == "" {
		return nil, errors.ErrNoSession
	}
	var sess session
	if err := s.cookies.Decode(SessionCookie, c.Value, &sess); err != nil {
		return nil, errors.Join(errors.ErrNoSession, err)
	}
	if ttl := s.cfg.SessionTTL(); ttl > 0 && s.now().Sub(time.Unix(sess.Created, 0)) > ttl {
		return nil, errors.ErrNoSession
	}
	id, err := primitive.ObjectIDFromHex(sess.UserID)
	if err != nil {
		return nil, errors.Join(errors.ErrNoSession, err)
	}
	return s.users.FindUserByID(r.Context(), id)
}
