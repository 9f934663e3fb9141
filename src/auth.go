package main

import (
	"crypto/subtle"
	"net/http"

	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// HTTP Basic авторизация, пароль сверяется с bcrypt-хэшем
type basicAuth struct {
	user string
	hash []byte
}

func newBasicAuth(user, hash string) *basicAuth {
	return &basicAuth{user: user, hash: []byte(hash)}
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func (a *basicAuth) check(user, password string) bool {
	if subtle.ConstantTimeCompare([]byte(user), []byte(a.user)) != 1 {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
}

func (a *basicAuth) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, password, ok := r.BasicAuth()
		if !ok || !a.check(user, password) {
			log.WithField("remote", r.RemoteAddr).Warn("unauthorized request")
			w.Header().Set("WWW-Authenticate", `Basic realm="board-manager"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
