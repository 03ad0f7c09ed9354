package auth

import (
	"net/http"
	"strings"
)

// HeaderSubject is set by the fronting gateway with the signed-in user.
const HeaderSubject = "X-Auth-Subject"

// ActorFromRequest names who acted in audit records. Requests that did not
// pass through the gateway are attributed to "console".
func ActorFromRequest(r *http.Request) string {
	if r == nil {
		return "console"
	}
	if subject := strings.TrimSpace(r.Header.Get(HeaderSubject)); subject != "" {
		return subject
	}
	return "console"
}
