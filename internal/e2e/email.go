// AngelaMos | 2026
// email.go

package e2e

import (
	"os"
	"strings"
)

// UniquifyEmail appends -$PORT to the local part so parallel checkouts of
// the suite, each on its own port, never share fixture users.
func UniquifyEmail(email string) string {
	return uniquify(email, os.Getenv("PORT"))
}

func uniquify(email, port string) string {
	if port == "" {
		return email
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok {
		return email + "-" + port
	}
	return local + "-" + port + "@" + domain
}
