//go:generate go run go.uber.org/mock/mockgen -source=directory.go -destination=../mocks/mock_directory.go -package=mocks
package gateway

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnknownAddress = errors.New("address not found on this server")

// Directory resolves "user@domain" addresses to numeric user ids. The real
// resolution lives in the host core server; this module only consumes it.
type Directory interface {
	ResolveAddress(address string) (int64, error)
}

// StaticDirectory is a config-backed Directory for standalone deployments and
// tests, built from a "alice@example.com=1,bob@example.com=2" spec.
type StaticDirectory struct {
	users map[string]int64
}

func NewStaticDirectory(spec string) (*StaticDirectory, error) {
	users := make(map[string]int64)
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		address, id, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("address book entry %q is not address=id", pair)
		}
		userID, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("address book entry %q: %w", pair, err)
		}
		users[NormalizeAddress(address)] = userID
	}
	return &StaticDirectory{users: users}, nil
}

func (d *StaticDirectory) ResolveAddress(address string) (int64, error) {
	userID, ok := d.users[NormalizeAddress(address)]
	if !ok {
		return 0, fmt.Errorf("%s: %w", address, ErrUnknownAddress)
	}
	return userID, nil
}

// NormalizeAddress lowercases a user@domain address. It does not validate.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// SplitAddress breaks user@domain apart, reporting whether both halves exist.
func SplitAddress(address string) (user, domain string, ok bool) {
	user, domain, found := strings.Cut(NormalizeAddress(address), "@")
	return user, domain, found && user != "" && domain != ""
}
