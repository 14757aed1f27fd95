package h

import (
	"fmt"
	"net/url"
	"strings"
)

type Url struct {
	Scheme   string
	Path     string
	Url      string
	Host     string
	User     string
	Password string
	query    map[string]any
}

func ParseUrl(input string) (Url, error) {
	queryParams := make(map[string]any)
	u, err := url.Parse(input)
	if err != nil {
		return Url{}, err
	}
	for key, values := range u.Query() {
		if len(values) > 0 {
			queryParams[key] = values[0] // Take first value if multiple
		}
	}
	password, ok := u.User.Password()
	if !ok {
		password = ""
	}
	return Url{
		Scheme:   u.Scheme,
		Path:     u.Path,
		Url:      input,
		Host:     u.Host,
		User:     u.User.Username(),
		Password: password,
		query:    queryParams,
	}, nil
}

func (u Url) Query(key string) string {
	if v, ok := u.query[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func RemoveParamFromUrl(input string, param string) (string, error) {
	u, err := url.Parse(input)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Del(param)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RedactUrl hides the password of a connection string so it can be logged.
func RedactUrl(input string) string {
	u, err := url.Parse(input)
	if err != nil || u.User == nil {
		return input
	}
	if _, ok := u.User.Password(); !ok {
		return input
	}
	u.User = url.UserPassword(u.User.Username(), "xxxxx")
	return u.String()
}

// StripQuery removes everything after the first '?'.
func StripQuery(input string) string {
	if idx := strings.Index(input, "?"); idx >= 0 {
		return input[:idx]
	}
	return input
}
