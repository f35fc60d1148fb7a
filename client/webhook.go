package client

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ParseWebhookURL extracts the webhook id and token from a url of the
// form https://<host>/api/webhooks/<id>[/<token>[/...]]. token is empty
// when the url carries only the id. Missing or malformed segments return
// ErrSegmentMissing.
func ParseWebhookURL(raw string) (id int64, token string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrSegmentMissing, err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	for len(segments) > 0 && segments[0] != "api" {
		segments = segments[1:]
	}

	if len(segments) < 3 || segments[1] != "webhooks" {
		return 0, "", ErrSegmentMissing
	}

	id, err = strconv.ParseInt(segments[2], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("%w: bad webhook id", ErrSegmentMissing)
	}

	if len(segments) > 3 {
		token = segments[3]
	}

	return id, token, nil
}
