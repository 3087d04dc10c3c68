package platforms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/crosspost/internal/server/models"
)

const maxErrorBody = 500

// apiClient performs JSON calls against one platform's API and maps HTTP
// failures to *Error.
type apiClient struct {
	platform models.Platform
	http     *http.Client
	timeout  time.Duration
}

type request struct {
	method  string
	url     string
	token   string
	json    any
	form    url.Values
	body    io.Reader
	ctype   string
	headers map[string]string
}

// response carries headers some platforms use for ids.
type response struct {
	Status int
	Header http.Header
}

func (c *apiClient) do(ctx context.Context, r request, out any) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, ctype := r.body, r.ctype
	switch {
	case r.json != nil:
		b, err := json.Marshal(r.json)
		if err != nil {
			return nil, err
		}
		body, ctype = bytes.NewReader(b), "application/json"
	case r.form != nil:
		body, ctype = strings.NewReader(r.form.Encode()), "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, err
	}
	if ctype != "" {
		req.Header.Set("Content-Type", ctype)
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, platformError(c.platform, 0, "request timed out")
		}
		return nil, platformError(c.platform, 0, err.Error())
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, platformError(c.platform, resp.StatusCode, err.Error())
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.statusError(resp.StatusCode, raw)
	}

	if out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, platformError(c.platform, resp.StatusCode, "unexpected response: "+truncate(string(raw)))
		}
	}
	return &response{Status: resp.StatusCode, Header: resp.Header}, nil
}

// errorBody covers the error envelopes of the supported platforms.
type errorBody struct {
	Error json.RawMessage `json:"error"`
	// LinkedIn
	Message string `json:"message"`
	// X / Twitter
	Detail string `json:"detail"`
	Title  string `json:"title"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
	ErrorDescription string `json:"error_description"`
}

type graphError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func (c *apiClient) statusError(status int, raw []byte) error {
	msg := truncate(strings.TrimSpace(string(raw)))
	expired := status == http.StatusUnauthorized

	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		var ge graphError
		var plain string
		switch {
		case len(eb.Error) > 0 && json.Unmarshal(eb.Error, &ge) == nil && ge.Message != "":
			msg = ge.Message
			// Graph API: OAuthException 190 is an invalid or expired token.
			if ge.Code == 190 {
				expired = true
			}
		case len(eb.Error) > 0 && json.Unmarshal(eb.Error, &plain) == nil && plain != "":
			msg = plain
			if eb.ErrorDescription != "" {
				msg = eb.ErrorDescription
			}
		case eb.Detail != "":
			msg = eb.Detail
		case len(eb.Errors) > 0 && eb.Errors[0].Message != "":
			msg = eb.Errors[0].Message
		case eb.Message != "":
			msg = eb.Message
		case eb.Title != "":
			msg = eb.Title
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	if expired {
		return authorizationError(c.platform, status, msg)
	}
	return platformError(c.platform, status, msg)
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}

// probe runs a liveness GET. Authorization failures become (false, nil);
// anything else that is not 2xx is returned as an error.
func (c *apiClient) probe(ctx context.Context, r request) (bool, error) {
	_, err := c.do(ctx, r, nil)
	if err == nil {
		return true, nil
	}
	if KindOf(err) == KindAuthorization {
		return false, nil
	}
	var pe *Error
	if errors.As(err, &pe) && (pe.Status == http.StatusBadRequest || pe.Status == http.StatusForbidden) {
		return false, nil
	}
	return false, err
}

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}

// charLimit counts characters as Unicode code points.
func charLimit(p models.Platform, text string, limit int) error {
	if n := utf8.RuneCountInString(text); n > limit {
		return validationError(p, "text is %d characters; the limit is %d", n, limit)
	}
	return nil
}
