package ecobee

import (
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// RemoteError reports a failed API call. Status is the HTTP status code,
// or 0 when no response was received.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("ecobee request failed: %s", e.Message)
	}
	return fmt.Sprintf("ecobee request failed with status %d: %s", e.Status, e.Message)
}

func transportError(err error) *RemoteError {
	return &RemoteError{Message: err.Error()}
}

// responseError reads either error envelope the API uses:
// {"error": ..., "error_description": ...} from the auth endpoints and
// {"status": {"code": ..., "message": ...}} from the data endpoints.
func responseError(resp *resty.Response) *RemoteError {
	body := resp.Body()

	msg := resp.Status()
	switch {
	case gjson.GetBytes(body, "error_description").Exists():
		msg = fmt.Sprintf("%s: %s",
			gjson.GetBytes(body, "error").String(),
			gjson.GetBytes(body, "error_description").String())
	case gjson.GetBytes(body, "status.message").Exists():
		msg = fmt.Sprintf("code %d: %s",
			gjson.GetBytes(body, "status.code").Int(),
			gjson.GetBytes(body, "status.message").String())
	case gjson.GetBytes(body, "error").Exists():
		msg = gjson.GetBytes(body, "error").String()
	}

	return &RemoteError{Status: resp.StatusCode(), Message: msg}
}
