package transport

import (
	"io"
	"net/http"

	"github.com/agentstation/blockquote/pkg/errors"
	"github.com/agentstation/blockquote/pkg/logging"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 4 << 20

// ReadBody reads and closes the response body.
func ReadBody(resp *http.Response) ([]byte, error) {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close response body")
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.WrapIO("read", "response body", err)
	}
	return body, nil
}
