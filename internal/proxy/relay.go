package proxy

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// relayStream copies the upstream body to the client as it arrives,
// flushing after every chunk. The upstream connection is released on
// every exit path, including a mid-stream client disconnect.
func (e *Engine) relayStream(c *gin.Context, resp *http.Response) {
	defer func() {
		resp.Body.Close()
		log.Info("stream closed and upstream connection released")
	}()

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		c.Header("Content-Type", ct)
	}
	c.Status(resp.StatusCode)

	flusher, _ := c.Writer.(http.Flusher)
	buf := make([]byte, 32<<10)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				log.WithError(werr).Info("client write failed, terminating stream")
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Warn("upstream stream terminated")
			}
			return
		}
	}
}

// relayBuffered reads the whole upstream body and writes it in one shot
// with re-derived framing headers.
func (e *Engine) relayBuffered(c *gin.Context, resp *http.Response) {
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("failed reading upstream response body")
		// Headers are not committed yet; surface a bare 502.
		c.Status(http.StatusBadGateway)
		return
	}

	copyResponseHeaders(c.Writer.Header(), resp.Header)
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}
