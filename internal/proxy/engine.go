package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"gemini-synapse/internal/constants"
	"gemini-synapse/internal/credential"
	apperrors "gemini-synapse/internal/errors"
	"gemini-synapse/internal/handlers/common"
	"gemini-synapse/internal/monitoring"
	"gemini-synapse/internal/monitoring/tracing"
	"gemini-synapse/internal/settings"
	"gemini-synapse/internal/upstream"
)

// rotateStatuses trigger an immediate credential rotation instead of
// spending the per-credential retry budget: the upstream has judged the
// credential (403, 429) or the request under it (400), and repeating
// with the same credential cannot help.
var rotateStatuses = map[int]bool{
	http.StatusBadRequest:      true,
	http.StatusForbidden:       true,
	http.StatusTooManyRequests: true,
}

// Engine relays requests to the upstream API, rotating through pool
// credentials and retrying transient failures per credential.
type Engine struct {
	pool     *credential.Pool
	settings *settings.Registry
	urls     *upstream.URLBuilder
	client   *http.Client

	// backoff computes the pause before retry attempt+1. Overridable in
	// tests; defaults to 2^attempt seconds.
	backoff func(attempt int) time.Duration
}

func NewEngine(pool *credential.Pool, reg *settings.Registry, urls *upstream.URLBuilder, client *http.Client) *Engine {
	if client == nil {
		client = upstream.NewRelayClient()
	}
	return &Engine{
		pool:     pool,
		settings: reg,
		urls:     urls,
		client:   client,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
	}
}

// outcome kinds of a single-credential send.
type outcomeKind int

const (
	outcomeDone outcomeKind = iota // response relayed to the client
	outcomeRotate
	outcomeNotFound
	outcomeTransport
	outcomeCanceled
)

type sendOutcome struct {
	kind       outcomeKind
	statusCode int
	message    string
}

// Forward relays the request at path through the credential rotation
// loop and writes the response (or the error envelope) to the client.
func (e *Engine) Forward(c *gin.Context, path string) {
	reqCtx := c.Request.Context()

	ctx, span := tracing.StartSpan(reqCtx, "proxy", "forward")
	defer span.End()

	target := e.urls.Build(ctx, path)
	modelName := ParseModelName(path)
	span.SetAttributes(
		attribute.String("proxy.path", path),
		attribute.String("proxy.model", modelName),
	)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		common.AbortWithAPIError(c, apperrors.BadRequest("failed to read request body"))
		return
	}

	query := c.Request.URL.Query()
	query.Del("key")
	headers := sanitizeRequestHeaders(c.Request.Header)

	lastError := ""
	for rotation := 0; rotation < constants.MaxRotations; rotation++ {
		if reqCtx.Err() != nil {
			log.Info("client disconnected, abandoning relay")
			return
		}

		secret, err := e.pool.Get(reqCtx)
		if err != nil {
			if errors.Is(err, credential.ErrNoCredentials) {
				common.AbortWithAPIError(c, apperrors.AllCredentialsFailed())
				return
			}
			common.AbortWithAPIError(c, apperrors.Internal("credential pool failure"))
			return
		}

		log.WithFields(log.Fields{
			"secret":   credential.Mask(secret),
			"rotation": fmt.Sprintf("%d/%d", rotation+1, constants.MaxRotations),
			"model":    modelName,
		}).Info("attempting upstream relay")

		out := e.sendWithCredential(c, target, headers, query, body, secret, modelName)
		switch out.kind {
		case outcomeDone:
			span.SetAttributes(attribute.Int("proxy.rotations", rotation+1))
			monitoring.RelayOutcomesTotal.WithLabelValues("success").Inc()
			return

		case outcomeNotFound:
			monitoring.RelayOutcomesTotal.WithLabelValues("not_found").Inc()
			common.AbortWithAPIError(c, apperrors.NotFound(out.message))
			return

		case outcomeTransport:
			// Transport failures survived the retry budget. The
			// credential is not at fault; abort without rotating.
			monitoring.RelayOutcomesTotal.WithLabelValues("transport_error").Inc()
			common.AbortWithAPIError(c, apperrors.ServiceUnavailable(
				"A network error occurred and was not resolved by retries: "+out.message))
			return

		case outcomeCanceled:
			log.Info("client disconnected during relay attempt")
			monitoring.RelayOutcomesTotal.WithLabelValues("canceled").Inc()
			return

		case outcomeRotate:
			monitoring.CredentialRotationsTotal.Inc()
			monitoring.CredentialFailuresTotal.WithLabelValues(statusClass(out.statusCode)).Inc()
			// Bookkeeping uses a detached context so a client
			// disconnect cannot tear the write mid-transaction.
			if err := e.pool.RecordFailure(context.Background(), secret, modelName, out.statusCode, out.message); err != nil {
				log.WithError(err).Error("failed to record credential failure")
			}
			lastError = fmt.Sprintf("status %d: %s", out.statusCode, out.message)
			log.WithFields(log.Fields{
				"secret": credential.Mask(secret),
				"status": out.statusCode,
			}).Warn("credential failed, rotating to next")
		}
	}

	log.WithField("last_error", lastError).Error("request failed after exhausting credential rotations")
	monitoring.RelayOutcomesTotal.WithLabelValues("exhausted").Inc()
	common.AbortWithAPIError(c, apperrors.AllCredentialsFailed())
}

func statusClass(code int) string {
	if code <= 0 {
		return "error"
	}
	return fmt.Sprintf("%dxx", code/100)
}

// sendWithCredential runs the per-credential retry loop. A response
// below 400 is relayed to the client before returning outcomeDone.
func (e *Engine) sendWithCredential(c *gin.Context, target string, headers http.Header, query url.Values, body []byte, secret, modelName string) sendOutcome {
	reqCtx := c.Request.Context()
	maxRetries := e.settings.MaxRetryCount(reqCtx)
	isStreaming := query.Get("alt") == "sse"

	var lastStatus int
	var lastMessage string
	transportLast := false

	for attempt := 0; attempt < maxRetries; attempt++ {
		if reqCtx.Err() != nil {
			return sendOutcome{kind: outcomeCanceled}
		}
		if attempt > 0 {
			wait := e.backoff(attempt - 1)
			log.WithField("wait", wait.String()).Info("backing off before retry")
			select {
			case <-time.After(wait):
			case <-reqCtx.Done():
				return sendOutcome{kind: outcomeCanceled}
			}
		}

		req, err := http.NewRequestWithContext(reqCtx, c.Request.Method, target, bytes.NewReader(body))
		if err != nil {
			return sendOutcome{kind: outcomeTransport, message: err.Error()}
		}
		req.Header = headers.Clone()
		req.Header.Set("x-goog-api-key", secret)
		req.URL.RawQuery = query.Encode()

		log.WithFields(log.Fields{
			"secret":  credential.Mask(secret),
			"attempt": fmt.Sprintf("%d/%d", attempt+1, maxRetries),
		}).Info("sending upstream request")

		resp, err := e.client.Do(req)
		if err != nil {
			if reqCtx.Err() != nil {
				return sendOutcome{kind: outcomeCanceled}
			}
			transportLast = true
			lastMessage = err.Error()
			log.WithFields(log.Fields{
				"secret":  credential.Mask(secret),
				"attempt": attempt + 1,
			}).WithError(err).Warn("upstream attempt failed with network error")
			continue
		}

		if resp.StatusCode < 400 {
			if err := e.pool.RecordSuccess(context.Background(), secret, modelName); err != nil {
				log.WithError(err).Error("failed to record credential success")
			}
			log.WithFields(log.Fields{
				"secret": credential.Mask(secret),
				"status": resp.StatusCode,
				"model":  modelName,
			}).Info("upstream relay succeeded")

			if isStreaming {
				e.relayStream(c, resp)
			} else {
				e.relayBuffered(c, resp)
			}
			return sendOutcome{kind: outcomeDone, statusCode: resp.StatusCode}
		}

		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		transportLast = false
		lastStatus = resp.StatusCode
		lastMessage = string(errBody)

		if rotateStatuses[resp.StatusCode] {
			log.WithFields(log.Fields{
				"secret": credential.Mask(secret),
				"status": resp.StatusCode,
			}).Warn("rotation-triggering status, abandoning this credential")
			return sendOutcome{kind: outcomeRotate, statusCode: resp.StatusCode, message: lastMessage}
		}

		if resp.StatusCode == http.StatusNotFound {
			log.Warn("upstream returned 404, failing fast without retry")
			return sendOutcome{kind: outcomeNotFound, statusCode: resp.StatusCode, message: lastMessage}
		}

		log.WithFields(log.Fields{
			"secret":  credential.Mask(secret),
			"attempt": fmt.Sprintf("%d/%d", attempt+1, maxRetries),
			"status":  resp.StatusCode,
		}).Warn("upstream attempt failed")
		// Absorbed attempts leave an error entry without blaming the
		// credential; the final one is recorded by the rotation loop.
		if attempt < maxRetries-1 {
			if err := e.pool.LogRequestFailure(context.Background(), secret, modelName, resp.StatusCode, lastMessage); err != nil {
				log.WithError(err).Error("failed to log retried upstream failure")
			}
		}
	}

	if transportLast {
		return sendOutcome{kind: outcomeTransport, message: lastMessage}
	}
	return sendOutcome{kind: outcomeRotate, statusCode: lastStatus, message: lastMessage}
}
