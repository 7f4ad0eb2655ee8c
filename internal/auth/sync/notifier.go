package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zainab-hr/ProjetProduits/pkg/logger"
	"go.uber.org/zap"
)

// defaultAge is the placeholder profile age sent on replication; users
// update it themselves in the segment store later.
const defaultAge = 25

// Notifier propagates newly registered users to a downstream profile store.
// Propagation is best-effort: failures are logged and swallowed, never
// surfaced to the registration flow.
type Notifier interface {
	Propagate(ctx context.Context, username, email, segment string)
}

// Config holds the two segment store destinations and the per-call timeout
type Config struct {
	SegmentAURL string
	SegmentBURL string
	Timeout     time.Duration
}

// HTTPNotifier implements Notifier over plain HTTP
type HTTPNotifier struct {
	config Config
	client *http.Client
	log    *logger.Logger
}

// NewHTTPNotifier creates a new HTTPNotifier
func NewHTTPNotifier(cfg Config, log *logger.Logger) *HTTPNotifier {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTPNotifier{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

// Propagate creates the user in the profile store matching the segment tag.
// An unrecognized tag is a logged no-op. The identity store and the profile
// stores share no transaction; replicas converge eventually and the caller
// never blocks on the outcome.
func (n *HTTPNotifier) Propagate(ctx context.Context, username, email, segment string) {
	var baseURL string
	switch {
	case strings.EqualFold(segment, "SEGMENT_A"):
		baseURL = n.config.SegmentAURL
	case strings.EqualFold(segment, "SEGMENT_B"):
		baseURL = n.config.SegmentBURL
	default:
		n.log.Warn("unknown segment, skipping user replication",
			zap.String("segment", segment),
			zap.String("email", email))
		return
	}

	payload := map[string]interface{}{
		"nom":   username,
		"email": email,
		"age":   defaultAge,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error("failed to encode replication payload", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, n.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/users", bytes.NewReader(body))
	if err != nil {
		n.log.Error("failed to build replication request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.log.Warn("could not replicate user to segment store, continuing anyway",
			zap.String("segment", segment),
			zap.String("email", email),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.log.Warn("segment store rejected user replication, continuing anyway",
			zap.String("segment", segment),
			zap.String("email", email),
			zap.String("status", fmt.Sprintf("%d", resp.StatusCode)))
		return
	}

	n.log.Info("replicated user to segment store",
		zap.String("segment", segment),
		zap.String("email", email))
}
