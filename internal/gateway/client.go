package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"postpilot/internal/middleware"
	"postpilot/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	platformLinkedIn = "linkedin"
	defaultTimeout   = 30 * time.Second
)

// Submission is everything the gateway needs to publish one post.
type Submission struct {
	ProfileKey   string
	Content      string
	Hashtags     []string
	MediaURL     string
	ScheduleDate *time.Time
}

// Poster is the gateway as seen by the dispatcher.
type Poster interface {
	Submit(ctx context.Context, sub Submission) Result
	Configured() bool
}

// Client talks to the posting gateway's REST API. It never retries.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
}

// NewClient returns a client for baseURL authenticated with apiKey.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  strings.TrimSpace(apiKey),
		timeout: timeout,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type postRequest struct {
	Post         string   `json:"post"`
	Platforms    []string `json:"platforms"`
	ProfileKey   string   `json:"profileKey"`
	MediaURLs    []string `json:"mediaUrls,omitempty"`
	ScheduleDate string   `json:"scheduleDate,omitempty"`
}

type postResponse struct {
	Status  string          `json:"status"`
	ID      string          `json:"id"`
	Message string          `json:"message"`
	PostIDs json.RawMessage `json:"postIds"`
	Errors  []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Submit sends one post and classifies the response.
func (c *Client) Submit(ctx context.Context, sub Submission) Result {
	ctx, span := observability.GetTraceLayer().TraceGatewayCall(ctx, "post")
	defer span.End()

	start := time.Now()
	result := c.submit(ctx, sub)
	observability.ObserveGatewayRequest(result.Kind.String(), start)

	span.SetAttributes(
		attribute.String("gateway.result", result.Kind.String()),
		attribute.Int("http.status_code", result.StatusCode),
	)
	if result.Kind == KindError {
		span.SetStatus(codes.Error, result.Message)
	}

	middleware.Logger.InfoContext(ctx, "posting gateway call",
		slog.String("result", result.Kind.String()),
		slog.Int("status", result.StatusCode),
		slog.Duration("latency", time.Since(start)),
		slog.Bool("scheduled", sub.ScheduleDate != nil),
	)
	return result
}

func (c *Client) submit(ctx context.Context, sub Submission) Result {
	if !c.Configured() {
		return Failure("posting gateway API key is not configured")
	}
	if err := ctx.Err(); err != nil {
		return Failure("posting gateway request cancelled: %v", err)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	body := postRequest{
		Post:       ComposeContent(sub.Content, sub.Hashtags),
		Platforms:  []string{platformLinkedIn},
		ProfileKey: sub.ProfileKey,
	}
	if sub.MediaURL != "" {
		body.MediaURLs = []string{sub.MediaURL}
	}
	if sub.ScheduleDate != nil {
		body.ScheduleDate = sub.ScheduleDate.UTC().Format(time.RFC3339)
	}

	agent := fiber.Post(c.baseURL + "/post")
	agent.Set(fiber.HeaderAuthorization, "Bearer "+c.apiKey)
	agent.JSON(body)
	agent.Timeout(timeout)
	if err := agent.Parse(); err != nil {
		fiber.ReleaseAgent(agent)
		return Failure("posting gateway request could not be built: %v", err)
	}

	status, raw, errs := agent.Bytes()
	if len(errs) > 0 {
		return Failure("posting gateway request failed: %v", errs[0])
	}

	result := ParseResponse(status, raw, sub.ScheduleDate != nil)
	result.StatusCode = status
	return result
}

// ParseResponse classifies a raw gateway response.
func ParseResponse(status int, raw []byte, scheduled bool) Result {
	if status == fiber.StatusTooManyRequests {
		return RateLimited(errorMessage(raw))
	}

	var resp postResponse
	decodeErr := json.Unmarshal(raw, &resp)

	if status < 200 || status >= 300 {
		if msg := errorMessage(raw); msg != "" {
			return Failure("%s", msg)
		}
		return Failure("posting gateway returned HTTP %d", status)
	}
	if decodeErr != nil {
		return Failure("posting gateway returned an unreadable response: %v", decodeErr)
	}
	if strings.EqualFold(resp.Status, "error") {
		if msg := errorMessage(raw); msg != "" {
			return Failure("%s", msg)
		}
		return Failure("posting gateway reported an error")
	}

	id := resp.ID
	if id == "" {
		id = linkedInID(resp.PostIDs)
	}
	if id == "" {
		return Failure("posting gateway response did not include a post id")
	}
	if scheduled {
		return Scheduled(id)
	}
	return Success(id)
}

func errorMessage(raw []byte) string {
	var resp postResponse
	if len(bytes.TrimSpace(raw)) == 0 || json.Unmarshal(raw, &resp) != nil {
		return ""
	}
	if resp.Message != "" {
		return resp.Message
	}
	for _, e := range resp.Errors {
		if e.Message != "" {
			return e.Message
		}
	}
	return ""
}

// linkedInID reads postIds in either the {"linkedin": ...} or [{"platform": "linkedin", ...}] shape.
func linkedInID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var byPlatform map[string]json.RawMessage
	if err := json.Unmarshal(raw, &byPlatform); err == nil {
		entry, ok := byPlatform[platformLinkedIn]
		if !ok {
			return ""
		}
		var id string
		if err := json.Unmarshal(entry, &id); err == nil {
			return id
		}
		var obj struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(entry, &obj); err == nil {
			return obj.ID
		}
		return ""
	}

	var list []struct {
		Platform string `json:"platform"`
		ID       string `json:"id"`
	}
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if strings.EqualFold(item.Platform, platformLinkedIn) {
				return item.ID
			}
		}
	}
	return ""
}
