// Package pubsub wraps the GCP Pub/Sub v2 client. Topics and
// subscriptions are provisioned out of band; the wrapper only verifies
// they exist and hands out typed handles.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tradedesk-app/tradedesk-backend/pkg/config"
	"github.com/tradedesk-app/tradedesk-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoSubscriptions   = errors.New("pubsub subscription name is required")
)

type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

// NewClient connects and fails fast if any configured subscription is
// missing, so workers crash at boot instead of silently consuming nothing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	raw, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: raw, projectID: gcp.ProjectID, cfg: cfg}
	if err := c.checkSubscriptions(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(ctx, "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) checkSubscriptions(ctx context.Context) error {
	var checked int
	for _, name := range []string{c.cfg.DispatchSubscription, c.cfg.NotificationSubscription} {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		checked++

		full := c.qualify("subscriptions", name)
		if full == "" {
			return fmt.Errorf("subscription %q not configured", name)
		}
		_, err := c.client.SubscriptionAdminClient.GetSubscription(
			ctx,
			&pubsubpb.GetSubscriptionRequest{Subscription: full},
		)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("subscription %q does not exist", name)
		}
		if err != nil {
			return fmt.Errorf("checking subscription %q: %w", name, err)
		}
	}
	if checked == 0 {
		return errNoSubscriptions
	}
	return nil
}

// DispatchSubscription returns the subscriber feeding the notification
// worker, or nil when not configured.
func (c *Client) DispatchSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.qualify("subscriptions", c.cfg.DispatchSubscription)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// NotificationSubscription returns the subscriber carrying
// notification_requested events, or nil when not configured.
func (c *Client) NotificationSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.qualify("subscriptions", c.cfg.NotificationSubscription)
	if full == "" {
		return nil
	}
	return c.client.Subscriber(full)
}

// Publisher returns a publisher handle for the topic ID or full resource
// name, or nil when the topic cannot be resolved.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	full := c.qualify("topics", name)
	if full == "" {
		return nil
	}
	return c.client.Publisher(full)
}

// Ping re-checks the configured subscriptions; readiness probes use it.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.checkSubscriptions(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// qualify expands a bare ID into a full resource name; already-qualified
// names pass through untouched.
func (c *Client) qualify(kind, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+kind+"/") {
		return name
	}
	project := strings.TrimSpace(c.projectID)
	if project == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", project, kind, name)
}
