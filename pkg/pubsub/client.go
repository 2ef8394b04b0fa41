package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/vendor-payouts/pkg/config"
	"github.com/angelmondragon/vendor-payouts/pkg/logger"
)

const defaultSendTimeout = 15 * time.Second

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopic           = errors.New("pubsub payouts topic is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// ErrTopicMissing reports that the configured topic does not exist; retrying will not help.
var ErrTopicMissing = errors.New("pubsub topic does not exist")

// Client publishes settlement events. Publishers are created once per topic
// and flushed on Close.
type Client struct {
	client      *pubsub.Client
	projectID   string
	topic       string
	sendTimeout time.Duration

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient connects to Pub/Sub and fails fast when the payouts topic is missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if strings.TrimSpace(cfg.PayoutsTopic) == "" {
		return nil, errNoTopic
	}

	raw, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:      raw,
		projectID:   projectID,
		topic:       strings.TrimSpace(cfg.PayoutsTopic),
		sendTimeout: defaultSendTimeout,
		publishers:  make(map[string]*pubsub.Publisher),
	}
	if err := c.checkTopic(ctx, c.topic); err != nil {
		_ = raw.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", c.topic), "pubsub client initialized")
	}
	return c, nil
}

// Topic is the configured payouts topic id.
func (c *Client) Topic() string {
	if c == nil {
		return ""
	}
	return c.topic
}

// Send publishes msg to topic and waits for the server ack.
func (c *Client) Send(ctx context.Context, topic string, msg *pubsub.Message) (string, error) {
	if c == nil || c.client == nil {
		return "", errNotInitialized
	}
	pub, err := c.publisher(topic)
	if err != nil {
		return "", err
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	id, err := pub.Publish(sendCtx, msg).Get(sendCtx)
	if status.Code(err) == codes.NotFound {
		return "", fmt.Errorf("%w: %s", ErrTopicMissing, topic)
	}
	return id, err
}

func (c *Client) publisher(topic string) (*pubsub.Publisher, error) {
	name := c.topicResourceName(topic)
	if name == "" {
		return nil, fmt.Errorf("%w: %q", errNoTopic, topic)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if pub, ok := c.publishers[name]; ok {
		return pub, nil
	}
	pub := c.client.Publisher(name)
	c.publishers[name] = pub
	return pub, nil
}

// Ping checks the payouts topic is still reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	return c.checkTopic(ctx, c.topic)
}

func (c *Client) checkTopic(ctx context.Context, topic string) error {
	name := c.topicResourceName(topic)
	if name == "" {
		return errNoTopic
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%w: %s", ErrTopicMissing, topic)
	default:
		return fmt.Errorf("checking topic %q: %w", topic, err)
	}
}

// Close flushes pending publishes and releases the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// topicResourceName expands a bare topic id to projects/<p>/topics/<id>.
func (c *Client) topicResourceName(topic string) string {
	if c == nil {
		return ""
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return ""
	}
	if strings.HasPrefix(topic, "projects/") && strings.Contains(topic, "/topics/") {
		return topic
	}
	if c.projectID == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/topics/%s", c.projectID, topic)
}
