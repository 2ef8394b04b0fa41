package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vendor-payouts/pkg/config"
)

func TestTopicResourceName(t *testing.T) {
	c := &Client{projectID: "payouts-prod"}

	require.Equal(t, "projects/payouts-prod/topics/payout-events", c.topicResourceName("payout-events"))
	require.Equal(t, "projects/other/topics/x", c.topicResourceName("projects/other/topics/x"))
	require.Empty(t, c.topicResourceName("  "))
	require.Empty(t, (&Client{}).topicResourceName("payout-events"))

	var nilClient *Client
	require.Empty(t, nilClient.topicResourceName("payout-events"))
}

func TestUninitializedClient(t *testing.T) {
	var c *Client
	_, err := c.Send(context.Background(), "payout-events", nil)
	require.ErrorIs(t, err, errNotInitialized)
	require.ErrorIs(t, c.Ping(context.Background()), errNotInitialized)
	require.NoError(t, c.Close())
	require.Empty(t, c.Topic())
}

func TestNewClientValidatesConfig(t *testing.T) {
	_, err := NewClient(context.Background(), config.GCPConfig{}, config.PubSubConfig{PayoutsTopic: "payout-events"}, nil)
	require.ErrorIs(t, err, errProjectIDRequired)

	_, err = NewClient(context.Background(), config.GCPConfig{ProjectID: "p"}, config.PubSubConfig{}, nil)
	require.ErrorIs(t, err, errNoTopic)
}
