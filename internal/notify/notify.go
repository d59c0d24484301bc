package notify

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/myapphub/apphub/pkg/logger"
)

// Notifier publishes "new package" events for the excluded notification
// subsystem to pick up. Publishing is fire-and-forget: a failed publish
// is logged and never fails the upload that triggered it.
type Notifier struct {
	client  *redis.Client
	channel string
}

func New(client *redis.Client, channel string) *Notifier {
	return &Notifier{client: client, channel: channel}
}

func (n *Notifier) NotifyNewPackage(ctx context.Context, packageID int64) {
	if n == nil || n.client == nil {
		return
	}
	err := n.client.Publish(ctx, n.channel, strconv.FormatInt(packageID, 10)).Err()
	if err != nil {
		logger.GetLogger(ctx).Warn("notify new package failed",
			zap.Int64("package_id", packageID), zap.Error(err))
	}
}
