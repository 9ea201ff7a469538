package aws

import (
	"context"
	"sync"

	"moff.io/moff-wallet/internal/config"
	"moff.io/moff-wallet/pkg/log"
)

// DeepLinkIntake pairs the wallet connect uris that arrive on the deep link queue.
type DeepLinkIntake struct {
	clients  *Clients
	handle   func(ctx context.Context, uri string) bool
	queueURL string

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewDeepLinkIntake(clients *Clients, handle func(ctx context.Context, uri string) bool) *DeepLinkIntake {
	return &DeepLinkIntake{clients: clients, handle: handle}
}

func (d *DeepLinkIntake) Apply(conf *config.Configuration) {
	d.queueURL = conf.Aws.DeepLinkQueueURL
}

func (d *DeepLinkIntake) Start(ctx context.Context) {
	if d.queueURL == "" || d.clients == nil {
		log.Infof("deep link queue not configured")
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	ctx, d.cancel = context.WithCancel(ctx)
	d.clients.NewSQSWorker(ctx, d.queueURL, DeepLinkHandler(d.handle))
}

func (d *DeepLinkIntake) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
