package bitrix

import (
	"zpbitrix/internal/ports"
	"zpbitrix/platform/logger"
)

// ClientProvider builds portal clients bound to a (domain, token) pair.
// Clients are cheap and stateless, so no pooling is needed.
type ClientProvider struct {
	logger *logger.Logger
}

func NewClientProvider(logger *logger.Logger) *ClientProvider {
	return &ClientProvider{logger: logger}
}

func (p *ClientProvider) ClientFor(domain, accessToken string) ports.PortalClient {
	return NewClient(domain, accessToken, p.logger)
}
