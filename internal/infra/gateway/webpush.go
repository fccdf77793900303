package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/totegamma/flock/internal/config"
	"github.com/totegamma/flock/internal/domain"
	"github.com/totegamma/flock/internal/usecase"
)

var tracer = otel.Tracer("gateway")

// WebPushGateway delivers payloads to browser push subscriptions.
type WebPushGateway struct {
	conf   config.Push
	client *http.Client
	gone   *cache.Cache
	logger *zap.Logger
}

func NewWebPushGateway(conf config.Push, client *http.Client, logger *zap.Logger) *WebPushGateway {
	if client == nil {
		client = &http.Client{Timeout: conf.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebPushGateway{
		conf:   conf,
		client: client,
		gone:   cache.New(conf.GoneCacheTTL, 2*conf.GoneCacheTTL),
		logger: logger.With(zap.String("module", "webpush")),
	}
}

// Send never returns an error; the outcome tells the caller whether to keep
// the endpoint. Unparseable descriptors can never succeed and count as expired.
func (g *WebPushGateway) Send(ctx context.Context, endpoint domain.PushEndpoint, payload []byte) domain.DeliveryOutcome {
	ctx, span := tracer.Start(ctx, "WebPush.Gateway.Send")
	defer span.End()

	sub, err := parseSubscription(endpoint.Descriptor)
	if err != nil {
		g.logger.Info("unusable push subscription", zap.String("owner", endpoint.OwnerID), zap.Error(err))
		return domain.DeliveryExpired
	}

	if _, found := g.gone.Get(sub.Endpoint); found {
		return domain.DeliveryExpired
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &sub, &webpush.Options{
		HTTPClient:      g.client,
		Subscriber:      g.conf.Subscriber,
		TTL:             g.conf.TTL,
		Urgency:         webpush.UrgencyNormal,
		VAPIDPublicKey:  g.conf.VapidPublicKey,
		VAPIDPrivateKey: g.conf.VapidPrivateKey,
	})
	if err != nil {
		span.RecordError(errors.Wrap(err, "webpush send"))
		g.logger.Warn("push request failed", zap.String("owner", endpoint.OwnerID), zap.Error(err))
		return domain.DeliveryTransientFailure
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	span.SetAttributes(attribute.Int("StatusCode", resp.StatusCode))
	return g.classify(sub.Endpoint, resp.StatusCode)
}

func (g *WebPushGateway) classify(endpoint string, status int) domain.DeliveryOutcome {
	switch {
	case status >= 200 && status < 300:
		return domain.DeliveryDelivered
	case status == http.StatusNotFound || status == http.StatusGone:
		g.gone.SetDefault(endpoint, struct{}{})
		return domain.DeliveryExpired
	default:
		return domain.DeliveryTransientFailure
	}
}

func parseSubscription(descriptor string) (webpush.Subscription, error) {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(descriptor), &sub); err != nil {
		return sub, errors.Wrap(err, "decode subscription")
	}
	if !strings.HasPrefix(sub.Endpoint, "https://") && !strings.HasPrefix(sub.Endpoint, "http://") {
		return sub, errors.New("subscription endpoint is not an http(s) url")
	}
	if key, err := decodeKey(sub.Keys.P256dh); err != nil || len(key) != 65 {
		return sub, errors.New("subscription p256dh key is malformed")
	}
	if key, err := decodeKey(sub.Keys.Auth); err != nil || len(key) != 16 {
		return sub, errors.New("subscription auth secret is malformed")
	}
	return sub, nil
}

// decodeKey accepts standard and url-safe base64, padded or not.
func decodeKey(key string) ([]byte, error) {
	if rem := len(key) % 4; rem != 0 {
		key += strings.Repeat("=", 4-rem)
	}
	if b, err := base64.StdEncoding.DecodeString(key); err == nil {
		return b, nil
	}
	return base64.URLEncoding.DecodeString(key)
}

var _ usecase.PushTransport = (*WebPushGateway)(nil)
