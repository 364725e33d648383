package topicmux

import (
	"log/slog"

	"github.com/casualjim/topicmux/codec"
	"github.com/casualjim/topicmux/transport"
	"github.com/fogfish/opts"
)

// ChannelOptions carries caller-provided per-subscription configuration.
// It is visible to the trigger transform and the option resolvers; the
// engine never interprets its contents.
type ChannelOptions map[string]any

// TriggerTransform derives the transport-level topic filter for a
// trigger. The default transform uses the trigger verbatim.
type TriggerTransform func(trigger string, channel ChannelOptions) string

// SubscribeOptionsResolver supplies the transport options for the
// subscribe call that a filter's first listener provokes.
type SubscribeOptionsResolver func(trigger string, channel ChannelOptions) (transport.SubscribeOptions, error)

// PublishOptionsResolver supplies the transport options for one publish.
type PublishOptionsResolver func(trigger string, value any) (transport.PublishOptions, error)

// GrantObserver is told which options the broker granted whenever a
// subscribe call actually reaches the transport. Piggybacked listeners
// on an already-subscribed filter do not trigger it.
type GrantObserver func(id SubscriptionID, granted []transport.Grant)

// Config collects the engine's collaborators. Use the With* options with
// New rather than constructing it directly.
type Config struct {
	Transform        TriggerTransform
	SubscribeOptions SubscribeOptionsResolver
	PublishOptions   PublishOptionsResolver
	OnGranted        GrantObserver
	Codec            codec.Codec
	Log              *slog.Logger
}

// Option configures the engine.
type Option = opts.Option[Config]

var (
	// WithTransform replaces the identity trigger-to-filter transform.
	WithTransform = opts.ForName[Config, TriggerTransform]("Transform")

	// WithSubscribeOptions installs the per-filter subscribe options resolver.
	WithSubscribeOptions = opts.ForName[Config, SubscribeOptionsResolver]("SubscribeOptions")

	// WithPublishOptions installs the per-publish options resolver.
	WithPublishOptions = opts.ForName[Config, PublishOptionsResolver]("PublishOptions")

	// WithOnGranted observes broker-granted subscribe options.
	WithOnGranted = opts.ForName[Config, GrantObserver]("OnGranted")

	// WithCodec replaces the default JSON payload codec.
	WithCodec = opts.ForName[Config, codec.Codec]("Codec")

	// WithLogger routes the engine's diagnostics to a specific logger
	// instead of slog.Default.
	WithLogger = opts.ForName[Config, *slog.Logger]("Log")
)

func firstChannel(channel []ChannelOptions) ChannelOptions {
	if len(channel) == 0 {
		return nil
	}
	return channel[0]
}
