package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/vdabridge/internal/mqtt"
	"github.com/dantte-lp/vdabridge/internal/vda"
)

// errUnknownTopicKind is returned when --kind names an unrecognized topic kind.
var errUnknownTopicKind = errors.New(
	"unknown topic kind, expected order, instantActions, state, visualization, connection or factsheet")

func monitorCmd() *cobra.Command {
	var (
		brokerURL string
		prefix    string
		serial    string
		kind      string
		username  string
		password  string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream fleet MQTT traffic",
		Long:  "Connects to the MQTT broker and prints VDA 5050 messages until interrupted (Ctrl+C).",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			filter, err := monitorFilter(prefix, kind)
			if err != nil {
				return err
			}

			// The broker client logs reconnect noise through slog; a
			// monitoring session only wants the messages themselves.
			broker, err := mqtt.NewClient(mqtt.Config{
				BrokerURL:      brokerURL,
				ClientIDPrefix: "vdabridgectl",
				Username:       username,
				Password:       password,
			}, slog.New(slog.DiscardHandler))
			if err != nil {
				return fmt.Errorf("new broker client: %w", err)
			}

			if err := broker.Connect(ctx); err != nil {
				return fmt.Errorf("connect to broker: %w", err)
			}
			defer broker.Disconnect()

			handler := func(topic string, payload []byte) {
				parsed, parseErr := vda.ParseTopic(prefix, topic)
				if parseErr != nil {
					return
				}

				if serial != "" && parsed.SerialNumber != serial {
					return
				}

				fmt.Println(formatMessage(parsed, payload, outputFormat))
			}

			if err := broker.Subscribe(ctx, filter, handler); err != nil {
				return fmt.Errorf("subscribe %s: %w", filter, err)
			}

			<-ctx.Done()

			return nil
		},
	}

	cmd.Flags().StringVar(&brokerURL, "broker", "tcp://localhost:1883",
		"MQTT broker URL")
	cmd.Flags().StringVar(&prefix, "topic-prefix", vda.DefaultTopicPrefix,
		"VDA topic prefix")
	cmd.Flags().StringVar(&serial, "serial", "",
		"only print messages for this AGV serial")
	cmd.Flags().StringVar(&kind, "kind", "",
		"only subscribe one topic kind (default: all six)")
	cmd.Flags().StringVar(&username, "username", "",
		"MQTT username")
	cmd.Flags().StringVar(&password, "password", "",
		"MQTT password")

	return cmd
}

// monitorFilter builds the subscription filter: all kinds by default, one
// kind when requested.
func monitorFilter(prefix, kind string) (string, error) {
	if kind == "" {
		return prefix + "/#", nil
	}

	k := vda.TopicKind(kind)
	switch k {
	case vda.TopicOrder, vda.TopicInstantActions, vda.TopicState,
		vda.TopicVisualization, vda.TopicConnection, vda.TopicFactsheet:
		return vda.SubscriptionFilter(prefix, k), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownTopicKind, kind)
	}
}
