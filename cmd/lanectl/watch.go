package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"
	"github.com/prakoso/greenlock/internal/bus"
	"github.com/prakoso/greenlock/internal/ui"
	"github.com/spf13/cobra"
)

var watchTopic string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch fleet traffic on the bus",
	Long: `Subscribe to the traffic subjects and print each message as it
arrives. Useful for observing an intersection's arbitration rounds
and signal cycles from the outside.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sub, err := bus.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Printf("nats: disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Printf("nats: reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(watchTopic)
		if err != nil {
			return fmt.Errorf("subscribing: %w", err)
		}
		defer cancel()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case d, ok := <-ch:
				if !ok {
					return nil
				}
				printDelivery(d)
			}
		}
	},
}

func printDelivery(d bus.Delivery) {
	msg, err := bus.Decode(d.Topic, d.Payload)
	if err != nil {
		fmt.Printf("%s  %s\n", ui.RenderMuted(d.Topic), ui.RenderMuted(string(d.Payload)))
		return
	}
	topic := ui.RenderAccent(d.Topic)
	switch m := msg.(type) {
	case bus.VehicleCount:
		fmt.Printf("%s  section %d: %d vehicles  %s\n",
			topic, m.RoadSectionID, int(m.Total()), ui.RenderMuted(m.Timestamp))
	case bus.GreenStatus:
		status := m.Status
		if status == bus.StatusGreen {
			status = ui.RenderGreen(status)
		} else {
			status = ui.RenderRed(status)
		}
		fmt.Printf("%s  section %d is %s  %s\n",
			topic, m.Section, status, ui.RenderMuted(m.Timestamp))
	case bus.GreenRequest:
		fmt.Printf("%s  section %d requests green  %s\n",
			topic, m.Section, ui.RenderMuted(m.Timestamp))
	case bus.GreenPermission:
		fmt.Printf("%s  section %d %s by section %d\n",
			topic, m.Section, ui.RenderGreen(m.Permission), m.FromSection)
	case bus.DurationReport:
		fmt.Printf("%s  section %d held green %gs for %d vehicles  %s\n",
			topic, m.RoadSectionID, m.Duration, m.TotalVehicles, ui.RenderMuted(m.Timestamp))
	}
}

func init() {
	watchCmd.Flags().StringVar(&watchTopic, "topic", bus.WildcardTopic, "subject to subscribe to")
}
