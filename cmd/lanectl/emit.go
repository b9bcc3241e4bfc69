package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prakoso/greenlock/internal/bus"
	"github.com/spf13/cobra"
)

var (
	emitSection int
	emitCount   int
	emitClasses []string
)

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Publish a vehicle count observation for a road section",
	Long: `Publish a vehicle count observation, the way an upstream sensor
feed would. Either --count (a pre-summed total) or one or more
--class name=count pairs can be given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if emitSection <= 0 {
			return fmt.Errorf("--section is required")
		}

		msg := bus.VehicleCount{
			RoadSectionID: emitSection,
			Timestamp:     bus.Timestamp(time.Now()),
		}
		if cmd.Flags().Changed("count") {
			msg.TotalVehicles = &emitCount
		}
		if len(emitClasses) > 0 {
			msg.VehicleCounts = make(map[string]int, len(emitClasses))
			for _, pair := range emitClasses {
				name, val, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("--class %q: want name=count", pair)
				}
				n, err := strconv.Atoi(val)
				if err != nil {
					return fmt.Errorf("--class %q: %w", pair, err)
				}
				msg.VehicleCounts[name] = n
			}
		}
		if msg.TotalVehicles == nil && msg.VehicleCounts == nil {
			return fmt.Errorf("either --count or --class is required")
		}

		pub, err := bus.NewNATSPublisher(natsURL)
		if err != nil {
			return err
		}
		defer pub.Close()

		if err := pub.Publish(context.Background(), bus.TopicVehicleCount, msg); err != nil {
			return err
		}
		if err := pub.Flush(); err != nil {
			return err
		}

		fmt.Printf("published %s: section %d, %d vehicles\n",
			bus.TopicVehicleCount, emitSection, int(msg.Total()))
		return nil
	},
}

func init() {
	emitCmd.Flags().IntVar(&emitSection, "section", 0, "road section the observation is for")
	emitCmd.Flags().IntVar(&emitCount, "count", 0, "total vehicle count")
	emitCmd.Flags().StringArrayVar(&emitClasses, "class", nil, "per-class count as name=count (repeatable)")
}
