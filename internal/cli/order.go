package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewOrderCmd создаёт группу команд для управления заказами.
func NewOrderCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Manage orders",
	}

	cmd.AddCommand(
		newOrderCreateCmd(clientFn, outputFn),
		newOrderEventsCmd(clientFn, outputFn),
		newOrderWatchCmd(clientFn, outputFn),
		newOrderLatestCmd(clientFn, outputFn),
		newOrderDeleteCmd(clientFn, outputFn),
	)

	return cmd
}

func newOrderCreateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var farm string
	var quantity int
	var price float64
	var stream bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an order and follow it to delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if stream {
				return client.StreamOrder(farm, quantity, price, func(item StreamItem) error {
					switch {
					case item.Event != nil:
						out.Print(
							[]string{"STATE", "SENDER", "RECEIVER", "MESSAGE"},
							[][]string{{item.Event.State, item.Event.Sender, item.Event.Receiver, item.Event.Message}},
							item.Event,
						)
					case item.Text != "":
						out.Line(item.Text)
					}
					return nil
				})
			}

			summary, err := client.CreateOrder(farm, quantity, price)
			if err != nil {
				return err
			}
			out.Line(summary)
			return nil
		},
	}

	cmd.Flags().StringVar(&farm, "farm", "", "Farm to order from")
	cmd.Flags().IntVar(&quantity, "quantity", 0, "Number of units")
	cmd.Flags().Float64Var(&price, "price", 0, "Price per unit")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream lifecycle events as they happen")

	return cmd
}

func newOrderEventsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var after int
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "events ORDER_ID",
		Short: "Show lifecycle events of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.OrderEvents(args[0], after, timeout)
			if err != nil {
				return err
			}

			headers := []string{"STATE", "SENDER", "RECEIVER", "TIMESTAMP"}
			rows := make([][]string, len(resp.Events))
			for i, e := range resp.Events {
				rows[i] = []string{e.State, e.Sender, e.Receiver, e.Timestamp}
			}

			out.Print(headers, rows, resp)
			return nil
		},
	}

	cmd.Flags().IntVar(&after, "after", 0, "Skip the first N already-seen events")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "How long to wait for new events")

	return cmd
}

func newOrderWatchCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var afterSeq int64
	var timeout time.Duration
	var once bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch for newly created orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			for {
				resp, err := client.OrderUpdates(afterSeq, timeout)
				if err != nil {
					return err
				}

				for _, entry := range resp.Orders {
					if out.jsonMode {
						out.JSON(entry)
					} else {
						out.Line(fmt.Sprintf("#%d %s", entry.Seq, entry.OrderID))
					}
				}
				afterSeq = resp.NextSeq

				if once {
					return nil
				}
			}
		},
	}

	cmd.Flags().Int64Var(&afterSeq, "after-seq", 0, "Skip orders up to this sequence number")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Long-poll timeout per request")
	cmd.Flags().BoolVar(&once, "once", false, "Exit after the first poll instead of watching forever")

	return cmd
}

func newOrderLatestCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "latest",
		Short: "Show the most recently created order",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			entry, err := client.LatestOrder()
			if err != nil {
				return err
			}

			out.Print(
				[]string{"SEQ", "ORDER_ID"},
				[][]string{{strconv.FormatInt(entry.Seq, 10), entry.OrderID}},
				entry,
			)
			return nil
		},
	}
}

func newOrderDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ORDER_ID",
		Short: "Delete order events from the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteOrder(args[0]); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Order deleted: %s", args[0]))
			return nil
		},
	}
}
