package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	logger "github.com/sirupsen/logrus"

	"strangleexecutor/src/connectors"
	"strangleexecutor/src/externalmodel"
	"strangleexecutor/src/model"
)

// Manual operations console for Delta Exchange. Useful for inspecting the
// option chain and reconciling orders the engine left behind after a
// partial forced exit.

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.WarnLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})

	logger.WithField("level", level.String()).
		Info("Logger initialized for Delta CLI")
}

func printUsage() {
	fmt.Println("Available commands:")
	fmt.Println("  help                               Show this help message")
	fmt.Println("  shutdown                           Exit the application")
	fmt.Println("  chain UNDERLYING [EXPIRY]          List option tickers (expiry dd-mm-yyyy)")
	fmt.Println("  ticker SYMBOL                      Show one ticker")
	fmt.Println("  product ID                         Show product metadata (tick size)")
	fmt.Println("  positions                          List margined positions")
	fmt.Println("  sell PRODUCT_ID QTY PRICE          Place a limit sell")
	fmt.Println("  buy PRODUCT_ID QTY PRICE           Place a limit buy")
	fmt.Println("  close PRODUCT_ID QTY               Market buy, reduce-only")
	fmt.Println("  order ORDER_ID                     Show order state")
	fmt.Println("  cancel ORDER_ID PRODUCT_ID         Cancel a resting order")
	fmt.Println()
}

func printJSON(data any) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		logger.WithError(err).Error("failed to marshal JSON for printing")
		fmt.Println("JSON error:", err)
		return
	}
	fmt.Println(string(b))
}

func printChain(tickers []externalmodel.DeltaTicker) {
	if len(tickers) == 0 {
		fmt.Println("No tickers returned.")
		return
	}
	for _, tk := range tickers {
		delta := 0.0
		if tk.Greeks != nil {
			delta = tk.Greeks.Delta.Float64()
		}
		bid, ask := tk.BestBidPrice.Float64(), tk.BestAskPrice.Float64()
		if tk.Quotes != nil {
			bid, ask = tk.Quotes.BestBid.Float64(), tk.Quotes.BestAsk.Float64()
		}
		fmt.Printf("%-28s %-12s expiry=%s strike=%.0f delta=%+.4f bid=%.2f ask=%.2f mark=%.2f\n",
			tk.Symbol, tk.ContractType, tk.ExpiryDate,
			tk.StrikePrice.Float64(), delta, bid, ask, tk.MarkPrice.Float64())
	}
	fmt.Printf("%d tickers\n", len(tickers))
}

func printPositions(positions []externalmodel.DeltaPosition) {
	found := false
	for _, p := range positions {
		if p.Size.Float64() == 0 {
			continue
		}
		found = true
		side := "long"
		if p.IsShort() {
			side = "short"
		}
		fmt.Println("------ OPEN POSITION ------")
		fmt.Printf("Symbol:     %s\n", p.PositionSymbol())
		fmt.Printf("Side:       %s\n", side)
		fmt.Printf("Size:       %v\n", p.Size.Float64())
		fmt.Printf("EntryPrice: %v\n", p.EffectiveEntryPrice())
		fmt.Printf("MarkPrice:  %v\n", p.MarkPrice.Float64())
		fmt.Println("---------------------------")
	}
	if !found {
		fmt.Println("No open positions.")
	}
}

func printOrder(order *externalmodel.DeltaOrder) {
	fmt.Println("------ ORDER ------")
	fmt.Printf("ID:         %d\n", order.ID)
	fmt.Printf("ClientID:   %s\n", order.ClientOrderID)
	fmt.Printf("Symbol:     %s\n", order.ProductSymbol)
	fmt.Printf("Side:       %s\n", order.Side)
	fmt.Printf("Type:       %s\n", order.OrderType)
	fmt.Printf("State:      %s\n", order.State)
	fmt.Printf("Size:       %v\n", order.Size.Float64())
	fmt.Printf("Filled:     %v\n", order.FilledSize())
	fmt.Printf("LimitPrice: %v\n", order.LimitPrice.Float64())
	fmt.Printf("AvgFill:    %v\n", order.AverageFillPrice.Float64())
	fmt.Println("-------------------")
}

func parseProductQty(args []string) (int64, float64, error) {
	productID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid product id %q", args[0])
	}
	qty, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid quantity %q", args[1])
	}
	return productID, qty, nil
}

func placeLimit(client *connectors.DeltaClient, side string, args []string) {
	if len(args) < 3 {
		fmt.Printf("Usage: %s PRODUCT_ID QTY PRICE\n", side)
		return
	}
	productID, qty, err := parseProductQty(args)
	if err != nil {
		fmt.Println(err)
		return
	}
	order, err := client.PlaceOrder(&connectors.OrderRequest{
		ProductID:  productID,
		Size:       qty,
		Side:       side,
		OrderType:  model.OrderTypeLimit,
		LimitPrice: args[2],
	})
	if err != nil {
		fmt.Println("Order failed:", err)
		return
	}
	printOrder(order)
}

func main() {
	SetupLogger()

	cfg := connectors.GetConfig()
	client := connectors.NewDeltaClient(cfg)
	if !client.HasCredentials() {
		fmt.Println("No API credentials configured; private commands will fail.")
	}

	fmt.Println("Delta manual operations console. Type 'help' for commands.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		cmd, args := strings.ToLower(fields[0]), fields[1:]

		switch cmd {
		case "help":
			printUsage()

		case "shutdown", "exit", "quit":
			fmt.Println("Bye.")
			return

		case "chain":
			if len(args) < 1 {
				fmt.Println("Usage: chain UNDERLYING [EXPIRY]")
				continue
			}
			expiry := ""
			if len(args) > 1 {
				expiry = args[1]
			}
			tickers, err := client.ListOptionTickers(strings.ToUpper(args[0]), expiry)
			if err != nil {
				fmt.Println("Chain fetch failed:", err)
				continue
			}
			printChain(tickers)

		case "ticker":
			if len(args) < 1 {
				fmt.Println("Usage: ticker SYMBOL")
				continue
			}
			ticker, err := client.GetTicker(args[0])
			if err != nil {
				fmt.Println("Ticker fetch failed:", err)
				continue
			}
			printJSON(ticker)

		case "product":
			if len(args) < 1 {
				fmt.Println("Usage: product ID")
				continue
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				fmt.Println("Invalid product id:", args[0])
				continue
			}
			product, err := client.GetProduct(id)
			if err != nil {
				fmt.Println("Product fetch failed:", err)
				continue
			}
			printJSON(product)

		case "positions":
			positions, err := client.GetMarginedPositions()
			if err != nil {
				fmt.Println("Positions fetch failed:", err)
				continue
			}
			printPositions(positions)

		case "sell":
			placeLimit(client, "sell", args)

		case "buy":
			placeLimit(client, "buy", args)

		case "close":
			if len(args) < 2 {
				fmt.Println("Usage: close PRODUCT_ID QTY")
				continue
			}
			productID, qty, err := parseProductQty(args)
			if err != nil {
				fmt.Println(err)
				continue
			}
			order, err := client.PlaceOrder(&connectors.OrderRequest{
				ProductID:   productID,
				Size:        qty,
				Side:        "buy",
				OrderType:   model.OrderTypeMarket,
				TimeInForce: "ioc",
				ReduceOnly:  "true",
			})
			if err != nil {
				fmt.Println("Close failed:", err)
				continue
			}
			printOrder(order)

		case "order":
			if len(args) < 1 {
				fmt.Println("Usage: order ORDER_ID")
				continue
			}
			order, err := client.GetOrder(args[0])
			if err != nil {
				fmt.Println("Order fetch failed:", err)
				continue
			}
			printOrder(order)

		case "cancel":
			if len(args) < 2 {
				fmt.Println("Usage: cancel ORDER_ID PRODUCT_ID")
				continue
			}
			productID, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				fmt.Println("Invalid product id:", args[1])
				continue
			}
			if err := client.CancelOrder(args[0], productID); err != nil {
				fmt.Println("Cancel failed:", err)
				continue
			}
			fmt.Println("Cancelled.")

		default:
			fmt.Printf("Unknown command %q. Type 'help'.\n", cmd)
		}
	}
}
