// Command reservoctl drives a running reservo API: it lists items, shows
// availability, fills a cart, checks out and cancels reservations.
//
// Connection settings come from flags or the RESERVO_URL, RESERVO_API_KEY,
// RESERVO_API_EXTRA and RESERVO_REDIS_ADDR environment variables.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"reservo/internal/client"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const usage = `usage: reservoctl [flags] <command> [args]

commands:
  items <workspace_id>
  availability <item_id> <YYYY-MM-DD> [quantity]
  add <item_id> <start RFC3339> <end RFC3339> [quantity]
  checkout <workspace_id>
  cancel <reservation_id>
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			logger.Error().Int("status", apiErr.StatusCode).Strs("reasons", apiErr.Reasons).Msg(apiErr.Message)
		} else {
			logger.Error().Err(err).Msg("reservoctl failed")
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reservoctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		baseURL   = fs.String("url", envOr("RESERVO_URL", "http://localhost:8080"), "API base URL")
		apiKey    = fs.String("api-key", os.Getenv("RESERVO_API_KEY"), "API key")
		apiExtra  = fs.String("api-extra", os.Getenv("RESERVO_API_EXTRA"), "second API credential")
		userID    = fs.Int64("user", 0, "acting user id for cart and reservation commands")
		redisAddr = fs.String("redis", os.Getenv("RESERVO_REDIS_ADDR"), "redis address for the read cache")
		cacheTTL  = fs.Duration("cache-ttl", 30*time.Second, "read cache lifetime")
		timeout   = fs.Duration("timeout", 15*time.Second, "request timeout")
	)
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w\n%s", err, usage)
	}
	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New(usage)
	}

	c := client.New(*baseURL, *apiKey, *apiExtra)
	if *redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
		defer rdb.Close()
		c.UseRedisCache(rdb, *cacheTTL)
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	result, err := dispatch(ctx, c, *userID, rest[0], rest[1:])
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func dispatch(ctx context.Context, c *client.Client, userID int64, cmd string, args []string) (any, error) {
	needUser := func() error {
		if userID <= 0 {
			return fmt.Errorf("%s requires -user", cmd)
		}
		return nil
	}

	switch cmd {
	case "items":
		if len(args) != 1 {
			return nil, errors.New("items <workspace_id>")
		}
		ws, err := parseID("workspace_id", args[0])
		if err != nil {
			return nil, err
		}
		return c.ListItems(ctx, ws)

	case "availability":
		if len(args) < 2 || len(args) > 3 {
			return nil, errors.New("availability <item_id> <YYYY-MM-DD> [quantity]")
		}
		itemID, err := parseID("item_id", args[0])
		if err != nil {
			return nil, err
		}
		qty, err := optionalQuantity(args[2:])
		if err != nil {
			return nil, err
		}
		return c.Availability(ctx, itemID, args[1], qty)

	case "add":
		if err := needUser(); err != nil {
			return nil, err
		}
		if len(args) < 3 || len(args) > 4 {
			return nil, errors.New("add <item_id> <start> <end> [quantity]")
		}
		itemID, err := parseID("item_id", args[0])
		if err != nil {
			return nil, err
		}
		qty, err := optionalQuantity(args[3:])
		if err != nil {
			return nil, err
		}
		return c.AddToCart(ctx, userID, client.AddEntryRequest{
			ItemID: itemID, StartTime: args[1], EndTime: args[2], Quantity: qty,
		})

	case "checkout":
		if err := needUser(); err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, errors.New("checkout <workspace_id>")
		}
		ws, err := parseID("workspace_id", args[0])
		if err != nil {
			return nil, err
		}
		return c.Checkout(ctx, userID, ws)

	case "cancel":
		if err := needUser(); err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, errors.New("cancel <reservation_id>")
		}
		id, err := parseID("reservation_id", args[0])
		if err != nil {
			return nil, err
		}
		return nil, c.CancelReservation(ctx, userID, id)

	default:
		return nil, fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

func optionalQuantity(args []string) (int64, error) {
	if len(args) == 0 {
		return 1, nil
	}
	qty, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q", args[0])
	}
	return qty, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
