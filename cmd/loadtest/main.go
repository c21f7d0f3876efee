// loadtest гоняет параллельные checkout-сценарии против HTTP API storefront
// с fake-провайдерами и проверяет, что склад не ушёл в минус, а заказы не задвоились.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type loadMode string

const (
	modeCheckout loadMode = "checkout"
	// modeReplay дублирует callback провайдера параллельно, как это делают браузер и webhook.
	modeReplay loadMode = "checkout-replay"
)

type config struct {
	baseURL     string
	total       int
	concurrency int
	timeout     time.Duration
	mode        loadMode
	productID   int64
	quantity    int
	userTag     string
	verify      bool
	backorder   bool
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg       config
		modeValue string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "storefront HTTP API base URL")
	fs.IntVar(&cfg.total, "total", 200, "total checkout scenarios")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent shoppers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: checkout | checkout-replay")
	fs.Int64Var(&cfg.productID, "product-id", 1, "product every shopper puts into the cart")
	fs.IntVar(&cfg.quantity, "quantity", 1, "quantity per cart")
	fs.StringVar(&cfg.userTag, "user-tag", "load", "user id prefix")
	fs.BoolVar(&cfg.verify, "verify", true, "check stock and duplicate orders after the run")
	fs.BoolVar(&cfg.backorder, "backorder", false, "server runs with backorder policy; negative stock is expected")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	var errs []error
	if cfg.baseURL == "" {
		errs = append(errs, errors.New("base-url is required"))
	}
	if cfg.total <= 0 {
		errs = append(errs, errors.New("total must be > 0"))
	}
	if cfg.concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be > 0"))
	}
	if cfg.timeout <= 0 {
		errs = append(errs, errors.New("timeout must be > 0"))
	}
	if cfg.productID <= 0 {
		errs = append(errs, errors.New("product-id must be > 0"))
	}
	if cfg.quantity <= 0 {
		errs = append(errs, errors.New("quantity must be > 0"))
	}
	if strings.TrimSpace(cfg.userTag) == "" {
		errs = append(errs, errors.New("user-tag is required"))
	}
	return cfg, errors.Join(errs...)
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCheckout:
		return modeCheckout, nil
	case modeReplay:
		return modeReplay, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result, err := run(context.Background(), cfg, http.DefaultTransport)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "load test failed: %v\n", err)
		os.Exit(1)
	}

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 || len(result.Violations) > 0 {
		os.Exit(1)
	}
}

// run выполняет cfg.total сценариев не более чем cfg.concurrency одновременно.
// Ошибки сценариев попадают в отчёт; ошибкой run считается только сбой проверки.
func run(ctx context.Context, cfg config, transport http.RoundTripper) (report, error) {
	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.concurrency)
	for i := 0; i < cfg.total; i++ {
		g.Go(func() error {
			s, err := newShopper(cfg, transport, fmt.Sprintf("%s-%s-%d", cfg.userTag, runID, i), col)
			if err != nil {
				return err
			}
			if err := s.checkout(gctx); err != nil {
				log.WithError(err).WithField("scenario", i).Debug("scenario failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report{}, err
	}

	result := col.buildReport(startedAt, time.Since(startedAt))
	if cfg.verify {
		violations, err := verify(ctx, cfg, transport)
		if err != nil {
			return result, fmt.Errorf("verify: %w", err)
		}
		result.Violations = violations
	}
	return result, nil
}
