package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	fetch "github.com/TimothyKlim/fetch"
	eventbus "github.com/TimothyKlim/fetch/eventbus"
	logging "github.com/TimothyKlim/fetch/logging"
	fetchotel "github.com/TimothyKlim/fetch/otel"

	"go.uber.org/zap"
)

const usage = `fetchdemo — run the fetch planner against in-process sample sources

USAGE:
  fetchdemo [flags]

SCENARIOS:
  batch      Three identities from one source coalesce into one batch
  parallel   Two sources queried in a single concurrent round
  chain      A dependent lookup forces two sequential rounds
  dedup      Duplicate identities are fetched once
  cached     A pre-populated cache serves the identity without a source call

FLAGS:
  -scenario <name>       Scenario to run (default: batch)
  -otel.endpoint <addr>  OTLP collector endpoint
  -otel.service <name>   OpenTelemetry service name (default: fetchdemo)
  -v                     Verbose structured logging
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("fetchdemo", flag.ContinueOnError)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	scenario := fs.String("scenario", "batch", "")
	otelEndpoint := fs.String("otel.endpoint", "", "")
	otelService := fs.String("otel.service", "fetchdemo", "")
	verbose := fs.Bool("v", false, "")
	if err := fs.Parse(args); err != nil {
		return err
	}

	eventbus.Use(eventbus.New())

	shutdown, err := fetchotel.Setup(*otelEndpoint, *otelService)
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer logging.Attach(logger)()
	}

	ctx := context.Background()
	users := newUserSource()
	posts := newPostSource()

	switch *scenario {
	case "batch":
		return report(ctx, fetch.Traverse([]int{1, 2, 3}, func(id int) fetch.Fetch[demoUser] {
			return fetch.New[int, demoUser](users, id)
		}), nil)
	case "parallel":
		return report(ctx, fetch.Join(
			fetch.New[int, demoUser](users, 1),
			fetch.New[int, demoPost](posts, 10),
		), nil)
	case "chain":
		return report(ctx, fetch.FlatMap(
			fetch.New[int, demoPost](posts, 10),
			func(p demoPost) fetch.Fetch[demoUser] {
				return fetch.New[int, demoUser](users, p.AuthorID)
			},
		), nil)
	case "dedup":
		return report(ctx, fetch.Traverse([]int{1, 2, 1, 2}, func(id int) fetch.Fetch[demoUser] {
			return fetch.New[int, demoUser](users, id)
		}), nil)
	case "cached":
		cache := fetch.NewCache().Merge(map[fetch.CacheKey]any{
			{Source: "Users", Identity: "1"}: demoUser{ID: 1, Name: "cached user"},
		})
		return report(ctx, fetch.New[int, demoUser](users, 1), []fetch.RunOption{fetch.WithCache(cache)})
	default:
		fs.Usage()
		return fmt.Errorf("unknown scenario %q", *scenario)
	}
}

func report[A any](ctx context.Context, fa fetch.Fetch[A], opts []fetch.RunOption) error {
	env, v, err := fetch.RunEnv(ctx, fa, opts...)
	if err != nil {
		return err
	}
	fmt.Printf("value: %+v\n\n", v)
	printEnv(env)
	return nil
}

func printEnv(env *fetch.Env) {
	fmt.Printf("rounds: %d, fetched: %d, batches: %d, cache hits: %d\n",
		len(env.Rounds), env.TotalFetched(), env.TotalBatches(), env.TotalCacheHits())
	for i, r := range env.Rounds {
		var parts []string
		for _, q := range r.Queries {
			parts = append(parts, fmt.Sprintf("%s[%s]", q.Source, strings.Join(q.Identities, ",")))
		}
		fmt.Printf("  round %d: kind=%s cached=%v duration=%s %s\n",
			i, r.Kind, r.Cached, r.Duration().Round(0), strings.Join(parts, " "))
	}
}
