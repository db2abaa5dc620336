package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
)

func apiURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "api-url",
		Usage:   "Base URL of a running caseflow-api",
		Value:   "http://localhost:9080",
		Sources: cli.EnvVars("CASEFLOW_API_URL"),
	}
}

// BreakersCommand inspects and resets circuit breakers through a running API.
func BreakersCommand() *cli.Command {
	return &cli.Command{
		Name:    "breakers",
		Aliases: []string{"b"},
		Usage:   "Inspect and reset circuit breakers",
		Commands: []*cli.Command{
			{
				Name:  "export",
				Usage: "Print every breaker snapshot",
				Flags: []cli.Flag{apiURLFlag()},
				Action: func(ctx context.Context, command *cli.Command) error {
					return apiCall(ctx, http.MethodGet, command.String("api-url"), "/breakers/")
				},
			},
			{
				Name:      "inspect",
				Usage:     "Print one breaker snapshot",
				ArgsUsage: "<key>",
				Flags:     []cli.Flag{apiURLFlag()},
				Action: func(ctx context.Context, command *cli.Command) error {
					key := command.Args().First()
					if key == "" {
						return fmt.Errorf("breaker key is required")
					}

					return apiCall(ctx, http.MethodGet, command.String("api-url"), "/breakers/"+url.PathEscape(key))
				},
			},
			{
				Name:      "reset",
				Usage:     "Reset a breaker to closed",
				ArgsUsage: "<key>",
				Flags:     []cli.Flag{apiURLFlag()},
				Action: func(ctx context.Context, command *cli.Command) error {
					key := command.Args().First()
					if key == "" {
						return fmt.Errorf("breaker key is required")
					}

					return apiCall(ctx, http.MethodPost, command.String("api-url"), "/breakers/"+url.PathEscape(key)+"/reset")
				},
			},
		},
	}
}

func apiCall(ctx context.Context, method, baseURL, path string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimSuffix(baseURL, "/")+path, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach caseflow-api: %w", err)
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("caseflow-api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println(strings.TrimSpace(string(body)))

	return nil
}
