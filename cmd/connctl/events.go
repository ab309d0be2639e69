package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"connstatus/internal/api"
)

var (
	eventsServer  string
	eventsSinceID int64
	eventsLimit   int
	eventsTypes   string
	eventsToken   string
)

// fetchEvents 调用服务端事件 API
func fetchEvents(ctx context.Context, client *http.Client, base, token string, sinceID int64, limit int, types string) (*api.EventsResponse, error) {
	q := url.Values{}
	q.Set("since_id", strconv.FormatInt(sinceID, 10))
	q.Set("limit", strconv.Itoa(limit))
	if types != "" {
		q.Set("types", types)
	}
	endpoint := strings.TrimRight(base, "/") + "/api/events?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求事件 API 失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("事件 API 返回 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out api.EventsResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	return &out, nil
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List DOWN/UP events from a running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := eventsToken
		if token == "" {
			token = os.Getenv("EVENTS_API_TOKEN")
		}
		if token == "" {
			return fmt.Errorf("缺少 token：使用 --token 或设置 EVENTS_API_TOKEN")
		}

		server := eventsServer
		if server == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			server = "http://127.0.0.1:" + cfg.Server.Port
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		page, err := fetchEvents(ctx, &http.Client{}, server, token, eventsSinceID, eventsLimit, eventsTypes)
		if err != nil {
			return err
		}

		for _, e := range page.Events {
			label := red(e.Type + "  ")
			if e.Type == "UP" {
				label = green(e.Type + "    ")
			}
			at := time.Unix(e.ObservedAt, 0).Format("2006-01-02 15:04:05")
			fmt.Printf("%6d %s %s %s -> %s %s\n", e.ID, gray(at), label, e.FromState, e.ToState, gray("target="+e.Target))
		}
		fmt.Println(gray(fmt.Sprintf("count=%d next_since_id=%d has_more=%v", page.Meta.Count, page.Meta.NextSinceID, page.Meta.HasMore)))
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsServer, "server", "", "Server base URL (default from config port)")
	eventsCmd.Flags().Int64Var(&eventsSinceID, "since", 0, "Cursor: only events after this ID")
	eventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 20, "Maximum events")
	eventsCmd.Flags().StringVar(&eventsTypes, "types", "", "Filter types, e.g. DOWN,UP")
	eventsCmd.Flags().StringVar(&eventsToken, "token", "", "API token (default $EVENTS_API_TOKEN)")
	rootCmd.AddCommand(eventsCmd)
}
