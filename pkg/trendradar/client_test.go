package trendradar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
)

// fakeServer serves canned envelopes per tool name and records requests.
func fakeServer(t *testing.T, responses map[string]any) (*httptest.Server, *[]callRequest) {
	t.Helper()
	var seen []callRequest

	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var req callRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		seen = append(seen, req)

		resp, ok := responses[req.ToolName]
		if !ok {
			resp = map[string]any{
				"success": false,
				"error":   map[string]any{"code": "INVALID_ARGUMENT", "message": "unknown tool: " + req.ToolName},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestCallSuccess(t *testing.T) {
	srv, seen := fakeServer(t, map[string]any{
		"get_system_status": map[string]any{"success": true, "status": "running", "tools_count": 18},
	})

	c := New(srv.URL)
	env, err := c.Call(context.Background(), "get_system_status", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if env["status"] != "running" {
		t.Errorf("status = %v", env["status"])
	}
	if len(*seen) != 1 || (*seen)[0].ToolName != "get_system_status" {
		t.Errorf("requests = %+v", *seen)
	}
}

func TestCallArgumentsForwarded(t *testing.T) {
	srv, seen := fakeServer(t, map[string]any{
		"search_news": map[string]any{"success": true},
	})

	c := New(srv.URL)
	if _, err := c.SearchNews(context.Background(), "世界杯", "fuzzy", "last 3 days", 20); err != nil {
		t.Fatalf("SearchNews: %v", err)
	}

	args := (*seen)[0].Arguments
	if args["query"] != "世界杯" || args["search_mode"] != "fuzzy" {
		t.Errorf("arguments = %v", args)
	}
	if args["date_range"] != "last 3 days" {
		t.Errorf("date_range = %v", args["date_range"])
	}
	// JSON numbers decode as float64.
	if args["limit"] != float64(20) {
		t.Errorf("limit = %v", args["limit"])
	}
}

func TestCallToolFailure(t *testing.T) {
	srv, _ := fakeServer(t, map[string]any{
		"get_latest_news": map[string]any{
			"success": false,
			"error":   map[string]any{"code": "DATA_NOT_FOUND", "message": "今日暂无数据"},
		},
	})

	c := New(srv.URL)
	env, err := c.Call(context.Background(), "get_latest_news", nil)
	if err == nil {
		t.Fatal("failed envelope should error")
	}

	var toolErr *Error
	if !errors.As(err, &toolErr) {
		t.Fatalf("error type = %T", err)
	}
	if toolErr.Code != "DATA_NOT_FOUND" {
		t.Errorf("code = %s", toolErr.Code)
	}
	// The raw envelope is still available for inspection.
	if env == nil || env["success"] != false {
		t.Errorf("envelope = %v", env)
	}
}

func TestCallTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	if _, err := c.Call(context.Background(), "get_system_status", nil); err == nil {
		t.Fatal("non-JSON error response should fail")
	}
}

func TestResolveDateRange(t *testing.T) {
	srv, _ := fakeServer(t, map[string]any{
		"resolve_date_range": map[string]any{
			"success":      true,
			"expression":   "last 3 days",
			"date_range":   map[string]any{"start": "2025-11-24", "end": "2025-11-26"},
			"current_date": "2025-11-26",
			"description":  "2025-11-24 至 2025-11-26，共 3 天",
		},
	})

	c := New(srv.URL)
	got, err := c.ResolveDateRange(context.Background(), "last 3 days")
	if err != nil {
		t.Fatalf("ResolveDateRange: %v", err)
	}
	if got.DateRange.Start != "2025-11-24" || got.DateRange.End != "2025-11-26" {
		t.Errorf("range = %+v", got.DateRange)
	}
	if got.CurrentDate != "2025-11-26" {
		t.Errorf("current date = %s", got.CurrentDate)
	}
}

func TestLatestNewsTyped(t *testing.T) {
	srv, seen := fakeServer(t, map[string]any{
		"get_latest_news": map[string]any{
			"success":        true,
			"date":           "2025-11-26",
			"crawl_time":     "10:30",
			"platforms":      []string{"weibo"},
			"total_items":    2,
			"returned_items": 1,
			"items": []map[string]any{
				{"title": "热搜", "platform_id": "weibo", "platform_name": "微博",
					"rank": 1, "count": 3, "weight": 88.5},
			},
		},
	})

	c := New(srv.URL)
	got, err := c.LatestNews(context.Background(), []string{"weibo"}, 1, false)
	if err != nil {
		t.Fatalf("LatestNews: %v", err)
	}
	if got.TotalItems != 2 || len(got.Items) != 1 {
		t.Errorf("result = %+v", got)
	}
	if it := got.Items[0]; it.Title != "热搜" || it.Rank != 1 || it.Weight != 88.5 {
		t.Errorf("item = %+v", it)
	}

	args := (*seen)[0].Arguments
	if args["limit"] != float64(1) || args["include_url"] != false {
		t.Errorf("arguments = %v", args)
	}
}

func TestTriggerCrawlSaveFailureSurfaces(t *testing.T) {
	srv, _ := fakeServer(t, map[string]any{
		"trigger_crawl": map[string]any{
			"success":          true,
			"task_id":          "crawl_1764150600",
			"status":           "completed",
			"platforms":        []string{"weibo"},
			"total_news":       50,
			"failed_platforms": []string{},
			"saved_to_local":   false,
			"save_error":       "attempt to write a readonly database",
			"note":             "爬取成功，但存储不可写，数据仅在本次返回中有效",
		},
	})

	c := New(srv.URL)
	got, err := c.TriggerCrawl(context.Background(), []string{"weibo"}, true)
	if err != nil {
		t.Fatalf("TriggerCrawl: %v", err)
	}
	if got.SavedToLocal {
		t.Error("saved_to_local should be false on save failure")
	}
	if got.SaveError == "" || got.Note == "" {
		t.Errorf("save failure details missing: %+v", got)
	}
	if got.TotalNews != 50 {
		t.Errorf("total_news = %d", got.TotalNews)
	}
}

func TestBaseURLTrailingSlash(t *testing.T) {
	srv, _ := fakeServer(t, map[string]any{
		"get_system_status": map[string]any{"success": true},
	})

	c := New(srv.URL + "/")
	if _, err := c.SystemStatus(context.Background()); err != nil {
		t.Fatalf("trailing slash base URL: %v", err)
	}
}
