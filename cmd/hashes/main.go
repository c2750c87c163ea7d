package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

const usage = `Usage: hashes [flags] <command> [args]

Commands:
  health | version
  prefs                      show preferences
  prefs set key=value...     save values (JSON values are decoded, "null" removes)
  key <api key>              save the hashes.com API key
  balance                    balance with USD values
  jobs [query]               open escrow jobs, e.g. jobs "currency=BTC&sort=price"
  identify <hash>            candidate algorithms
  lookup <file|->            look up hashes, one per line
  download <dir> <jobId>...  queue a left-list download
  tasks | task <id> | cancel <id>`

type client struct {
	base string
	http *http.Client
}

func main() {
	baseURL := flag.String("server", envOr("HASHES_SERVER_URL", "http://127.0.0.1:8080"), "Server URL")
	timeout := flag.Duration("timeout", 60*time.Second, "HTTP timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	c := client{base: strings.TrimRight(*baseURL, "/") + "/api/v1", http: &http.Client{Timeout: *timeout}}

	switch args[0] {
	case "health", "version", "balance":
		c.do(http.MethodGet, "/"+strings.Replace(args[0], "balance", "hashes/balance", 1), nil, "")
	case "prefs":
		if len(args) > 2 && args[1] == "set" {
			c.do(http.MethodPatch, "/preferences", jsonBody(parseAssignments(args[2:])), "application/json")
			return
		}
		c.do(http.MethodGet, "/preferences", nil, "")
	case "key":
		need(args, 2)
		c.do(http.MethodPut, "/preferences/api-key", jsonBody(map[string]string{"apiKey": args[1]}), "application/json")
	case "jobs":
		path := "/hashes/jobs"
		if len(args) > 1 {
			path += "?" + args[1]
		}
		c.do(http.MethodGet, path, nil, "")
	case "identify":
		need(args, 2)
		c.do(http.MethodGet, "/hashes/identify?hash="+url.QueryEscape(args[1]), nil, "")
	case "lookup":
		need(args, 2)
		hashes, err := readLines(args[1])
		if err != nil {
			fail(err)
		}
		c.do(http.MethodPost, "/hashes/lookup", jsonBody(map[string][]string{"hashes": hashes}), "application/json")
	case "download":
		need(args, 3)
		c.do(http.MethodPost, "/tasks", jsonBody(map[string]any{
			"type":   "download-left-lists",
			"params": map[string]any{"destination": args[1], "jobIds": args[2:]},
		}), "application/json")
	case "tasks":
		c.do(http.MethodGet, "/tasks", nil, "")
	case "task":
		need(args, 2)
		c.do(http.MethodGet, "/tasks/"+url.PathEscape(args[1]), nil, "")
	case "cancel":
		need(args, 2)
		c.do(http.MethodPost, "/tasks/"+url.PathEscape(args[1])+"/cancel", nil, "")
	default:
		fmt.Fprintln(os.Stderr, "Unknown command:", args[0])
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func (c client) do(method, path string, body io.Reader, contentType string) {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		fail(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		fail(err)
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	var pretty any
	if err := json.Unmarshal(b, &pretty); err == nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(pretty)
	} else {
		os.Stdout.Write(b)
		os.Stdout.Write([]byte("\n"))
	}
	if resp.StatusCode >= 400 {
		os.Exit(1)
	}
}

// parseAssignments turns key=value pairs into a patch. Values that parse as
// JSON keep their type, anything else is a string.
func parseAssignments(pairs []string) map[string]any {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			fail(fmt.Errorf("expected key=value, got %q", pair))
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out
}

func readLines(path string) ([]string, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func jsonBody(v any) io.Reader {
	b, err := json.Marshal(v)
	if err != nil {
		fail(err)
	}
	return bytes.NewReader(b)
}

func need(args []string, n int) {
	if len(args) < n {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
