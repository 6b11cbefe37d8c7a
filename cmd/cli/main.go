// Small operator client: trigger a check, list alerts, acknowledge or
// resolve one. Talks to the monitor API over HTTP.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

func main() {
	api := os.Getenv("API_BASE")
	if api == "" {
		api = "http://localhost:8080"
	}
	key := os.Getenv("API_KEY")

	if len(os.Args) < 2 {
		usage()
		return
	}

	var status int
	var body []byte
	switch os.Args[1] {
	case "check":
		if len(os.Args) != 3 {
			usage()
			return
		}
		status, body = call(api, key, http.MethodPost, "/api/sites/"+os.Args[2]+"/check")
	case "alerts":
		path := "/api/alerts"
		if len(os.Args) == 3 {
			path += "?status=" + os.Args[2]
		}
		status, body = call(api, key, http.MethodGet, path)
	case "ack":
		if len(os.Args) != 3 {
			usage()
			return
		}
		status, body = call(api, key, http.MethodPut, "/api/alerts/"+os.Args[2]+"/acknowledge")
	case "resolve":
		if len(os.Args) != 3 {
			usage()
			return
		}
		status, body = call(api, key, http.MethodPut, "/api/alerts/"+os.Args[2]+"/resolve")
	default:
		usage()
		return
	}

	if status < 200 || status >= 300 {
		fmt.Fprintf(os.Stderr, "API returned %d: %s\n", status, strings.TrimSpace(string(body)))
		os.Exit(1)
	}
	printJSON(body)
}

func call(api, key, method, path string) (int, []byte) {
	req, err := http.NewRequest(method, api+path, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad request:", err)
		os.Exit(1)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error contacting API:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func printJSON(body []byte) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		fmt.Println(string(body))
		return
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(out))
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  cli check <site-id>        queue an immediate check
  cli alerts [status]        list alerts, optionally filtered (open|acknowledged|resolved)
  cli ack <alert-id>         acknowledge an alert
  cli resolve <alert-id>     resolve an alert

env: API_BASE (default http://localhost:8080), API_KEY`)
}
