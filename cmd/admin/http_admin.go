package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"voxelgrowth.ai/internal/sim/world"
)

func metricsCmd(args []string) {
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + "/metrics"
	cl := &http.Client{Timeout: 5 * time.Second}
	resp, err := cl.Get(u)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Print(string(b))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

// reactCmd queues one reaction on a running server.
func reactCmd(args []string) {
	fs := flag.NewFlagSet("react", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	species := fs.String("species", "", "species name (required)")
	pos := fs.String("pos", "", "reaction cell: x,y,z (required)")
	spores := fs.Int("spores", 32, "spore budget")
	water := fs.Int("water", 32, "water budget")
	initial := fs.Bool("initial", true, "seed the automaton at its own cell")
	small := fs.Bool("small", false, "spawn a small automaton")
	_ = fs.Parse(args)

	if strings.TrimSpace(*species) == "" {
		fmt.Fprintln(os.Stderr, "missing -species")
		os.Exit(2)
	}
	p, err := parseVec3(*pos)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -pos:", err)
		os.Exit(2)
	}

	status, body, err := postReaction(&http.Client{Timeout: 5 * time.Second}, *baseURL, world.ReactionRequest{
		Species: strings.TrimSpace(*species),
		Pos:     p,
		Spores:  *spores,
		Water:   *water,
		Initial: *initial,
		Small:   *small,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	fmt.Println(strings.TrimSpace(body))
	if status/100 != 2 {
		os.Exit(1)
	}
}

func postReaction(cl *http.Client, baseURL string, r world.ReactionRequest) (int, string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return 0, "", err
	}
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/v1/react"
	resp, err := cl.Post(u, "application/json", bytes.NewReader(raw))
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b), nil
}
