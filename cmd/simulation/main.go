package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/solswap/swap-api/internal/auth"
	"github.com/solswap/swap-api/internal/types"
)

const (
	minOrders     = 10
	maxOrders     = 50
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
	wsAddress     = "ws://localhost:8080"
)

var (
	tokens  = []string{"SOL", "USDC", "USDT", "BONK", "JUP"}
	wallets = []string{"w-alpha", "w-beta", "w-gamma", "w-delta"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
	mu         sync.Mutex
}

func (rs *routeStats) record(d time.Duration, failed bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
	if failed {
		rs.failures++
	}
}

// calculate computes min, max, mean and p95 from recorded durations
func (rs *routeStats) calculate() (min, max, mean, p95 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var total time.Duration
	for _, d := range rs.durations {
		total += d
	}
	mean = total / time.Duration(len(rs.durations))
	p95 = rs.durations[len(rs.durations)*95/100]
	return min, max, mean, p95
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type simClient struct {
	httpClient *http.Client
	token      string
	submitSt   *routeStats
	statusSt   *routeStats
}

func main() {
	client := &simClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		submitSt:   &routeStats{name: "POST /orders/execute"},
		statusSt:   &routeStats{name: "GET /orders/:order_id"},
	}

	if err := client.authenticate(); err != nil {
		log.Fatal().Err(err).Msg("authentication failed")
	}

	orderCount := minOrders + rand.Intn(maxOrders-minOrders+1)
	log.Info().Int("orders", orderCount).Msg("starting swap order simulation")

	jobs := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var orderIDs []string

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				orderID, err := client.submitOrder()
				if err != nil {
					log.Error().Err(err).Msg("order submission failed")
					continue
				}
				mu.Lock()
				orderIDs = append(orderIDs, orderID)
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < orderCount; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	log.Info().Int("submitted", len(orderIDs)).Msg("all orders submitted")

	// Watch a few orders over the live stream while the rest settle
	var watchWg sync.WaitGroup
	for i, orderID := range orderIDs {
		if i >= 3 {
			break
		}
		watchWg.Add(1)
		go func(id string) {
			defer watchWg.Done()
			client.watchOrder(id)
		}(orderID)
	}
	watchWg.Wait()

	client.awaitTerminal(orderIDs)
	client.printStats()
}

func (c *simClient) authenticate() error {
	body, _ := json.Marshal(auth.Credentials{
		APIKey:    auth.TestAPIKey,
		APISecret: auth.TestAPISecret,
	})

	resp, err := c.httpClient.Post(serverAddress+"/api/v1/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if !envelope.Success {
		return fmt.Errorf("token request rejected")
	}

	var tokenResp auth.TokenResponse
	if err := json.Unmarshal(envelope.Data, &tokenResp); err != nil {
		return err
	}
	c.token = tokenResp.Token
	log.Info().Msg("authenticated with API")
	return nil
}

func (c *simClient) submitOrder() (string, error) {
	in := tokens[rand.Intn(len(tokens))]
	out := tokens[rand.Intn(len(tokens))]
	for out == in {
		out = tokens[rand.Intn(len(tokens))]
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"user_wallet":  wallets[rand.Intn(len(wallets))],
		"input_token":  in,
		"output_token": out,
		"input_amount": 1 + rand.Float64()*99,
	})

	req, err := http.NewRequest(http.MethodPost, serverAddress+"/api/v1/orders/execute", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.submitSt.record(time.Since(start), err != nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", err
	}
	if !envelope.Success {
		return "", fmt.Errorf("order rejected: %s", envelope.Error.Message)
	}

	var queued struct {
		OrderID string `json:"order_id"`
	}
	if err := json.Unmarshal(envelope.Data, &queued); err != nil {
		return "", err
	}

	log.Info().Str("order_id", queued.OrderID).Str("pair", in+"/"+out).Msg("order queued")
	return queued.OrderID, nil
}

// watchOrder follows one order's live status stream until it closes.
func (c *simClient) watchOrder(orderID string) {
	conn, _, err := websocket.DefaultDialer.Dial(wsAddress+"/api/v1/ws/orders/"+orderID, nil)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Msg("websocket dial failed")
		return
	}
	defer conn.Close()

	for {
		var msg struct {
			Type   string            `json:"type"`
			Status types.OrderStatus `json:"status"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		log.Info().
			Str("order_id", orderID).
			Str("status", string(msg.Status)).
			Msg("stream update")
		if msg.Status.Terminal() {
			return
		}
	}
}

// awaitTerminal polls until every order reaches CONFIRMED or FAILED.
func (c *simClient) awaitTerminal(orderIDs []string) {
	confirmed, failed := 0, 0
	deadline := time.Now().Add(2 * time.Minute)

	for _, orderID := range orderIDs {
		for {
			if time.Now().After(deadline) {
				log.Warn().Msg("timed out waiting for terminal statuses")
				return
			}

			order, err := c.fetchOrder(orderID)
			if err != nil {
				log.Error().Err(err).Str("order_id", orderID).Msg("status fetch failed")
				break
			}
			if order.Status.Terminal() {
				if order.Status == types.StatusConfirmed {
					confirmed++
				} else {
					failed++
				}
				break
			}
			time.Sleep(500 * time.Millisecond)
		}
	}

	log.Info().
		Int("confirmed", confirmed).
		Int("failed", failed).
		Msg("simulation complete")
}

func (c *simClient) fetchOrder(orderID string) (*types.Order, error) {
	req, err := http.NewRequest(http.MethodGet, serverAddress+"/api/v1/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.statusSt.record(time.Since(start), err != nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, err
	}
	if !envelope.Success {
		return nil, fmt.Errorf("status fetch rejected: %s", envelope.Error.Message)
	}

	var order types.Order
	if err := json.Unmarshal(envelope.Data, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *simClient) printStats() {
	for _, rs := range []*routeStats{c.submitSt, c.statusSt} {
		min, max, mean, p95 := rs.calculate()
		log.Info().
			Str("route", rs.name).
			Int("calls", rs.totalCalls).
			Int("failures", rs.failures).
			Dur("min", min).
			Dur("max", max).
			Dur("mean", mean).
			Dur("p95", p95).
			Msg("route statistics")
	}
}
