package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из app, CLI не импортирует internal/app) ---

// OrderEvent — одно событие жизненного цикла заказа из API.
type OrderEvent struct {
	OrderID   string `json:"order_id"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Message   string `json:"message"`
	State     string `json:"state"`
	Timestamp string `json:"timestamp"`
}

// NewOrderEntry — запись журнала создания заказов.
type NewOrderEntry struct {
	Seq     int64  `json:"seq"`
	OrderID string `json:"order_id"`
}

// StreamItem — одна NDJSON-строка потокового режима.
type StreamItem struct {
	Event *OrderEvent `json:"event,omitempty"`
	Text  string      `json:"text,omitempty"`
}

// EventsResponse — ответ long-poll чтения событий заказа.
type EventsResponse struct {
	Events []OrderEvent `json:"events"`
	Next   int          `json:"next"`
}

// UpdatesResponse — ответ long-poll чтения журнала создания.
type UpdatesResponse struct {
	Orders  []NewOrderEntry `json:"orders"`
	NextSeq int64           `json:"next_seq"`
}

type orderRequest struct {
	Farm     string  `json:"farm"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type summaryResponse struct {
	Summary string `json:"summary"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Logistics API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API. Таймаут не задаётся: заказ в
// агрегирующем режиме ждёт завершения всей беседы.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// CreateOrder проводит заказ в агрегирующем режиме и возвращает сводку.
func (c *Client) CreateOrder(farm string, quantity int, price float64) (string, error) {
	body, err := json.Marshal(orderRequest{Farm: farm, Quantity: quantity, Price: price})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+"/agent/orders", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return "", err
	}

	var sr summaryResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return sr.Summary, nil
}

// StreamOrder проводит заказ в потоковом режиме, вызывая fn на каждую
// NDJSON-строку по мере поступления.
func (c *Client) StreamOrder(farm string, quantity int, price float64, fn func(StreamItem) error) error {
	body, err := json.Marshal(orderRequest{Farm: farm, Quantity: quantity, Price: price})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+"/agent/orders/stream", "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var item StreamItem
		if err := json.Unmarshal(line, &item); err != nil {
			return fmt.Errorf("failed to decode stream line: %w", err)
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// OrderEvents возвращает события заказа начиная с индекса after,
// блокируясь на сервере до timeout при отсутствии новых.
func (c *Client) OrderEvents(orderID string, after int, timeout time.Duration) (*EventsResponse, error) {
	params := url.Values{}
	params.Set("after", fmt.Sprintf("%d", after))
	params.Set("timeout", timeout.String())

	var er EventsResponse
	if err := c.get("/orders/"+orderID+"/events?"+params.Encode(), &er); err != nil {
		return nil, err
	}
	return &er, nil
}

// OrderUpdates возвращает записи журнала создания после afterSeq.
func (c *Client) OrderUpdates(afterSeq int64, timeout time.Duration) (*UpdatesResponse, error) {
	params := url.Values{}
	params.Set("after_seq", fmt.Sprintf("%d", afterSeq))
	params.Set("timeout", timeout.String())

	var ur UpdatesResponse
	if err := c.get("/orders/updates?"+params.Encode(), &ur); err != nil {
		return nil, err
	}
	return &ur, nil
}

// LatestOrder возвращает последнюю запись журнала создания.
func (c *Client) LatestOrder() (*NewOrderEntry, error) {
	var entry NewOrderEntry
	if err := c.get("/orders/latest", &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DeleteOrder удаляет события заказа.
func (c *Client) DeleteOrder(orderID string) error {
	req, err := http.NewRequest(http.MethodDelete, c.baseURL+"/orders/"+orderID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkError(resp)
}

func (c *Client) get(path string, result any) error {
	resp, err := c.httpClient.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}
	return json.NewDecoder(resp.Body).Decode(result)
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Error == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("%s", er.Error)
}
