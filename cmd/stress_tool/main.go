package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

var httpClient *http.Client

func init() {
	// 优化 HTTP Client 配置
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.MaxIdleConns = 500
	t.MaxIdleConnsPerHost = 500
	t.MaxConnsPerHost = 500
	httpClient = &http.Client{
		Transport: t,
		Timeout:   10 * time.Second,
	}
}

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
}

// 并发重复提交同一笔支付，验证同一秒内只生成一条订单
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base url")
	total := flag.Int("n", 200, "concurrent duplicate submissions")
	email := flag.String("email", fmt.Sprintf("stress_%d@example.com", time.Now().Unix()), "purchaser email")
	flag.Parse()

	// 1. 注册并登录
	token := login(*baseURL, *email)

	fmt.Printf("开始压测：%d 个并发请求重复发起同一笔支付...\n", *total)

	// 2. 并发提交
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		orderIDs = make(map[string]int)
		statuses = make(map[int]int)
	)

	body, _ := json.Marshal(map[string]interface{}{
		"items":      []map[string]interface{}{{"sku": "STRESS-1", "qty": 1}},
		"totalPrice": "499.00",
		"email":      *email,
	})

	start := time.Now()
	for i := 0; i < *total; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			code, orderID := initPayment(*baseURL, token, body)

			mu.Lock()
			defer mu.Unlock()
			statuses[code]++
			if orderID != "" {
				orderIDs[orderID]++
			}
		}()
	}
	wg.Wait()
	duration := time.Since(start)

	fmt.Println("--------------------------------------------------")
	fmt.Printf("压测结束，耗时: %v\n", duration)
	fmt.Printf("QPS: %.2f\n", float64(*total)/duration.Seconds())
	fmt.Printf("状态码分布: %v\n", statuses)
	fmt.Printf("不同订单数: %d (跨秒时允许多于 1)\n", len(orderIDs))
	for id, n := range orderIDs {
		fmt.Printf("  %s x %d\n", id, n)
	}
	fmt.Println("--------------------------------------------------")
}

func login(baseURL, email string) string {
	const password = "stress-pass-123"

	register, _ := json.Marshal(map[string]string{
		"firstName": "Stress",
		"lastName":  "Tester",
		"email":     email,
		"password":  password,
		"phone":     "9000000000",
	})
	// 已注册时返回 409，忽略
	if _, err := post(baseURL+"/user/register", "", register); err != nil {
		log.Fatal("register failed:", err)
	}

	creds, _ := json.Marshal(map[string]string{"email": email, "password": password})
	resp, err := post(baseURL+"/user/login", "", creds)
	if err != nil || !resp.Success {
		log.Fatalf("login failed: %v %+v", err, resp)
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		log.Fatal("decode login:", err)
	}
	return data.Token
}

func initPayment(baseURL, token string, body []byte) (int, string) {
	resp, err := post(baseURL+"/user/auth/payment", token, body)
	if err != nil {
		return 0, ""
	}
	if !resp.Success {
		return resp.StatusCode, ""
	}

	var data struct {
		OrderID string `json:"orderId"`
	}
	_ = json.Unmarshal(resp.Data, &data)
	return http.StatusOK, data.OrderID
}

func post(url, token string, body []byte) (*envelope, error) {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}
	if env.StatusCode == 0 {
		env.StatusCode = resp.StatusCode
	}
	return &env, nil
}
