package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL = "http://localhost:8080"
	defaultItemID  = "charizard-1st-ed"
	totalRequests  = 100
)

type itemStatus struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
}

func main() {
	baseURL := os.Getenv("API_BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	itemID := os.Getenv("ITEM_ID")
	if itemID == "" {
		itemID = defaultItemID
	}

	client := &http.Client{Timeout: 15 * time.Second}

	// Check current state and reset if sold out
	status, err := fetchStatus(client, baseURL, itemID)
	if err != nil {
		log.Fatalf("could not reach the backend: %v", err)
	}
	log.Printf("current quantity: %d", status.Quantity)

	if status.Quantity == 0 {
		log.Println("item is sold out, resetting...")
		resp, err := client.Post(baseURL+"/reset/"+itemID, "application/json", nil)
		if err != nil {
			log.Fatalf("reset failed: %v", err)
		}
		resp.Body.Close()
		status, err = fetchStatus(client, baseURL, itemID)
		if err != nil {
			log.Fatalf("status after reset failed: %v", err)
		}
		log.Printf("reset done, quantity: %d", status.Quantity)
	}
	initialStock := status.Quantity

	// Fire concurrent purchase requests
	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var otherCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			req, err := http.NewRequest(http.MethodPost, baseURL+"/buy/"+itemID, nil)
			if err != nil {
				otherCount.Add(1)
				return
			}
			req.Header.Set("X-Request-ID", uuid.NewString())

			resp, err := client.Do(req)
			if err != nil {
				otherCount.Add(1)
				return
			}
			resp.Body.Close()

			switch resp.StatusCode {
			case http.StatusOK:
				successCount.Add(1)
			case http.StatusConflict:
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()
	other := otherCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out (409):   %d\n", soldOut)
	fmt.Printf("Other:            %d\n", other)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if int(success) == initialStock && int(soldOut) == totalRequests-initialStock {
		fmt.Printf("PASS: Exactly %d purchases succeeded, %d rejected\n", success, soldOut)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d sold out, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, soldOut)
	}

	// Verify final quantity through the status endpoint
	final, err := fetchStatus(client, baseURL, itemID)
	if err != nil {
		log.Fatalf("final status failed: %v", err)
	}
	fmt.Printf("Final Quantity:    %d\n", final.Quantity)

	if final.Quantity == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected quantity 0, got %d\n", final.Quantity)
	}
}

func fetchStatus(client *http.Client, baseURL, itemID string) (*itemStatus, error) {
	resp, err := client.Get(baseURL + "/status/" + itemID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var status itemStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, err
	}
	return &status, nil
}
