package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"BullShip-Merchant/sdk/go/bullship"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/settlements", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(bullship.SettlementJob{
				ID:         "job-demo",
				Status:     "pending",
				StockToken: "0x00000000000000000000000000000000000000b2",
				MaxRetries: 3,
			})
		case http.MethodGet:
			_ = json.NewEncoder(w).Encode(bullship.SettlementJob{
				ID:         "job-demo",
				Status:     "succeeded",
				StockToken: "0x00000000000000000000000000000000000000b2",
				Result: &bullship.SettlementResult{
					TxHash:          "0x0304",
					RequestsSettled: 2,
					BlockNumber:     "1024",
				},
			})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/v1/settlements/stats", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bullship.SettlementStats{Total: 1, Succeeded: 1})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := bullship.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	job, err := client.SubmitSettlement(ctx, bullship.SettlementSubmission{
		Chain:      "sepolia",
		StockToken: "0x00000000000000000000000000000000000000b2",
	})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted settlement %s (status=%s)\n", job.ID, job.Status)

	final, err := client.Settlement(ctx, job.ID)
	if err != nil {
		panic(err)
	}
	fmt.Printf("settled %d requests in tx %s\n", final.Result.RequestsSettled, final.Result.TxHash)

	stats, err := client.SettlementStats(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("pipeline stats: total=%d succeeded=%d\n", stats.Total, stats.Succeeded)
}
