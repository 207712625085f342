// Command irischeck probes the services the squares bot depends on: the Iris
// HTTP and WebSocket endpoints, Redis, and optionally one score feed event.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/Squares-KakaoTalk-bot/internal/irisfast"
	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
	"github.com/park285/Squares-KakaoTalk-bot/internal/scorefeed"
)

func main() {
	baseURL := os.Getenv("IRIS_BASE_URL")
	wsURL := os.Getenv("IRIS_WS_URL")
	redisURL := os.Getenv("REDIS_URL")
	// "football/nfl:401671" 형식
	event := os.Getenv("CHECK_EVENT")

	if baseURL == "" {
		log.Fatal("IRIS_BASE_URL is required")
	}

	headers := func() map[string]string {
		m := map[string]string{}
		if v := os.Getenv("X_USER_ID"); v != "" {
			m["X-User-Id"] = v
		}
		if v := os.Getenv("X_USER_EMAIL"); v != "" {
			m["X-User-Email"] = v
		}
		if v := os.Getenv("X_SESSION_ID"); v != "" {
			m["X-Session-Id"] = v
		}
		return m
	}

	client := irisfast.NewClient(baseURL,
		irisfast.WithHeaderProvider(headers),
		irisfast.WithTimeout(8*time.Second),
	)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	cfg, err := client.GetConfig(ctx)
	cancel()
	if err != nil {
		log.Printf("/config error: %v", err)
	} else {
		log.Printf("/config ok: port=%d polling=%d rate=%d endpoint=%s", cfg.Port, cfg.PollingSpeed, cfg.MessageRate, cfg.WebserverEndpoint)
	}

	if redisURL != "" {
		rctx, rcancel := context.WithTimeout(context.Background(), 5*time.Second)
		rdb, err := pool.DialRedis(rctx, redisURL)
		rcancel()
		if err != nil {
			log.Printf("redis error: %v", err)
		} else {
			log.Printf("redis ok")
			_ = rdb.Close()
		}
	}

	if sport, id, ok := strings.Cut(event, ":"); ok {
		ectx, ecancel := context.WithTimeout(context.Background(), 20*time.Second)
		sum, err := scorefeed.NewClient(os.Getenv("ESPN_BASE_URL")).FetchSummary(ectx, sport, id)
		ecancel()
		if err != nil {
			log.Printf("score feed error: %v", err)
		} else {
			log.Printf("score feed ok: %s @ %s state=%s period=%d", sum.AwayTeam, sum.HomeTeam, sum.State, sum.Period)
			for _, q := range sum.Scores {
				if q.Reported() {
					fmt.Printf("  P%d home=%d away=%d\n", q.Period, *q.Home, *q.Away)
				}
			}
		}
	}

	if wsURL == "" {
		log.Println("IRIS_WS_URL not set; skipping WS check")
		return
	}

	ws := irisfast.NewWebSocket(wsURL, 5)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state irisfast.WebSocketState) {
		log.Printf("WS state: %s", state)
	})
	ws.OnMessage(func(msg *irisfast.Message) {
		fmt.Printf("WS msg room=%s from=%s user=%s text=%q\n", msg.Room, msg.SenderName(), msg.UserID(), msg.Msg)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	// 짧게 수신만 확인
	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = ws.Close(context.Background())
}
