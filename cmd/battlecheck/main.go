// battlecheck은 로컬 배틀 서버의 상태를 확인하는 점검 도구다.
// healthz와 매치메이킹 핸드셰이크를 찔러보고 결과를 출력한다.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/gnu-battle/pkg/battledto"
)

func main() {
	addr := os.Getenv("BATTLE_SERVER_ADDR")
	if addr == "" {
		addr = "localhost:8080"
	}
	login := os.Getenv("BATTLE_CHECK_LOGIN")
	if login == "" {
		login = "battlecheck"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", addr))
	if err != nil {
		log.Fatalf("healthz error: %v", err)
	}
	resp.Body.Close()
	log.Printf("healthz ok: %s", resp.Status)

	wsURL := fmt.Sprintf("ws://%s/ws/matchmake?github_login=%s&github_id=0", addr, login)
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		log.Fatalf("matchmake dial error: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "check done")

	var env battledto.Envelope
	if err := wsjson.Read(ctx, conn, &env); err != nil {
		log.Fatalf("matchmake read error: %v", err)
	}
	if env.Type != battledto.EvQueueJoined {
		log.Fatalf("expected %s, got %s (%s)", battledto.EvQueueJoined, env.Type, env.Payload)
	}
	var qj battledto.QueueJoinedPayload
	_ = json.Unmarshal(env.Payload, &qj)
	log.Printf("queue joined: %s", qj.Message)

	// 큐에 흔적을 남기지 않고 나간다
	cancelEnv := battledto.OutEnvelope{Type: battledto.ActCancelMatchmaking}
	if err := wsjson.Write(ctx, conn, cancelEnv); err != nil {
		log.Printf("cancel write error: %v", err)
	}

	fmt.Println("battlecheck ok")
}
