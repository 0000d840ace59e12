package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriteEvent 发送单个 SSE 事件并立即冲刷。
func sseWriteEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, string(jsonData))
	flusher.Flush()
}
