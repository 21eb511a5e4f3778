// Command signalserver is the rendezvous relay: it forwards signaling
// messages between clients in the same room and never touches media.
package main

import (
	"flag"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/kestrelvoice/voicecore/internal/relay"
	"github.com/kestrelvoice/voicecore/pkg/applog"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger := applog.NewConsole(*debug)

	hub := relay.NewHub(logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	logger.Info("signaling relay listening", zap.String("addr", *addr))
	if err := http.ListenAndServe(*addr, mux); err != nil {
		logger.Error("relay server exited", err)
		os.Exit(1)
	}
}
