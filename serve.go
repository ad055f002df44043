package distmagic

import (
	"net"
	"net/http"
	"net/rpc"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Serve answers RPCs for rcvr under name on l. When gatherer is not nil its
// metrics are exposed at /metrics on the same listener.
func Serve(l net.Listener, name string, rcvr interface{}, gatherer prometheus.Gatherer) error {
	server := rpc.NewServer()
	if err := server.RegisterName(name, rcvr); err != nil {
		return err
	}
	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, server)
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return http.Serve(l, mux)
}
