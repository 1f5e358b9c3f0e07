package server

import (
	"net/http"
	"time"

	"github.com/cyclopcam/www"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupHttpRoutes() error {
	logEveryRequest := false
	router := httprouter.New()

	s.wsUpgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}

	handle := func(method, route string, handle httprouter.Handle) {
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			if logEveryRequest {
				s.Log.Infof("HTTP %v %v", method, r.URL.Path)
			}
			handle(w, r, params)
		})
	}

	// ratelimited creates an HTTP handler that is limited per IP.
	// Each route gets its own limiter.
	ratelimited := func(method, route string, handle httprouter.Handle, requestLimit int, windowLength time.Duration) {
		if requestLimit <= 0 {
			www.Handle(s.Log, router, method, route, handle)
			return
		}
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(s.Log, router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handle(w, r, params)
			})).ServeHTTP(w, r)
		})
	}

	handle("GET", "/api/ping", s.httpPing)
	handle("GET", "/api/queues", s.httpQueueList)
	handle("GET", "/api/queue/:id", s.httpQueueStatus)
	ratelimited("POST", "/api/queue/:id/insert", s.httpQueueInsert, s.config.InsertRateLimit, time.Second)
	handle("GET", "/api/queue/:id/retrieve", s.httpQueueRetrieve)
	handle("GET", "/api/queue/:id/ws", s.httpQueueWebSocket)
	handle("POST", "/api/aggregator/:name/append", s.httpAggregatorAppend)
	handle("GET", "/api/aggregator/:name/check", s.httpAggregatorCheck)
	handle("POST", "/api/aggregator/:name/reset", s.httpAggregatorReset)
	router.Handler("GET", "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	s.httpRouter = router
	return nil
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendText(w, "pong")
}
