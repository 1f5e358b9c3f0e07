package server

import (
	"fmt"
	"net/http"

	"github.com/cyclopcam/www"
	"github.com/julienschmidt/httprouter"
)

type aggregatorCheckJSON struct {
	Ready bool             `json:"ready"` // True if the window is consistent
	Items []AggregatorItem `json:"items"` // The window, if Ready
}

func (s *Server) getAggregator(params httprouter.Params) *ResultAggregator {
	name := params.ByName("name")
	a := s.aggregators[name]
	if a == nil {
		www.Panic(http.StatusNotFound, fmt.Sprintf("Aggregator '%v' not found", name))
	}
	return a
}

func (s *Server) httpAggregatorAppend(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	a := s.getAggregator(params)
	item := AggregatorItem{}
	www.ReadJSON(w, r, &item, 1024*1024)
	a.lock.Lock()
	a.agg.Append(item)
	a.lock.Unlock()
	www.SendOK(w)
}

func (s *Server) httpAggregatorCheck(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	a := s.getAggregator(params)
	limit := www.QueryInt(r, "limit")
	a.lock.Lock()
	items, ready := a.agg.Check(limit)
	a.lock.Unlock()
	if items == nil {
		items = []AggregatorItem{}
	}
	www.SendJSON(w, &aggregatorCheckJSON{
		Ready: ready,
		Items: items,
	})
}

func (s *Server) httpAggregatorReset(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	a := s.getAggregator(params)
	a.lock.Lock()
	a.agg.Reset()
	a.lock.Unlock()
	www.SendOK(w)
}
