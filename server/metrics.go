package server

import "github.com/prometheus/client_golang/prometheus"

// queueCollector exposes the state and counters of every queue
type queueCollector struct {
	s *Server

	size           *prometheus.Desc
	capacity       *prometheus.Desc
	load           *prometheus.Desc
	batchSize      *prometheus.Desc
	dilution       *prometheus.Desc
	insertedItems  *prometheus.Desc
	rejectedCalls  *prometheus.Desc
	truncatedItems *prometheus.Desc
	clears         *prometheus.Desc
	clearedItems   *prometheus.Desc
	dilutedItems   *prometheus.Desc
	retrievedItems *prometheus.Desc
	retrieveCalls  *prometheus.Desc
}

var _ prometheus.Collector = &queueCollector{}

func newQueueCollector(s *Server) *queueCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc("mlqueue_"+name, help, []string{"queue"}, nil)
	}
	return &queueCollector{
		s:              s,
		size:           desc("size", "Number of frames in the queue."),
		capacity:       desc("capacity", "Maximum number of frames in the queue."),
		load:           desc("load_percent", "Fill level of the queue, as a percentage."),
		batchSize:      desc("batch_size", "Current batch size handed to consumers."),
		dilution:       desc("dilution", "Number of frames consumed per diluted retrieval. 1 means no dilution."),
		insertedItems:  desc("inserted_items_total", "Frames pushed onto the queue."),
		rejectedCalls:  desc("rejected_inserts_total", "Inserts rejected because the queue was full."),
		truncatedItems: desc("truncated_items_total", "Frames dropped because they did not fit into the free space."),
		clears:         desc("clears_total", "Number of times the queue filled up and was wiped."),
		clearedItems:   desc("cleared_items_total", "Frames discarded by wiping a full queue."),
		dilutedItems:   desc("diluted_items_total", "Frames discarded by dilution."),
		retrievedItems: desc("retrieved_items_total", "Frames handed to consumers."),
		retrieveCalls:  desc("retrieve_calls_total", "Retrievals that returned at least one batch."),
	}
}

func (c *queueCollector) Describe(descs chan<- *prometheus.Desc) {
	descs <- c.size
	descs <- c.capacity
	descs <- c.load
	descs <- c.batchSize
	descs <- c.dilution
	descs <- c.insertedItems
	descs <- c.rejectedCalls
	descs <- c.truncatedItems
	descs <- c.clears
	descs <- c.clearedItems
	descs <- c.dilutedItems
	descs <- c.retrievedItems
	descs <- c.retrieveCalls
}

func (c *queueCollector) Collect(metrics chan<- prometheus.Metric) {
	gauge := func(desc *prometheus.Desc, v int, queue string) {
		metrics <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v), queue)
	}
	counter := func(desc *prometheus.Desc, v int64, queue string) {
		metrics <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), queue)
	}
	for _, name := range c.s.queueNames {
		q := c.s.queues[name]
		state := q.State()
		stats := q.Stats()
		gauge(c.size, state.Size, name)
		gauge(c.capacity, state.Capacity, name)
		gauge(c.load, state.Load, name)
		gauge(c.batchSize, state.BatchSize, name)
		gauge(c.dilution, state.Dilution, name)
		counter(c.insertedItems, stats.InsertedItems, name)
		counter(c.rejectedCalls, stats.RejectedCalls, name)
		counter(c.truncatedItems, stats.TruncatedItems, name)
		counter(c.clears, stats.Clears, name)
		counter(c.clearedItems, stats.ClearedItems, name)
		counter(c.dilutedItems, stats.DilutedItems, name)
		counter(c.retrievedItems, stats.RetrievedItems, name)
		counter(c.retrieveCalls, stats.RetrieveCalls, name)
	}
}
