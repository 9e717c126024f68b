// Command loadgen drives a convert-server with synthetic trees and reports
// throughput and latency.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/VanDung-dev/root2avro/arrow"
	"github.com/VanDung-dev/root2avro/bridge"
	"github.com/VanDung-dev/root2avro/root2avro-engine/api"
	"github.com/VanDung-dev/root2avro/root2avro-engine/network"
	"github.com/VanDung-dev/root2avro/root2avro-engine/tree"
)

// LoadConfig holds configuration for the load test.
type LoadConfig struct {
	Transport   string
	Address     string
	Concurrency int
	Duration    time.Duration
	Entries     int
	AuthToken   string
	Mode        string
	Codec       string
	ReportFile  string
}

// LoadResult holds the results of a load test.
type LoadResult struct {
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
	EntriesPerSec  float64
	BytesIn        int64
	BytesOut       int64
}

// converter is one worker's connection.
type converter interface {
	Convert(payload []byte) ([]byte, error)
	Close() error
}

func main() {
	config := parseFlags()

	payload, err := syntheticTree(config.Entries)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to build payload")
	}

	fmt.Println("=== root2avro Load Test ===")
	fmt.Printf("Target:      %s://%s\n", config.Transport, config.Address)
	fmt.Printf("Concurrency: %d workers\n", config.Concurrency)
	fmt.Printf("Duration:    %v\n", config.Duration)
	fmt.Printf("Payload:     %s entries, %s\n", humanize.Comma(int64(config.Entries)), humanize.Bytes(uint64(len(payload))))
	fmt.Println()

	result := runLoad(config, payload)
	printResults(result)

	if config.ReportFile != "" {
		saveReport(config, result)
	}
}

func parseFlags() LoadConfig {
	config := LoadConfig{}

	kingpin.Flag("transport", "Transport: tcp, grpc or zmq.").Default("tcp").EnumVar(&config.Transport, "tcp", "grpc", "zmq")
	kingpin.Flag("addr", "Server address (host:port).").Default("127.0.0.1:50051").StringVar(&config.Address)
	kingpin.Flag("concurrency", "Number of concurrent workers.").Short('c').Default("10").IntVar(&config.Concurrency)
	kingpin.Flag("duration", "Duration of test.").Short('d').Default("30s").DurationVar(&config.Duration)
	kingpin.Flag("entries", "Entries per request.").Short('n').Default("1000").IntVar(&config.Entries)
	kingpin.Flag("token", "Authentication token.").StringVar(&config.AuthToken)
	kingpin.Flag("mode", "Output mode requested.").Default("avro").StringVar(&config.Mode)
	kingpin.Flag("codec", "Avro codec requested.").Default("null").StringVar(&config.Codec)
	kingpin.Flag("report", "Output report file (JSON).").Short('o').StringVar(&config.ReportFile)
	kingpin.Parse()

	return config
}

// syntheticTree builds a tree with a scalar, a counted array and a vector.
func syntheticTree(entries int) ([]byte, error) {
	tr := tree.NewMemTree("events")
	if err := tr.Branch("nhit", "nhit/I"); err != nil {
		return nil, err
	}
	if err := tr.Branch("energy", "energy[nhit]/F"); err != nil {
		return nil, err
	}
	if err := tr.BranchObject("tags", "vector<unsigned char>"); err != nil {
		return nil, err
	}

	energy := make([]float32, 16)
	for i := 0; i < entries; i++ {
		n := int32(i % len(energy))
		for j := range energy {
			energy[j] = float32(i) * 0.5
		}
		tags := []uint8{uint8(i), uint8(i >> 8)}
		if err := tr.Fill(map[string]any{"nhit": n, "energy": energy, "tags": tags}); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := arrow.WriteSource(&buf, tr.Reader(), 0); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func dial(config LoadConfig, workerID int) (converter, error) {
	opts := bridge.Options{Mode: config.Mode, Codec: config.Codec}

	switch config.Transport {
	case "zmq":
		c, err := network.DialZmq(fmt.Sprintf("loadgen-%d", workerID), "tcp://"+config.Address, config.AuthToken)
		if err != nil {
			return nil, err
		}
		return &zmqConverter{client: c, opts: &opts}, nil
	case "grpc":
		c, err := api.DialGRPC(config.Address)
		if err != nil {
			return nil, err
		}
		return &grpcConverter{client: c, token: config.AuthToken, opts: &opts}, nil
	default:
		c, err := api.Dial(config.Address, 5*time.Second)
		if err != nil {
			return nil, err
		}
		if config.AuthToken != "" {
			if err := c.Authenticate(config.AuthToken); err != nil {
				c.Close()
				return nil, err
			}
		}
		if err := c.SetOptions(opts); err != nil {
			c.Close()
			return nil, err
		}
		return c, nil
	}
}

type zmqConverter struct {
	client *network.ZmqClient
	opts   *bridge.Options
}

func (z *zmqConverter) Convert(payload []byte) ([]byte, error) { return z.client.Convert(z.opts, payload) }
func (z *zmqConverter) Close() error                           { return z.client.Close() }

type grpcConverter struct {
	client *api.GRPCClient
	token  string
	opts   *bridge.Options
}

func (g *grpcConverter) Convert(payload []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	resp, err := g.client.Convert(ctx, &api.ConvertRequest{Token: g.token, Options: g.opts, Arrow: payload})
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (g *grpcConverter) Close() error { return g.client.Close() }

type counters struct {
	totalReqs    int64
	successReqs  int64
	failedReqs   int64
	totalLatency int64
	minLatency   int64
	maxLatency   int64
	bytesIn      int64
	bytesOut     int64
}

func runLoad(config LoadConfig, payload []byte) LoadResult {
	c := &counters{minLatency: 1<<63 - 1}
	var wg sync.WaitGroup
	stopChan := make(chan struct{})

	startTime := time.Now()

	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runWorker(workerID, config, payload, stopChan, c)
		}(i)
	}

	time.Sleep(config.Duration)
	close(stopChan)
	wg.Wait()

	duration := time.Since(startTime)
	total := atomic.LoadInt64(&c.totalReqs)
	success := atomic.LoadInt64(&c.successReqs)

	var avgLatency time.Duration
	minLatency := atomic.LoadInt64(&c.minLatency)
	if success > 0 {
		avgLatency = time.Duration(atomic.LoadInt64(&c.totalLatency) / success)
	} else {
		minLatency = 0
	}

	return LoadResult{
		TotalRequests:  total,
		SuccessfulReqs: success,
		FailedReqs:     atomic.LoadInt64(&c.failedReqs),
		TotalDuration:  duration,
		AvgLatency:     avgLatency,
		MinLatency:     time.Duration(minLatency),
		MaxLatency:     time.Duration(atomic.LoadInt64(&c.maxLatency)),
		RequestsPerSec: float64(total) / duration.Seconds(),
		EntriesPerSec:  float64(success) * float64(config.Entries) / duration.Seconds(),
		BytesIn:        atomic.LoadInt64(&c.bytesIn),
		BytesOut:       atomic.LoadInt64(&c.bytesOut),
	}
}

func runWorker(id int, config LoadConfig, payload []byte, stop chan struct{}, c *counters) {
	log := logrus.WithField("worker", id)

	conn, err := dial(config, id)
	if err != nil {
		log.WithError(err).Error("Failed to connect")
		return
	}
	defer conn.Close()

	for {
		select {
		case <-stop:
			return
		default:
		}

		start := time.Now()
		out, err := conn.Convert(payload)
		latency := int64(time.Since(start))
		atomic.AddInt64(&c.totalReqs, 1)

		if err != nil {
			atomic.AddInt64(&c.failedReqs, 1)
			log.WithError(err).Debug("Request failed")
			// Small sleep on error to avoid hammering
			time.Sleep(10 * time.Millisecond)
			continue
		}

		atomic.AddInt64(&c.successReqs, 1)
		atomic.AddInt64(&c.totalLatency, latency)
		atomic.AddInt64(&c.bytesIn, int64(len(payload)))
		atomic.AddInt64(&c.bytesOut, int64(len(out)))

		for {
			old := atomic.LoadInt64(&c.minLatency)
			if latency >= old || atomic.CompareAndSwapInt64(&c.minLatency, old, latency) {
				break
			}
		}
		for {
			old := atomic.LoadInt64(&c.maxLatency)
			if latency <= old || atomic.CompareAndSwapInt64(&c.maxLatency, old, latency) {
				break
			}
		}
	}
}

func printResults(result LoadResult) {
	fmt.Println("=== Results ===")
	fmt.Printf("Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Total Requests:  %s\n", humanize.Comma(result.TotalRequests))
	if result.TotalRequests > 0 {
		fmt.Printf("Successful:      %s (%.2f%%)\n", humanize.Comma(result.SuccessfulReqs), float64(result.SuccessfulReqs)/float64(result.TotalRequests)*100)
		fmt.Printf("Failed:          %s (%.2f%%)\n", humanize.Comma(result.FailedReqs), float64(result.FailedReqs)/float64(result.TotalRequests)*100)
	}
	fmt.Printf("Requests/sec:    %.2f\n", result.RequestsPerSec)
	fmt.Printf("Entries/sec:     %s\n", humanize.Commaf(float64(int64(result.EntriesPerSec))))
	fmt.Printf("Sent:            %s\n", humanize.Bytes(uint64(result.BytesIn)))
	fmt.Printf("Received:        %s\n", humanize.Bytes(uint64(result.BytesOut)))
	fmt.Printf("Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

func saveReport(config LoadConfig, result LoadResult) {
	report := map[string]any{
		"config": map[string]any{
			"transport":   config.Transport,
			"address":     config.Address,
			"concurrency": config.Concurrency,
			"duration":    config.Duration.String(),
			"entries":     config.Entries,
			"mode":        config.Mode,
			"codec":       config.Codec,
		},
		"results": map[string]any{
			"total_requests":   result.TotalRequests,
			"successful":       result.SuccessfulReqs,
			"failed":           result.FailedReqs,
			"requests_per_sec": result.RequestsPerSec,
			"entries_per_sec":  result.EntriesPerSec,
			"bytes_sent":       result.BytesIn,
			"bytes_received":   result.BytesOut,
			"avg_latency_ms":   float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":   float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":   float64(result.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	data, _ := json.MarshalIndent(report, "", "  ")
	if err := os.WriteFile(config.ReportFile, data, 0o644); err != nil {
		logrus.WithError(err).Error("Failed to write report")
	} else {
		fmt.Printf("Report saved to: %s\n", config.ReportFile)
	}
}
