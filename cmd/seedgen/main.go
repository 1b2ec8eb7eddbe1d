package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ruuvigate/config"
	"ruuvigate/models"
	"ruuvigate/services"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

var (
	dataDir    = flag.String("data", "./data", "Gateway data directory to write documents into")
	tags       = flag.String("tags", "", "Comma separated tag MACs (default: compiled-in registry)")
	cycles     = flag.Int("cycles", 144, "Number of collection cycles to simulate")
	period     = flag.Duration("period", 10*time.Minute, "Simulated time between cycles")
	missRate   = flag.Float64("miss", 0.05, "Probability a tag misses a cycle (0.0-1.0)")
	batteryMV  = flag.Int("battery", 3900, "Gateway battery voltage in mV")
	mqttBroker = flag.String("broker", "", "Optional MQTT broker (host:port) to mirror readings to")
	mqttTopic  = flag.String("topic", "ruuvigate/readings", "MQTT topic for mirrored readings")
)

type MockDataGenerator struct {
	missRate     float64
	baseTemp     map[models.DeviceID]float64
	baseHumidity map[models.DeviceID]float64
}

func NewMockDataGenerator(registry []models.DeviceID, missRate float64) *MockDataGenerator {
	m := &MockDataGenerator{
		missRate:     missRate,
		baseTemp:     make(map[models.DeviceID]float64),
		baseHumidity: make(map[models.DeviceID]float64),
	}
	for _, id := range registry {
		m.baseTemp[id] = 2.0 + rand.Float64()*20.0 // cold room to living room
		m.baseHumidity[id] = 35.0 + rand.Float64()*30.0
	}
	return m
}

// GenerateCycle produces the readings one scan cycle would deliver at ts
func (m *MockDataGenerator) GenerateCycle(ts time.Time) []models.Measurement {
	var out []models.Measurement
	// Daily swing peaking mid afternoon
	swing := math.Sin(float64(ts.Hour()-9) / 24.0 * 2 * math.Pi)

	for id, base := range m.baseTemp {
		if rand.Float64() < m.missRate {
			continue
		}
		temperature := base + swing*3.0 + (rand.Float64()-0.5)*0.4
		humidity := m.baseHumidity[id] - swing*5.0 + (rand.Float64()-0.5)*2.0

		out = append(out, models.Measurement{
			DeviceID: id,
			Reading: models.Reading{
				Temperature: math.Round(temperature*200) / 200, // RAWv2 resolution
				Humidity:    math.Round(humidity*400) / 400,
				Timestamp:   ts,
			},
			RSSI: int16(-60 - rand.Intn(35)),
		})
	}
	return out
}

type readingEvent struct {
	Tag         string    `json:"tag_id"`
	Temperature float64   `json:"temperature"`
	Humidity    float64   `json:"humidity"`
	RSSI        int16     `json:"rssi"`
	Timestamp   time.Time `json:"timestamp"`
}

func main() {
	flag.Parse()

	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	registry, err := config.ParseRegistry(*tags)
	if err != nil {
		logger.Fatal("Invalid tag list", zap.Error(err))
	}

	acc, err := services.NewAccumulator(*dataDir+"/documents", time.Local, nil, logger)
	if err != nil {
		logger.Fatal("Failed to open document directory", zap.Error(err))
	}

	var client mqtt.Client
	if *mqttBroker != "" {
		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", *mqttBroker))
		opts.SetClientID(fmt.Sprintf("ruuvigate-seedgen-%d", os.Getpid()))
		opts.SetKeepAlive(60 * time.Second)
		opts.SetPingTimeout(10 * time.Second)

		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
		}
		defer client.Disconnect(250)
	}

	logger.Info("Seed generator started",
		zap.String("data_dir", *dataDir),
		zap.Int("tags", len(registry)),
		zap.Int("cycles", *cycles),
		zap.Duration("period", *period),
		zap.Float64("miss_rate", *missRate))

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping generator")
		cancel()
	}()

	gen := NewMockDataGenerator(registry, *missRate)
	battery := services.BatterySnapshotFor(*batteryMV)
	start := time.Now().Add(-time.Duration(*cycles) * *period)

	recorded, missed := 0, 0
	for i := 0; i < *cycles; i++ {
		if ctx.Err() != nil {
			break
		}
		ts := start.Add(time.Duration(i) * *period)
		batch := gen.GenerateCycle(ts)
		missed += len(registry) - len(batch)

		for _, m := range batch {
			if err := acc.Record(m, battery); err != nil {
				logger.Error("Failed to record reading", zap.String("tag", m.DeviceID.String()), zap.Error(err))
				continue
			}
			recorded++

			if client != nil {
				payload, err := json.Marshal(readingEvent{
					Tag:         m.DeviceID.String(),
					Temperature: m.Reading.Temperature,
					Humidity:    m.Reading.Humidity,
					RSSI:        m.RSSI,
					Timestamp:   m.Reading.Timestamp,
				})
				if err != nil {
					logger.Error("Failed to marshal reading", zap.Error(err))
					continue
				}
				token := client.Publish(*mqttTopic, 0, false, payload)
				if token.Wait() && token.Error() != nil {
					logger.Error("Failed to publish MQTT message", zap.Error(token.Error()))
				}
			}
		}

		if (i+1)%24 == 0 {
			logger.Info("Cycles generated", zap.Int("cycles", i+1), zap.Int("readings", recorded))
		}
	}

	names, _ := acc.List()
	logger.Info("Seed complete",
		zap.Int("readings", recorded),
		zap.Int("missed", missed),
		zap.Int("documents", len(names)))
}
