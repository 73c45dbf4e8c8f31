package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net" //cloudwatch

	"github.com/aws/aws-sdk-go-v2/aws"                              //cloudwatch
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types" //cloudwatch
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	errorsEngine   int64
	errorsReader   int64
	warnsEngine    int64
	warnsReader    int64
	candleReads    int64
	candlesDone    int64
	decisionCalls  int64
	fallbackCalls  int64
	tradesOpened   int64
	tradesClosed   int64
	riskRejections int64
	pipelineFaults int64
	resultWrites   int64
	channels       sync.Map // map[string]*channelStat
)

// Suppliers log under "<venue>_supplier" components; everything else counts
// as the engine side.
func recordWarn(component string) {
	if strings.Contains(component, "supplier") {
		atomic.AddInt64(&warnsReader, 1)
	} else {
		atomic.AddInt64(&warnsEngine, 1)
	}
}

func recordError(component string) {
	if strings.Contains(component, "supplier") {
		atomic.AddInt64(&errorsReader, 1)
	} else {
		atomic.AddInt64(&errorsEngine, 1)
	}
}

// IncrementCandleRead records one candle fetch from a market data source
// together with the number of candles returned.
func IncrementCandleRead(count int) {
	atomic.AddInt64(&candleReads, 1)
	recordChannel("candle_rest", count)
}

// IncrementCandleProcessed records one candle that made it through the whole
// evaluation pipeline.
func IncrementCandleProcessed() {
	atomic.AddInt64(&candlesDone, 1)
}

func IncrementDecisionCall() {
	atomic.AddInt64(&decisionCalls, 1)
}

func IncrementFallbackDecision() {
	atomic.AddInt64(&fallbackCalls, 1)
}

func IncrementTradeOpened() {
	atomic.AddInt64(&tradesOpened, 1)
}

func IncrementTradeClosed() {
	atomic.AddInt64(&tradesClosed, 1)
}

func IncrementRiskRejection() {
	atomic.AddInt64(&riskRejections, 1)
}

func IncrementPipelineFault() {
	atomic.AddInt64(&pipelineFaults, 1)
}

func IncrementResultWrite(size int64) {
	atomic.AddInt64(&resultWrites, 1)
	recordChannel("result_write", int(size))
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of system and engine statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	diskStats, _ := disk.Usage("/")
	netStats, _ := gnet.IOCounters(false)
	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		name := k.(string)
		cs := v.(*channelStat)
		channelData[name] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}

	bytesSent := uint64(0)
	bytesRecv := uint64(0)
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	fields := Fields{
		"errors_engine":   atomic.LoadInt64(&errorsEngine),
		"errors_reader":   atomic.LoadInt64(&errorsReader),
		"warns_engine":    atomic.LoadInt64(&warnsEngine),
		"warns_reader":    atomic.LoadInt64(&warnsReader),
		"candle_reads":    atomic.LoadInt64(&candleReads),
		"candles_done":    atomic.LoadInt64(&candlesDone),
		"decision_calls":  atomic.LoadInt64(&decisionCalls),
		"fallbacks":       atomic.LoadInt64(&fallbackCalls),
		"trades_opened":   atomic.LoadInt64(&tradesOpened),
		"trades_closed":   atomic.LoadInt64(&tradesClosed),
		"risk_rejections": atomic.LoadInt64(&riskRejections),
		"pipeline_faults": atomic.LoadInt64(&pipelineFaults),
		"result_writes":   atomic.LoadInt64(&resultWrites),
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPct,
		"memory_mb":       int64(memStats.Used) / 1024 / 1024,
		"disk_mb":         int64(diskStats.Used) / 1024 / 1024,
		"channels":        channelData,
		"net_bytes_sent":  int64(bytesSent),
		"net_bytes_recv":  int64(bytesRecv),
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	var data []cwtypes.MetricDatum
	data = append(data,
		cwtypes.MetricDatum{MetricName: aws.String("SF-CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		cwtypes.MetricDatum{MetricName: aws.String("SF-MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("SF-DiskMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(diskStats.Used) / 1024 / 1024)},
		cwtypes.MetricDatum{MetricName: aws.String("SF-ErrorsEngine"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_engine"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-ErrorsReader"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["errors_reader"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-WarnsEngine"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_engine"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-WarnsReader"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["warns_reader"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-CandleReads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["candle_reads"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-CandlesDone"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["candles_done"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-DecisionCalls"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["decision_calls"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-FallbackDecisions"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["fallbacks"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-TradesOpened"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["trades_opened"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-TradesClosed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["trades_closed"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-RiskRejections"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["risk_rejections"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-PipelineFaults"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["pipeline_faults"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-ResultWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(fields["result_writes"].(int64)))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		cwtypes.MetricDatum{MetricName: aws.String("SF-NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	)

	for name, stats := range channelData {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: aws.String("SF-ChannelMessages"),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["messages"])),
			},
			cwtypes.MetricDatum{
				MetricName: aws.String("SF-ChannelBytes"),
				Unit:       cwtypes.StandardUnitBytes,
				Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
				Value:      aws.Float64(float64(stats["bytes"])),
			},
		)
	}

	publishMetrics(ctx, data)
}
