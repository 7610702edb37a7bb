package core

import (
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"GpsLogger/internal/channel"
	"GpsLogger/internal/command"
	"GpsLogger/internal/device"
	"GpsLogger/internal/framer"
	"GpsLogger/internal/model"
	"GpsLogger/internal/parser"
	"GpsLogger/internal/queue"
	"GpsLogger/internal/stats"
	"GpsLogger/internal/storage"
	"GpsLogger/internal/transfer"
	"GpsLogger/internal/util"
)

// Logger is the main loop. It alone performs storage I/O, drives the
// transfer engine and writes the log file; channel callbacks reach it only
// through the deferred queue and the atomic logging flag.
type Logger struct {
	Store    *storage.Dir
	Channel  channel.Channel
	Queue    *queue.Queue
	Engine   *transfer.Engine
	Framer   *framer.Framer
	Dispatch *command.Dispatcher
	Stats    *stats.Store // optional

	gps  device.GpsSource
	imu  device.ImuSource
	batt device.BatterySource

	interval       time.Duration
	resetInterval  time.Duration
	reportInterval time.Duration

	logging atomic.Bool
	fixType atomic.Uint32
	cardOK  atomic.Bool // refreshed by the main loop only

	// main loop state
	fixes      chan model.GpsData
	logFile    *storage.LogWriter
	perf       *stats.Perf
	lastReport time.Time
	lastFix    model.GpsData
	skipSeen   uint64 // source skip count already folded into perf

	stop    chan struct{}
	wg      sync.WaitGroup
	stopGps func()
}

// Sources groups the sensors sampled for each packet.
type Sources struct {
	Gps     device.GpsSource
	Imu     device.ImuSource
	Battery device.BatterySource
}

// NewLogger wires the protocol components around ch and store.
func NewLogger(cfg *model.Config, store *storage.Dir, ch channel.Channel, src Sources) *Logger {
	l := &Logger{
		Store:          store,
		Channel:        ch,
		Queue:          queue.New(),
		gps:            src.Gps,
		imu:            src.Imu,
		batt:           src.Battery,
		interval:       cfg.LoopInterval(),
		resetInterval:  time.Duration(cfg.Stats.ResetIntervalS) * time.Second,
		reportInterval: time.Duration(cfg.Stats.ReportIntervalS) * time.Second,
		fixes:          make(chan model.GpsData, 4),
		stop:           make(chan struct{}),
	}
	l.cardOK.Store(store.Available())
	if l.imu == nil {
		l.imu = device.StaticImu{}
	}
	if l.batt == nil {
		l.batt = device.StaticBattery{}
	}
	l.Engine = transfer.NewEngine(store, l, transfer.Config{
		ChunkSize:   cfg.Transfer.ChunkSize,
		MinInterval: time.Duration(cfg.Transfer.MinChunkIntervalMs) * time.Millisecond,
	})
	l.Framer = framer.New(l, l.Engine, cfg.Framer.MaxFragment,
		time.Duration(cfg.Framer.FragmentDelayMs)*time.Millisecond)
	l.Dispatch = command.NewDispatcher(l.Queue, l.Engine, l,
		cfg.Logging.RequireFix, uint8(cfg.Logging.MinFixType))
	return l
}

// Ready and Notify let the framer write through whichever channel is current.
func (l *Logger) Ready() bool           { return l.Channel != nil && l.Channel.Ready() }
func (l *Logger) Notify(b []byte) error { return l.Channel.Notify(b) }

// Send frames one response; it is the engine's responder.
func (l *Logger) Send(msg string) { l.Framer.Send(msg) }

// StorageAvailable implements command.LogControl. It reports the card state
// seen by the last main loop step and never touches the filesystem.
func (l *Logger) StorageAvailable() bool { return l.cardOK.Load() }

// FixType implements command.LogControl.
func (l *Logger) FixType() uint8 { return uint8(l.fixType.Load()) }

// SetLogging implements command.LogControl. The file itself is opened and
// closed by the main loop.
func (l *Logger) SetLogging(on bool) {
	if l.logging.Swap(on) != on {
		util.Info("[logger] logging %s requested", map[bool]string{true: "start", false: "stop"}[on])
	}
}

// Logging reports whether logging is requested.
func (l *Logger) Logging() bool { return l.logging.Load() }

// Start launches the GPS reader and the main loop.
func (l *Logger) Start() error {
	if l.gps != nil {
		stop, err := l.gps.Read(l.fixes)
		if err != nil {
			return fmt.Errorf("start gps: %w", err)
		}
		l.stopGps = stop
	}
	now := time.Now()
	l.perf = stats.NewPerf(now)
	l.lastReport = now

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()
		for {
			select {
			case <-l.stop:
				l.shutdown(time.Now())
				return
			case now := <-ticker.C:
				l.Step(now)
			}
		}
	}()
	return nil
}

// Stop ends the loop, closing any transfer and log file.
func (l *Logger) Stop() {
	select {
	case <-l.stop:
		return
	default:
		close(l.stop)
	}
	if l.stopGps != nil {
		l.stopGps()
	}
	l.wg.Wait()
}

// Step runs one iteration: one deferred command, one transfer tick and at
// most one telemetry packet.
func (l *Logger) Step(now time.Time) {
	if l.perf == nil {
		l.perf = stats.NewPerf(now)
		l.lastReport = now
	}
	l.cardOK.Store(l.Store.Available())
	if r, ok := l.Queue.DrainOne(); ok {
		l.handle(r, now)
	}
	l.Engine.Tick(now)

	l.syncLogFile(now)
	select {
	case fix, ok := <-l.fixes:
		if !ok {
			l.fixes = nil
			break
		}
		l.emit(fix, now)
	default:
	}

	if l.gps != nil {
		if n := l.gps.Skipped(); n > l.skipSeen {
			l.perf.Skip(n - l.skipSeen)
			l.skipSeen = n
		}
	}

	if l.resetInterval > 0 && l.perf.Since(now) >= l.resetInterval {
		l.rollStats(now)
	}
	if l.reportInterval > 0 && now.Sub(l.lastReport) >= l.reportInterval {
		l.report(now)
	}
}

func (l *Logger) handle(r queue.Request, now time.Time) {
	util.Debug("[logger] handling %s %q", r.Kind, r.Arg)
	switch r.Kind {
	case queue.List:
		l.listFiles()
	case queue.Start:
		l.Engine.Start(r.Arg, now)
	case queue.Delete:
		l.deleteFile(r.Arg)
	case queue.Cancel:
		l.Engine.Cancel()
	case queue.Status:
		l.Send("STATUS:" + l.Engine.Status())
	}
}

func (l *Logger) listFiles() {
	if !l.Store.Available() {
		l.Send("ERROR:NO_SD_CARD")
		return
	}
	files, err := l.Store.List()
	if err != nil {
		log.Printf("[logger] list: %v", err)
		if errors.Is(err, storage.ErrUnavailable) {
			l.Send("ERROR:NO_SD_CARD")
		} else {
			l.Send("ERROR:CANT_OPEN_ROOT")
		}
		return
	}
	var b strings.Builder
	b.WriteString("FILES:")
	for _, f := range files {
		b.WriteString(f.Name)
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(f.Size, 10))
		b.WriteByte(';')
	}
	b.WriteString("COUNT:")
	b.WriteString(strconv.Itoa(len(files)))
	l.Send(b.String())
}

func (l *Logger) deleteFile(name string) {
	if !l.Store.Available() {
		l.Send("ERROR:NO_SD_CARD")
		return
	}
	if !l.Store.Exists(name) {
		l.Send("ERROR:FILE_NOT_FOUND:" + name)
		return
	}
	if l.logFile != nil && l.logFile.Name() == name {
		log.Printf("[logger] refusing to delete %s while logging to it", name)
		l.Send("ERROR:DELETE_FAILED:" + name)
		return
	}
	if l.Engine.ActiveName() == name {
		l.Engine.Cancel()
	}
	if err := l.Store.Remove(name); err != nil {
		log.Printf("[logger] delete %s: %v", name, err)
		l.Send("ERROR:DELETE_FAILED:" + name)
		return
	}
	util.Info("[logger] deleted %s", name)
	l.Send("DELETED:" + name)
}

// syncLogFile opens or closes the log file to match the requested state.
func (l *Logger) syncLogFile(now time.Time) {
	want := l.logging.Load()
	switch {
	case want && l.logFile == nil:
		ts := l.lastFix.Time
		if ts.IsZero() {
			ts = now
		}
		lw, err := storage.CreateLog(l.Store, ts)
		if err != nil {
			util.Error("[logger] %v", err)
			l.logging.Store(false)
			return
		}
		l.logFile = lw
		util.Info("[logger] logging to %s", lw.Name())
	case !want && l.logFile != nil:
		l.closeLog()
	}
}

func (l *Logger) closeLog() {
	lw := l.logFile
	l.logFile = nil
	if err := lw.Close(); err != nil {
		log.Printf("[logger] warning: close %s: %v", lw.Name(), err)
	}
	util.Info("[logger] closed %s (%d records, %d dropped)", lw.Name(), lw.Records(), lw.Dropped())
}

// emit builds, broadcasts and persists one telemetry packet.
func (l *Logger) emit(fix model.GpsData, now time.Time) {
	l.lastFix = fix
	l.fixType.Store(uint32(fix.FixType))

	p := parser.NewPacket(model.Sample{Gps: fix, Imu: l.imu.ReadImu(), Battery: l.batt.ReadBattery()})
	b := parser.EncodePacket(&p)

	if err := l.Channel.Publish(b); err != nil {
		util.Debug("[logger] publish telemetry: %v", err)
	}
	if l.logFile != nil && !l.logFile.Append(b) {
		l.perf.Drop()
	}
	l.perf.Observe(now)
}

func (l *Logger) rollStats(now time.Time) {
	snap := l.perf.Snapshot(now)
	if l.Stats != nil {
		if err := l.Stats.Save(snap); err != nil {
			util.Error("[logger] %v", err)
		}
	}
	l.perf.Reset(now)
}

func (l *Logger) report(now time.Time) {
	l.lastReport = now
	s := l.perf.Snapshot(now)
	p := l.Engine.Progress()
	util.Debug("[logger] packets=%d dropped=%d skipped=%d delta min/avg/max=%d/%.1f/%dms logging=%v pending=%v transfer=%s %d/%d eta=%dms",
		s.Packets, s.Dropped, s.Skipped, s.MinDeltaMs, s.AvgDeltaMs, s.MaxDeltaMs,
		l.logFile != nil, l.Queue.Pending(), p.State, p.Sent, p.Total, p.EtaMillis)
}

func (l *Logger) shutdown(now time.Time) {
	l.Engine.Close()
	if l.logFile != nil {
		l.closeLog()
	}
	if l.Stats != nil && l.perf != nil && l.perf.Packets() > 0 {
		l.rollStats(now)
	}
}
