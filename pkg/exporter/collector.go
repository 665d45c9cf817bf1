package exporter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eg4monitor/eg4monitor/pkg/eg4"
	"github.com/eg4monitor/eg4monitor/pkg/log"
	"github.com/eg4monitor/eg4monitor/pkg/types"
)

// DefaultScrapeTimeout bounds a single scrape including a possible re-login.
const DefaultScrapeTimeout = 20 * time.Second

// Source is the part of *eg4.Client the collector reads from.
type Source interface {
	Login(ctx context.Context) error
	Selection() types.InverterSelection
	GetInverterRuntime(ctx context.Context) (types.RuntimeData, error)
	GetInverterEnergy(ctx context.Context) (types.EnergyData, error)
	GetInverterBattery(ctx context.Context) (types.BatteryData, error)
}

type snapshot struct {
	runtime types.RuntimeData
	energy  types.EnergyData
	battery types.BatteryData
}

// Collector implements prometheus.Collector for one EG4 inverter. Every
// scrape reads the portal; scrapes are serialized so they share one session.
type Collector struct {
	source  Source
	timeout time.Duration

	mu sync.Mutex

	up             *prometheus.Desc
	pvPower        *prometheus.Desc
	soc            *prometheus.Desc
	gridExport     *prometheus.Desc
	gridImport     *prometheus.Desc
	consumption    *prometheus.Desc
	chargePower    *prometheus.Desc
	dischargePower *prometheus.Desc
	energyToday    *prometheus.Desc
	energyTotal    *prometheus.Desc
	remainCapacity *prometheus.Desc
	fullCapacity   *prometheus.Desc
	unitSOC        *prometheus.Desc
	unitVoltage    *prometheus.Desc
	readSuccess    *prometheus.Desc
	scrapeDuration *prometheus.Desc
}

// NewCollector returns a Collector reading from source. A zero timeout uses
// DefaultScrapeTimeout.
func NewCollector(source Source, timeout time.Duration) *Collector {
	if timeout <= 0 {
		timeout = DefaultScrapeTimeout
	}
	serial := []string{"serial"}
	return &Collector{
		source:  source,
		timeout: timeout,
		up: prometheus.NewDesc(
			"eg4_up",
			"Whether the last scrape of the EG4 monitor succeeded (1=yes, 0=no)",
			nil, nil,
		),
		pvPower: prometheus.NewDesc(
			"eg4_pv_power_watts",
			"Current PV input power in watts",
			serial, nil,
		),
		soc: prometheus.NewDesc(
			"eg4_battery_soc_percent",
			"Battery state of charge reported by the inverter in percent",
			serial, nil,
		),
		gridExport: prometheus.NewDesc(
			"eg4_grid_export_watts",
			"Power exported to the grid in watts",
			serial, nil,
		),
		gridImport: prometheus.NewDesc(
			"eg4_grid_import_watts",
			"Power imported from the grid in watts",
			serial, nil,
		),
		consumption: prometheus.NewDesc(
			"eg4_consumption_watts",
			"Household consumption in watts",
			serial, nil,
		),
		chargePower: prometheus.NewDesc(
			"eg4_battery_charge_watts",
			"Battery charge power in watts",
			serial, nil,
		),
		dischargePower: prometheus.NewDesc(
			"eg4_battery_discharge_watts",
			"Battery discharge power in watts",
			serial, nil,
		),
		energyToday: prometheus.NewDesc(
			"eg4_energy_today_kwh",
			"Energy counted today in kWh",
			[]string{"serial", "kind"}, nil,
		),
		energyTotal: prometheus.NewDesc(
			"eg4_energy_total_kwh",
			"Lifetime energy in kWh",
			[]string{"serial", "kind"}, nil,
		),
		remainCapacity: prometheus.NewDesc(
			"eg4_battery_remain_capacity_ah",
			"Remaining battery capacity in amp hours",
			serial, nil,
		),
		fullCapacity: prometheus.NewDesc(
			"eg4_battery_full_capacity_ah",
			"Full battery capacity in amp hours",
			serial, nil,
		),
		unitSOC: prometheus.NewDesc(
			"eg4_battery_unit_soc_percent",
			"State of charge per battery module in percent",
			[]string{"serial", "battery"}, nil,
		),
		unitVoltage: prometheus.NewDesc(
			"eg4_battery_unit_voltage_volts",
			"Voltage per battery module in volts",
			[]string{"serial", "battery"}, nil,
		),
		readSuccess: prometheus.NewDesc(
			"eg4_read_success",
			"Whether the monitor reported success for an endpoint (1=yes, 0=no)",
			[]string{"serial", "endpoint"}, nil,
		),
		scrapeDuration: prometheus.NewDesc(
			"eg4_scrape_duration_seconds",
			"How long the last scrape of the EG4 monitor took",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.pvPower
	ch <- c.soc
	ch <- c.gridExport
	ch <- c.gridImport
	ch <- c.consumption
	ch <- c.chargePower
	ch <- c.dischargePower
	ch <- c.energyToday
	ch <- c.energyTotal
	ch <- c.remainCapacity
	ch <- c.fullCapacity
	ch <- c.unitSOC
	ch <- c.unitVoltage
	ch <- c.readSuccess
	ch <- c.scrapeDuration
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	snap, err := c.scrape(ctx)
	if err != nil && eg4.IsAuthError(err) {
		log.Ctx(ctx).InfoContext(ctx, "eg4 session not valid, logging in", slog.Any("error", err))
		if err = c.source.Login(ctx); err == nil {
			snap, err = c.scrape(ctx)
		}
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeDuration, prometheus.GaugeValue, time.Since(start).Seconds())

	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "eg4 scrape failed", slog.Any("error", err))
		ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, 1)

	serial := c.source.Selection().SerialNumber
	c.collectRuntime(ch, serial, snap.runtime)
	c.collectEnergy(ch, serial, snap.energy)
	c.collectBattery(ch, serial, snap.battery)
}

func (c *Collector) scrape(ctx context.Context) (snapshot, error) {
	var (
		snap snapshot
		err  error
	)
	if snap.runtime, err = c.source.GetInverterRuntime(ctx); err != nil {
		return snapshot{}, err
	}
	if snap.energy, err = c.source.GetInverterEnergy(ctx); err != nil {
		return snapshot{}, err
	}
	if snap.battery, err = c.source.GetInverterBattery(ctx); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func (c *Collector) collectRuntime(ch chan<- prometheus.Metric, serial string, rd types.RuntimeData) {
	ch <- prometheus.MustNewConstMetric(c.readSuccess, prometheus.GaugeValue, boolGauge(rd.Success), serial, "runtime")
	if !rd.Success {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.pvPower, prometheus.GaugeValue, float64(rd.PVPower), serial)
	ch <- prometheus.MustNewConstMetric(c.soc, prometheus.GaugeValue, float64(rd.SOC), serial)
	ch <- prometheus.MustNewConstMetric(c.gridExport, prometheus.GaugeValue, float64(rd.PowerToGrid), serial)
	ch <- prometheus.MustNewConstMetric(c.gridImport, prometheus.GaugeValue, float64(rd.PowerToUser), serial)
	ch <- prometheus.MustNewConstMetric(c.consumption, prometheus.GaugeValue, float64(rd.ConsumptionPower), serial)
	ch <- prometheus.MustNewConstMetric(c.chargePower, prometheus.GaugeValue, float64(rd.ChargePower), serial)
	ch <- prometheus.MustNewConstMetric(c.dischargePower, prometheus.GaugeValue, float64(rd.DischargePower), serial)
}

func (c *Collector) collectEnergy(ch chan<- prometheus.Metric, serial string, ed types.EnergyData) {
	ch <- prometheus.MustNewConstMetric(c.readSuccess, prometheus.GaugeValue, boolGauge(ed.Success), serial, "energy")
	if !ed.Success {
		return
	}
	today := map[string]int{
		"yielding":    ed.TodayYielding,
		"charging":    ed.TodayCharging,
		"discharging": ed.TodayDischarging,
		"import":      ed.TodayImport,
		"export":      ed.TodayExport,
		"usage":       ed.TodayUsage,
	}
	for kind, v := range today {
		ch <- prometheus.MustNewConstMetric(c.energyToday, prometheus.GaugeValue, types.KWh(v), serial, kind)
	}
	total := map[string]int{
		"yielding":    ed.TotalYielding,
		"charging":    ed.TotalCharging,
		"discharging": ed.TotalDischarging,
		"import":      ed.TotalImport,
		"export":      ed.TotalExport,
		"usage":       ed.TotalUsage,
	}
	for kind, v := range total {
		ch <- prometheus.MustNewConstMetric(c.energyTotal, prometheus.GaugeValue, types.KWh(v), serial, kind)
	}
}

func (c *Collector) collectBattery(ch chan<- prometheus.Metric, serial string, bd types.BatteryData) {
	ch <- prometheus.MustNewConstMetric(c.readSuccess, prometheus.GaugeValue, boolGauge(bd.Success), serial, "battery")
	if !bd.Success {
		return
	}
	if bd.RemainCapacity != nil {
		ch <- prometheus.MustNewConstMetric(c.remainCapacity, prometheus.GaugeValue, float64(*bd.RemainCapacity), serial)
	}
	if bd.FullCapacity != nil {
		ch <- prometheus.MustNewConstMetric(c.fullCapacity, prometheus.GaugeValue, float64(*bd.FullCapacity), serial)
	}
	for _, u := range bd.BatteryUnits {
		key := u.BatteryKey
		if key == "" {
			key = u.SerialNumber
		}
		ch <- prometheus.MustNewConstMetric(c.unitSOC, prometheus.GaugeValue, float64(u.SOC), serial, key)
		// totalVoltage is reported in hundredths of a volt
		ch <- prometheus.MustNewConstMetric(c.unitVoltage, prometheus.GaugeValue, float64(u.TotalVoltage)/100, serial, key)
	}
}
